package game

// Update advances one frame: tokens fall and spin, particles drift and fade.
// Call it exactly once per frame; a second call in the same frame moves
// everything twice.
func Update(s *Session) {
	if !s.Running() {
		return
	}
	s.Frames++

	limit := s.Field.Height + CullMargin
	kept := s.Tokens[:0]
	for _, t := range s.Tokens {
		t.Y += t.Speed
		if t.Pulse {
			t.Rotation += RotationPulse
		} else {
			t.Rotation += RotationPlain
		}
		if t.Y >= limit {
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.Tokens); i++ {
		s.Tokens[i] = nil
	}
	s.Tokens = kept

	alive := s.Particles[:0]
	for _, p := range s.Particles {
		p.X += p.VX
		p.Y += p.VY
		p.VX *= ParticleDamping
		p.VY *= ParticleDamping
		p.Life -= ParticleDecay
		if p.Life <= 0 {
			continue
		}
		alive = append(alive, p)
	}
	s.Particles = alive

	if s.comboFrames > 0 {
		s.comboFrames--
		if s.comboFrames == 0 {
			s.Combo = ""
		}
	}
}
