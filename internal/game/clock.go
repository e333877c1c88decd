package game

// Second applies the once-per-second rules: countdown, play clock and
// power-up decay. It reports whether the session just ended.
func Second(s *Session) bool {
	switch s.Phase {
	case PhaseCountdown:
		s.Countdown--
		if s.Countdown <= 0 {
			s.Countdown = 0
			s.Phase = PhaseRunning
		}
		return false
	case PhaseRunning:
	default:
		return false
	}

	s.Elapsed++
	decayPowerUps(s)
	if s.TimeLeft <= 1 {
		s.end()
		return true
	}
	s.TimeLeft--
	return false
}

func decayPowerUps(s *Session) {
	kept := s.PowerUps[:0]
	multiplierActive := false
	for _, p := range s.PowerUps {
		p.Duration--
		if p.Duration <= 0 {
			continue
		}
		if p.Kind == PowerMultiplier {
			multiplierActive = true
		}
		kept = append(kept, p)
	}
	s.PowerUps = kept
	if !multiplierActive && s.Multiplier > 1 {
		s.Multiplier = 1
	}
}
