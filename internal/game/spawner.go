package game

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Spawner draws token kinds from a weighted table.
type Spawner struct {
	table []TokenSpec
	total int
}

func NewSpawner(table []TokenSpec) (*Spawner, error) {
	sp := &Spawner{table: make([]TokenSpec, len(table))}
	copy(sp.table, table)
	for _, spec := range table {
		if spec.Weight < 0 {
			return nil, fmt.Errorf("token %s/%d: negative weight %d", spec.Kind, spec.Value, spec.Weight)
		}
		if spec.Size <= 0 {
			return nil, fmt.Errorf("token %s/%d: size must be > 0", spec.Kind, spec.Value)
		}
		sp.total += spec.Weight
	}
	if sp.total == 0 {
		return nil, errors.New("spawn table has no weight")
	}
	return sp, nil
}

func (sp *Spawner) TotalWeight() int { return sp.total }

// Pick selects a row with probability weight/total.
func (sp *Spawner) Pick(r Rand) TokenSpec {
	remaining := r.Float64() * float64(sp.total)
	last := sp.table[0]
	for _, spec := range sp.table {
		if spec.Weight == 0 {
			continue
		}
		last = spec
		remaining -= float64(spec.Weight)
		if remaining <= 0 {
			return spec
		}
	}
	// Float rounding can leave a sliver past the final row.
	return last
}

// Spawn places a new token just above the visible field. It is a no-op
// unless the session is running.
func Spawn(s *Session) *Token {
	if !s.Running() {
		return nil
	}
	spec := s.spawner.Pick(s.rng)
	span := s.Field.Width - spec.Size
	if span < 0 {
		span = 0
	}
	speed := s.Profile.SpeedMin + s.rng.Float64()*(s.Profile.SpeedMax-s.Profile.SpeedMin)
	t := &Token{
		ID:    uuid.NewString(),
		X:     s.rng.Float64() * span,
		Y:     -spec.Size,
		Speed: speed,
		Kind:  spec.Kind,
		Value: spec.Value,
		Size:  spec.Size,
		Pulse: spec.Kind.Pulses(),
	}
	s.Tokens = append(s.Tokens, t)
	return t
}
