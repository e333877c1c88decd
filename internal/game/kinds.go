package game

// Kind is the behaviour class of a falling token.
type Kind string

const (
	KindNormal     Kind = "normal"
	KindBonus      Kind = "bonus"
	KindMultiplier Kind = "multiplier"
	KindBomb       Kind = "bomb"
	KindShield     Kind = "shield"
	KindTime       Kind = "time"
)

// Pulses marks the decorative kinds that rotate faster.
func (k Kind) Pulses() bool { return k != KindNormal }

type PowerUpKind string

const (
	PowerMultiplier PowerUpKind = "multiplier"
	PowerShield     PowerUpKind = "shield"
	PowerTime       PowerUpKind = "time"
	PowerMagnet     PowerUpKind = "magnet"
)

// TokenSpec is one row of the spawn table.
type TokenSpec struct {
	Kind   Kind    `json:"kind"`
	Value  int64   `json:"value"`
	Weight int     `json:"weight"`
	Size   float64 `json:"size"`
}

// DefaultTable is the classic coin rush mix. Weights sum to 100.
func DefaultTable() []TokenSpec {
	return []TokenSpec{
		{Kind: KindNormal, Value: 1, Weight: 50, Size: 60},
		{Kind: KindNormal, Value: 5, Weight: 30, Size: 65},
		{Kind: KindBonus, Value: 10, Weight: 12, Size: 70},
		{Kind: KindBonus, Value: 25, Weight: 5, Size: 75},
		{Kind: KindMultiplier, Value: 0, Weight: 2, Size: 65},
		{Kind: KindBomb, Value: -10, Weight: 1, Size: 60},
	}
}

// PowerTable extends the default mix with shield and time tokens and a
// heavier bomb presence to give shields something to absorb.
func PowerTable() []TokenSpec {
	return []TokenSpec{
		{Kind: KindNormal, Value: 1, Weight: 46, Size: 60},
		{Kind: KindNormal, Value: 5, Weight: 28, Size: 65},
		{Kind: KindBonus, Value: 10, Weight: 11, Size: 70},
		{Kind: KindBonus, Value: 25, Weight: 4, Size: 75},
		{Kind: KindMultiplier, Value: 0, Weight: 2, Size: 65},
		{Kind: KindBomb, Value: -10, Weight: 4, Size: 60},
		{Kind: KindShield, Value: 0, Weight: 3, Size: 65},
		{Kind: KindTime, Value: 0, Weight: 2, Size: 65},
	}
}
