package risk

// Level buckets a score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Action is the gate's advice to the settlement engine.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionReview Action = "review"
	ActionBlock  Action = "block"
)

// Context describes a proposed transaction.
type Context struct {
	WalletID          uint
	RecipientWalletID uint
	Amount            int64
	Operation         string
	DeviceID          string
	IPAddress         string
	Latitude          float64
	Longitude         float64
	HasLocation       bool
}

// Assessment is the gate's verdict. Signals carries the per-signal
// contributions for audit.
type Assessment struct {
	Score    int            `json:"score"`
	Level    Level          `json:"level"`
	Action   Action         `json:"action"`
	Degraded bool           `json:"degraded,omitempty"`
	Signals  map[string]int `json:"signals,omitempty"`
}

// levelFor buckets a 0-100 score.
func levelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// actionFor maps a level to the gate's advice. High and critical block;
// medium proceeds flagged for audit.
func actionFor(level Level) Action {
	switch level {
	case LevelCritical, LevelHigh:
		return ActionBlock
	case LevelMedium:
		return ActionReview
	default:
		return ActionAllow
	}
}
