package model

// Breakdown holds the per-factor scores, each 0-100.
type Breakdown struct {
	Needs        int `json:"needs"`
	Capability   int `json:"capability"`
	Relationship int `json:"relationship"`
	Behavior     int `json:"behavior"`
}

// MatchScore is the weighted compatibility of a candidate for a subject.
// It is computed on demand and never persisted.
type MatchScore struct {
	Total      int       `json:"total"`
	Breakdown  Breakdown `json:"breakdown"`
	Confidence int       `json:"confidence"`
	Reasons    []string  `json:"reasons"`
}

// PrimaryReason returns the highest-priority reason, or "" when none.
func (s MatchScore) PrimaryReason() string {
	if len(s.Reasons) == 0 {
		return ""
	}
	return s.Reasons[0]
}

// Preferences narrow the candidate pool.
type Preferences struct {
	TargetIndustry string `json:"target_industry,omitempty" yaml:"target_industry"`
	TargetLocation string `json:"target_location,omitempty" yaml:"target_location"`
}

// Settings are a user's dispatch preferences.
type Settings struct {
	UserID       string      `json:"user_id" yaml:"user_id"`
	DailyLimit   int         `json:"daily_limit" yaml:"daily_limit"`
	AutoDispatch bool        `json:"auto_dispatch" yaml:"auto_dispatch"`
	Preferences  Preferences `json:"preferences" yaml:"preferences"`
}

// Daily limit bounds.
const (
	MinDailyLimit     = 1
	MaxDailyLimit     = 10
	DefaultDailyLimit = 5
)

// ClampDailyLimit maps a configured limit into [MinDailyLimit, MaxDailyLimit].
// Zero or negative values fall back to def (itself clamped).
func ClampDailyLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if limit < MinDailyLimit {
		return MinDailyLimit
	}
	if limit > MaxDailyLimit {
		return MaxDailyLimit
	}
	return limit
}

// Quota is a user's dispatch allotment for one calendar date.
type Quota struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"` // YYYY-MM-DD
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
}

// Remaining returns how many attempts are left.
func (q Quota) Remaining() int {
	if r := q.Limit - q.Used; r > 0 {
		return r
	}
	return 0
}
