// Package model contains domain models passed between layers.
package model

import "strings"

// Priority ranks how pressing a need is.
type Priority string

// Need priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Level is a self-declared capability proficiency.
type Level string

// Capability levels.
const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelExpert       Level = "expert"
)

// MeetingMode is a preferred way of meeting.
type MeetingMode string

// Meeting modes.
const (
	MeetingOnline  MeetingMode = "online"
	MeetingOffline MeetingMode = "offline"
	MeetingBoth    MeetingMode = "both"
)

// Need is something a party is looking for.
type Need struct {
	Category string   `json:"category" yaml:"category"`
	Priority Priority `json:"priority" yaml:"priority"`
	Tags     []string `json:"tags" yaml:"tags"`
}

// Capability is something a party can offer.
type Capability struct {
	Skill    string `json:"skill" yaml:"skill"`
	Level    Level  `json:"level" yaml:"level"`
	Verified bool   `json:"verified" yaml:"verified"`
}

// Network summarizes a party's connections.
type Network struct {
	Connections       []string `json:"connections" yaml:"connections"`
	MutualConnections int      `json:"mutual_connections" yaml:"mutual_connections"`
	Size              int      `json:"size" yaml:"size"`
}

// Behavior captures activity and communication signals.
type Behavior struct {
	ActivityScore      float64     `json:"activity_score" yaml:"activity_score"`             // 0-100
	AvgResponseMinutes float64     `json:"avg_response_minutes" yaml:"avg_response_minutes"` // average reply latency
	MeetingMode        MeetingMode `json:"meeting_mode" yaml:"meeting_mode"`
}

// IsZero reports whether no behavioral signal was recorded.
func (b Behavior) IsZero() bool {
	return b.ActivityScore == 0 && b.AvgResponseMinutes == 0 && strings.TrimSpace(string(b.MeetingMode)) == ""
}

// Profile is an immutable snapshot of a party as seen by matching and dispatch.
type Profile struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Role     string `json:"role" yaml:"role"`
	Company  string `json:"company" yaml:"company"`
	Avatar   string `json:"avatar" yaml:"avatar"`
	Industry string `json:"industry" yaml:"industry"`
	Location string `json:"location" yaml:"location"`

	Needs        []Need       `json:"needs" yaml:"needs"`
	Capabilities []Capability `json:"capabilities" yaml:"capabilities"`
	Network      Network      `json:"network" yaml:"network"`
	Behavior     Behavior     `json:"behavior" yaml:"behavior"`
}

// DisplayName returns the name, falling back to the id.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.ID
}
