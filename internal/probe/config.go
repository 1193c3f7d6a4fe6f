// Package probe drives a running agentmatch server end to end: it asks for
// matches, dispatches toward the best of them and polls every job until it
// finishes.
package probe

import (
	"errors"
	"time"
)

// Defaults for Config.
const (
	DefaultBaseURL      = "http://localhost:9080"
	DefaultDispatches   = 3
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 10 * time.Second
	DefaultMaxWait      = 5 * time.Minute
)

// ErrProgressRegressed is returned when a job reports less progress than
// an earlier poll did.
var ErrProgressRegressed = errors.New("dispatch progress went backwards")

// ErrNoMatches is returned when the server has no candidate to dispatch to.
var ErrNoMatches = errors.New("no matches to dispatch to")

// Config holds configuration for a probe run.
type Config struct {
	BaseURL      string        // Base URL of the service
	UserID       string        // Caller identity sent as X-User-ID
	Dispatches   int           // How many top matches to dispatch toward
	PollInterval time.Duration // Delay between status polls
	Timeout      time.Duration // Per-request timeout
	MaxWait      time.Duration // Upper bound on waiting for all jobs
}

func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Dispatches < 1 {
		c.Dispatches = DefaultDispatches
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
}

// Match is the list shape returned by GET /matches.
type Match struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MatchScore  int    `json:"match_score"`
	MatchReason string `json:"match_reason"`
}

// JobStatus is the shape returned by GET /dispatch/{id}.
type JobStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// Report is the shape returned by GET /dispatch/{id}/report.
type Report struct {
	AgentName    string   `json:"agent_name"`
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	Sentiment    string   `json:"sentiment"`
	MessageCount int      `json:"message_count"`
	Duration     int      `json:"duration"`
}

// JobResult is what the probe observed for one dispatch.
type JobResult struct {
	CandidateID string
	JobID       string
	Refused     string // error code when the dispatch was not accepted
	Final       JobStatus
	Polls       int
	Report      *Report
}

// Summary aggregates a probe run.
type Summary struct {
	Matches   int
	Accepted  int
	Refused   int
	Completed int
	Failed    int
	Jobs      []JobResult
	Duration  time.Duration
}
