package model

import "time"

// JobState is the lifecycle state of a dispatch job.
type JobState string

// Dispatch job states.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Message is one turn of a generated agent conversation.
type Message struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Conversation is the transcript produced by a generator.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// Analysis is the generator's assessment of a conversation.
type Analysis struct {
	MatchScore               int      `json:"match_score"`
	DemandSatisfaction       int      `json:"demand_satisfaction"`
	SkillComplementarity     int      `json:"skill_complementarity"`
	CollaborationWillingness int      `json:"collaboration_willingness"`
	Summary                  string   `json:"summary"`
	KeyPoints                []string `json:"key_points"`
	Sentiment                string   `json:"sentiment"`
	NextSteps                string   `json:"next_steps"`
	CollaborationAreas       []string `json:"collaboration_areas"`
}

// Outcome is what a generator returns for a pair of profiles.
type Outcome struct {
	Conversation Conversation `json:"conversation"`
	Analysis     Analysis     `json:"analysis"`
}

// DispatchResult is attached to a completed job.
type DispatchResult struct {
	Conversation Conversation `json:"conversation"`
	Analysis     Analysis     `json:"analysis"`
	Score        MatchScore   `json:"score"`
	AgentName    string       `json:"agent_name"`
}

// DispatchJob tracks one outreach attempt toward a candidate.
type DispatchJob struct {
	ID          string          `json:"id"`
	SubjectID   string          `json:"subject_id"`
	CandidateID string          `json:"candidate_id"`
	AgentID     string          `json:"agent_id"`
	State       JobState        `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message"`
	Result      *DispatchResult `json:"result,omitempty"`
	QuotaDate   string          `json:"quota_date,omitempty"` // day whose quota paid for the job
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Clone returns a copy that shares no mutable state with j.
func (j DispatchJob) Clone() DispatchJob {
	out := j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Conversation.Messages = append([]Message(nil), j.Result.Conversation.Messages...)
		r.Analysis.KeyPoints = append([]string(nil), j.Result.Analysis.KeyPoints...)
		r.Analysis.CollaborationAreas = append([]string(nil), j.Result.Analysis.CollaborationAreas...)
		r.Score.Reasons = append([]string(nil), j.Result.Score.Reasons...)
		out.Result = &r
	}
	return out
}

// HistoryEntry is an append-only record of a dispatch attempt.
type HistoryEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TargetID   string    `json:"target_id"`
	JobID      string    `json:"job_id"`
	Date       string    `json:"date"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	MatchScore int       `json:"match_score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Report is the client-facing summary of a completed dispatch.
type Report struct {
	AgentName      string   `json:"agent_name"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	Sentiment      string   `json:"sentiment"`
	NextSteps      string   `json:"next_steps"`
	ConversationID string   `json:"conversation_id"`
	MessageCount   int      `json:"message_count"`
	Duration       int      `json:"duration"` // seconds
}

// DispatchStats aggregates a user's dispatch history.
type DispatchStats struct {
	TodayUsed     int            `json:"today_used"`
	TodayLimit    int            `json:"today_limit"`
	TotalAttempts int            `json:"total_attempts"`
	SuccessRate   int            `json:"success_rate"`
	Recent        []HistoryEntry `json:"recent"`
}

// DispatchTask is the unit of work handed from the orchestrator to workers.
type DispatchTask struct {
	JobID      string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
