// Package simulated provides an offline conversation generator. It sleeps for
// a configurable latency, reports round-by-round progress and derives its
// analysis from the match score, so runs are reproducible for a fixed seed.
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/scoring"
	"github.com/okian/agentmatch/pkg/logger"
)

// Defaults for the simulated conversation.
const (
	defaultMinLatency = 2 * time.Second
	defaultMaxLatency = 5 * time.Second
	defaultRounds     = 6

	progressFirstRound = 10
	progressRoundSpan  = 75
	progressAnalysis   = 90
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentCautious = "cautious"
)

// Generator implements dispatch.Generator without calling a model.
type Generator struct {
	minLatency time.Duration
	maxLatency time.Duration
	rounds     int
	failRate   float64
	scorer     dispatch.Scorer

	mu  sync.Mutex
	rng *rand.Rand

	logger logger.Logger
}

// New creates a simulated generator with configuration options.
func New(opts ...Option) *Generator {
	g := &Generator{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rounds:     defaultRounds,
		scorer:     scoring.New(),
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		logger:     logger.Get().Named("generator.simulated"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxLatency < g.minLatency {
		g.maxLatency = g.minLatency
	}
	return g
}

// Generate produces a scripted conversation between the two parties' agents.
func (g *Generator) Generate(ctx context.Context, subject, candidate model.Profile, progress dispatch.ProgressFunc) (model.Outcome, error) {
	latency, fail := g.draw()
	perRound := latency / time.Duration(g.rounds)

	conv := model.Conversation{ID: uuid.NewString()}
	for i := 0; i < g.rounds; i++ {
		if err := sleep(ctx, perRound); err != nil {
			return model.Outcome{}, err
		}
		conv.Messages = append(conv.Messages,
			model.Message{Speaker: subject.DisplayName(), Content: opening(i, subject, candidate)},
			model.Message{Speaker: candidate.DisplayName(), Content: reply(i, candidate, subject)},
		)
		if progress != nil {
			progress(progressFirstRound+progressRoundSpan*(i+1)/g.rounds,
				fmt.Sprintf("agents talking (round %d/%d)", i+1, g.rounds))
		}
	}

	if progress != nil {
		progress(progressAnalysis, "analyzing conversation")
	}
	if fail {
		return model.Outcome{}, fmt.Errorf("simulated generator failure for %s/%s", subject.ID, candidate.ID)
	}

	analysis := Analyze(g.scorer.Score(subject, candidate), subject, candidate)
	g.logger.Debug(ctx, "simulated conversation finished",
		logger.String("conversation_id", conv.ID),
		logger.Int("messages", len(conv.Messages)),
		logger.Duration("latency", latency),
	)
	return model.Outcome{Conversation: conv, Analysis: analysis}, nil
}

func (g *Generator) draw() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	latency := g.minLatency
	if span := g.maxLatency - g.minLatency; span > 0 {
		latency += time.Duration(g.rng.Int64N(int64(span) + 1))
	}
	fail := g.failRate > 0 && g.rng.Float64() < g.failRate
	return latency, fail
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Analyze derives a conversation analysis from a match score.
func Analyze(score model.MatchScore, subject, candidate model.Profile) model.Analysis {
	a := model.Analysis{
		MatchScore:               score.Total,
		DemandSatisfaction:       score.Breakdown.Needs / 10,
		SkillComplementarity:     score.Breakdown.Capability / 10,
		CollaborationWillingness: score.Breakdown.Behavior / 10,
		KeyPoints:                append([]string{}, score.Reasons...),
		CollaborationAreas:       collaborationAreas(subject, candidate),
	}

	switch {
	case score.Total >= 70:
		a.Sentiment = SentimentPositive
		a.NextSteps = "schedule an introductory call"
	case score.Total >= 40:
		a.Sentiment = SentimentNeutral
		a.NextSteps = "exchange materials before meeting"
	default:
		a.Sentiment = SentimentCautious
		a.NextSteps = "revisit when needs change"
	}

	a.Summary = fmt.Sprintf("%s and %s scored %d: %s",
		subject.DisplayName(), candidate.DisplayName(), score.Total, strings.ToLower(score.PrimaryReason()))
	return a
}

// collaborationAreas lists subject needs the candidate can cover, falling
// back to the candidate's top skills.
func collaborationAreas(subject, candidate model.Profile) []string {
	skills := make(map[string]struct{}, len(candidate.Capabilities))
	for _, c := range candidate.Capabilities {
		skills[strings.ToLower(strings.TrimSpace(c.Skill))] = struct{}{}
	}

	var areas []string
	seen := make(map[string]struct{})
	for _, n := range subject.Needs {
		for _, tag := range n.Tags {
			if _, ok := skills[strings.ToLower(strings.TrimSpace(tag))]; !ok {
				continue
			}
			if _, dup := seen[n.Category]; dup {
				break
			}
			seen[n.Category] = struct{}{}
			areas = append(areas, n.Category)
			break
		}
	}
	if len(areas) > 0 {
		return areas
	}
	for i, c := range candidate.Capabilities {
		if i == 2 {
			break
		}
		areas = append(areas, c.Skill)
	}
	if areas == nil {
		areas = []string{}
	}
	return areas
}

func opening(round int, self, other model.Profile) string {
	switch round {
	case 0:
		return fmt.Sprintf("Hi, I represent %s (%s at %s). We are looking for help with %s.",
			self.DisplayName(), orUnknown(self.Role), orUnknown(self.Company), needList(self))
	case 1:
		return fmt.Sprintf("Could %s help us with %s?", other.DisplayName(), needList(self))
	default:
		return fmt.Sprintf("Following up on point %d: what would a first step look like for you?", round)
	}
}

func reply(round int, self, other model.Profile) string {
	switch round {
	case 0:
		return fmt.Sprintf("Nice to meet you. %s works on %s and is based in %s.",
			self.DisplayName(), skillList(self), orUnknown(self.Location))
	case 1:
		return fmt.Sprintf("We have experience with %s and would like to learn more about %s.",
			skillList(self), other.DisplayName())
	default:
		return "That sounds reasonable. Let's keep the conversation going."
	}
}

func needList(p model.Profile) string {
	out := make([]string, 0, len(p.Needs))
	for _, n := range p.Needs {
		out = append(out, n.Category)
	}
	if len(out) == 0 {
		return "new opportunities"
	}
	return strings.Join(out, ", ")
}

func skillList(p model.Profile) string {
	out := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		out = append(out, c.Skill)
	}
	if len(out) == 0 {
		return "a range of projects"
	}
	return strings.Join(out, ", ")
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return "unknown"
}
