package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/model"
)

type scriptedModels struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   []recordedCall
}

type scriptedReply struct {
	text string
	err  error
}

type recordedCall struct {
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (s *scriptedModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prompt string
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		prompt = contents[0].Parts[0].Text
	}
	s.calls = append(s.calls, recordedCall{model: model, prompt: prompt, config: config})

	if len(s.replies) == 0 {
		return nil, errors.New("unexpected call")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: r.text}}},
		}},
	}, nil
}

func script(turns int, analysis string) *scriptedModels {
	s := &scriptedModels{}
	for i := 0; i < turns; i++ {
		s.replies = append(s.replies, scriptedReply{text: "hello"})
	}
	s.replies = append(s.replies, scriptedReply{text: analysis})
	return s
}

const validAnalysis = `{
  "match_score": 82,
  "demand_satisfaction": 8,
  "skill_complementarity": 7,
  "collaboration_willingness": 9,
  "core_reason": "Strong technical fit",
  "sentiment": "positive",
  "collaboration_areas": ["backend"],
  "potential_directions": ["joint pilot", "referral deal"]
}`

func profiles() (model.Profile, model.Profile) {
	return model.Profile{ID: "u1", Name: "Alice", Company: "Acme"},
		model.Profile{ID: "u2", Name: "Bob", Capabilities: []model.Capability{{Skill: "golang", Level: model.LevelExpert}}}
}

func TestGenerateRunsRoundsThenAnalysis(t *testing.T) {
	models := script(4, validAnalysis)
	g := newGenerator(models, WithRounds(2), WithModel("gemini-test"))
	subject, candidate := profiles()

	var progress []int
	out, err := g.Generate(context.Background(), subject, candidate, func(p int, _ string) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	require.Len(t, out.Conversation.Messages, 4)
	assert.Equal(t, "Alice", out.Conversation.Messages[0].Speaker)
	assert.Equal(t, "Bob", out.Conversation.Messages[1].Speaker)
	assert.NotEmpty(t, out.Conversation.ID)
	assert.Equal(t, []int{47, 85, 90}, progress)

	assert.Equal(t, 82, out.Analysis.MatchScore)
	assert.Equal(t, "Strong technical fit", out.Analysis.Summary)
	assert.Equal(t, []string{"joint pilot", "referral deal"}, out.Analysis.KeyPoints)
	assert.Equal(t, "joint pilot", out.Analysis.NextSteps)

	require.Len(t, models.calls, 5)
	for _, c := range models.calls {
		assert.Equal(t, "gemini-test", c.model)
	}
	assert.NotNil(t, models.calls[0].config.SystemInstruction)
	assert.NotContains(t, models.calls[0].prompt, "Conversation so far")
	assert.Contains(t, models.calls[1].prompt, "Alice: hello")
	assert.Equal(t, "application/json", models.calls[4].config.ResponseMIMEType)
}

func TestGenerateMalformedAnalysis(t *testing.T) {
	subject, candidate := profiles()

	cases := map[string]string{
		"not json":       "I think they match well.",
		"out of range":   `{"match_score": 150, "demand_satisfaction": 8, "skill_complementarity": 7, "collaboration_willingness": 9, "core_reason": "x"}`,
		"missing reason": `{"match_score": 50, "demand_satisfaction": 8, "skill_complementarity": 7, "collaboration_willingness": 9}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			g := newGenerator(script(2, raw), WithRounds(1))
			_, err := g.Generate(context.Background(), subject, candidate, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, dispatch.ErrMalformedOutput)
		})
	}
}

func TestGenerateAPIErrorIsNotMalformed(t *testing.T) {
	subject, candidate := profiles()
	models := &scriptedModels{replies: []scriptedReply{{err: genai.APIError{Code: 500, Status: "INTERNAL"}}}}
	g := newGenerator(models, WithRounds(3))

	_, err := g.Generate(context.Background(), subject, candidate, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, dispatch.ErrMalformedOutput)
	assert.Len(t, models.calls, 1)
}

func TestGenerateEmptyTurn(t *testing.T) {
	subject, candidate := profiles()
	models := &scriptedModels{replies: []scriptedReply{{text: "   "}}}
	g := newGenerator(models, WithRounds(1))

	_, err := g.Generate(context.Background(), subject, candidate, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestParseAnalysis(t *testing.T) {
	t.Run("code fence", func(t *testing.T) {
		a, err := ParseAnalysis("```json\n" + validAnalysis + "\n```")
		require.NoError(t, err)
		assert.Equal(t, 9, a.CollaborationWillingness)
		assert.Equal(t, []string{"backend"}, a.CollaborationAreas)
	})

	t.Run("defaults", func(t *testing.T) {
		a, err := ParseAnalysis(`{"match_score": 40, "demand_satisfaction": 4, "skill_complementarity": 3, "collaboration_willingness": 5, "core_reason": "some overlap"}`)
		require.NoError(t, err)
		assert.Equal(t, "neutral", a.Sentiment)
		assert.NotNil(t, a.KeyPoints)
		assert.NotNil(t, a.CollaborationAreas)
		assert.Empty(t, a.NextSteps)
	})

	t.Run("bad sentiment", func(t *testing.T) {
		_, err := ParseAnalysis(`{"match_score": 40, "demand_satisfaction": 4, "skill_complementarity": 3, "collaboration_willingness": 5, "core_reason": "x", "sentiment": "ecstatic"}`)
		assert.ErrorIs(t, err, dispatch.ErrMalformedOutput)
	})
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), "  ")
	assert.Error(t, err)
}

func TestModelName(t *testing.T) {
	assert.Equal(t, defaultModel, newGenerator(&scriptedModels{}).Model())
	assert.Equal(t, "gemini-test", newGenerator(&scriptedModels{}, WithModel(" gemini-test ")).Model())
	assert.Equal(t, defaultModel, newGenerator(&scriptedModels{}, WithModel("  ")).Model())
}
