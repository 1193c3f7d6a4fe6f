// Package gemini implements the conversation generator on top of the Google
// GenAI SDK. Two agent personas take turns for a fixed number of rounds, then
// a final low-temperature call grades the transcript as JSON.
package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"

	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/pkg/logger"
)

const (
	defaultModel       = "gemini-2.0-flash"
	defaultRounds      = 6
	defaultTemperature = 0.7
	analysisTemp       = 0.3
	logPreviewLimit    = 200

	progressFirstRound = 10
	progressRoundSpan  = 75
	progressAnalysis   = 90
)

//go:embed analysis.schema.json
var analysisSchema string

var schemaLoader = gojsonschema.NewStringLoader(analysisSchema)

// contentGenerator is the subset of *genai.Models the generator calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements dispatch.Generator with Gemini.
type Generator struct {
	models      contentGenerator
	modelName   string
	rounds      int
	temperature float32
	logger      logger.Logger
}

// New creates a Generator configured for the Gemini API backend.
func New(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenerator(client.Models, opts...), nil
}

func newGenerator(models contentGenerator, opts ...Option) *Generator {
	g := &Generator{
		models:      models,
		modelName:   defaultModel,
		rounds:      defaultRounds,
		temperature: defaultTemperature,
		logger:      logger.Get().Named("generator.gemini"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.modelName
}

// Generate runs the agent conversation and its analysis.
func (g *Generator) Generate(ctx context.Context, subject, candidate model.Profile, progress dispatch.ProgressFunc) (model.Outcome, error) {
	report := func(p int, msg string) {
		if progress != nil {
			progress(p, msg)
		}
	}

	speakerA := persona(subject, candidate, true)
	speakerB := persona(candidate, subject, false)

	conv := model.Conversation{ID: uuid.NewString()}
	for i := 0; i < g.rounds; i++ {
		cue := "Continue the conversation."
		if i == 0 {
			cue = "Introduce the party you represent and explore ways to work together."
		}
		text, err := g.turn(ctx, speakerA, conv.Messages, cue)
		if err != nil {
			return model.Outcome{}, fmt.Errorf("round %d, %s: %w", i+1, subject.DisplayName(), err)
		}
		conv.Messages = append(conv.Messages, model.Message{Speaker: subject.DisplayName(), Content: text})

		text, err = g.turn(ctx, speakerB, conv.Messages, "Respond to the other agent.")
		if err != nil {
			return model.Outcome{}, fmt.Errorf("round %d, %s: %w", i+1, candidate.DisplayName(), err)
		}
		conv.Messages = append(conv.Messages, model.Message{Speaker: candidate.DisplayName(), Content: text})

		report(progressFirstRound+progressRoundSpan*(i+1)/g.rounds,
			fmt.Sprintf("agents talking (round %d/%d)", i+1, g.rounds))
	}

	report(progressAnalysis, "analyzing conversation")
	analysis, err := g.analyze(ctx, conv.Messages)
	if err != nil {
		return model.Outcome{}, err
	}
	return model.Outcome{Conversation: conv, Analysis: analysis}, nil
}

func (g *Generator) turn(ctx context.Context, system string, history []model.Message, cue string) (string, error) {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript(history))
		b.WriteString("\n\n")
	}
	b.WriteString(cue)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	return g.call(ctx, b.String(), cfg)
}

func (g *Generator) analyze(ctx context.Context, history []model.Message) (model.Analysis, error) {
	prompt := "Based on the following conversation between two agents, assess the potential for collaboration.\n\n" +
		transcript(history) +
		"\n\nReturn only a JSON object with these fields: match_score (integer 0-100), demand_satisfaction (integer 0-10), " +
		"skill_complementarity (integer 0-10), collaboration_willingness (integer 0-10), core_reason (one sentence), " +
		"sentiment (positive, neutral, cautious or negative), next_steps (one sentence), " +
		"collaboration_areas (array of strings), potential_directions (array of strings)."

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](analysisTemp),
		ResponseMIMEType: "application/json",
	}
	raw, err := g.call(ctx, prompt, cfg)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("analysis: %w", err)
	}
	return ParseAnalysis(raw)
}

func (g *Generator) call(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	g.logger.Debug(ctx, "gemini request",
		logger.String("model", g.modelName),
		logger.String("prompt", logger.Truncate(prompt, logPreviewLimit)))

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	g.logger.Debug(ctx, "gemini response", logger.String("text", logger.Truncate(output, logPreviewLimit)))
	return output, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return strings.TrimSpace(b.String())
}

type rawAnalysis struct {
	MatchScore               int      `json:"match_score"`
	DemandSatisfaction       int      `json:"demand_satisfaction"`
	SkillComplementarity     int      `json:"skill_complementarity"`
	CollaborationWillingness int      `json:"collaboration_willingness"`
	CoreReason               string   `json:"core_reason"`
	Sentiment                string   `json:"sentiment"`
	NextSteps                string   `json:"next_steps"`
	CollaborationAreas       []string `json:"collaboration_areas"`
	PotentialDirections      []string `json:"potential_directions"`
}

// ParseAnalysis validates a model's JSON analysis and maps it onto
// model.Analysis. Anything that does not satisfy the schema is reported as
// dispatch.ErrMalformedOutput.
func ParseAnalysis(raw string) (model.Analysis, error) {
	doc := stripFences(raw)

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return model.Analysis{}, fmt.Errorf("%w: %v", dispatch.ErrMalformedOutput, err)
	}
	if !result.Valid() {
		fields := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			fields = append(fields, field+": "+desc.Description())
		}
		return model.Analysis{}, fmt.Errorf("%w: %s", dispatch.ErrMalformedOutput, strings.Join(fields, "; "))
	}

	var ra rawAnalysis
	if err := json.Unmarshal([]byte(doc), &ra); err != nil {
		return model.Analysis{}, fmt.Errorf("%w: %v", dispatch.ErrMalformedOutput, err)
	}

	a := model.Analysis{
		MatchScore:               ra.MatchScore,
		DemandSatisfaction:       ra.DemandSatisfaction,
		SkillComplementarity:     ra.SkillComplementarity,
		CollaborationWillingness: ra.CollaborationWillingness,
		Summary:                  ra.CoreReason,
		KeyPoints:                nonNil(ra.PotentialDirections),
		Sentiment:                ra.Sentiment,
		NextSteps:                ra.NextSteps,
		CollaborationAreas:       nonNil(ra.CollaborationAreas),
	}
	if a.Sentiment == "" {
		a.Sentiment = "neutral"
	}
	if a.NextSteps == "" && len(a.KeyPoints) > 0 {
		a.NextSteps = a.KeyPoints[0]
	}
	return a, nil
}

// stripFences removes a Markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func persona(self, other model.Profile, opens bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the AI agent of %s.\n", self.DisplayName())
	b.WriteString("About the party you represent:\n")
	fmt.Fprintf(&b, "- company: %s\n", orUnknown(self.Company))
	fmt.Fprintf(&b, "- role: %s\n", orUnknown(self.Role))
	fmt.Fprintf(&b, "- industry: %s\n", orUnknown(self.Industry))
	fmt.Fprintf(&b, "- skills: %s\n", orUnknown(skills(self)))
	fmt.Fprintf(&b, "- needs: %s\n", orUnknown(needs(self)))
	fmt.Fprintf(&b, "You are talking to the agent of %s to explore collaboration. ", other.DisplayName())
	if opens {
		b.WriteString("Be professional and friendly, present your party's strengths and ask about theirs. ")
	} else {
		b.WriteString("Be professional and friendly, respond to what they said and share your party's strengths. ")
	}
	b.WriteString("Reply with a single short message.")
	return b.String()
}

func transcript(msgs []model.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Speaker+": "+m.Content)
	}
	return strings.Join(lines, "\n\n")
}

func skills(p model.Profile) string {
	out := make([]string, 0, len(p.Capabilities))
	for _, c := range p.Capabilities {
		if c.Level != "" {
			out = append(out, fmt.Sprintf("%s (%s)", c.Skill, c.Level))
			continue
		}
		out = append(out, c.Skill)
	}
	return strings.Join(out, ", ")
}

func needs(p model.Profile) string {
	out := make([]string, 0, len(p.Needs))
	for _, n := range p.Needs {
		out = append(out, n.Category)
	}
	return strings.Join(out, ", ")
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return "unknown"
}
