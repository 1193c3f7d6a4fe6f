// Package scoring computes the compatibility of a candidate profile for a subject.
//
// Scoring is pure: it never fails, holds no mutable state after construction and
// is safe for concurrent use. Missing or empty profile sections degrade to
// neutral defaults.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/agentmatch/internal/domain/model"
)

// Factor weights. They sum to 1.0.
const (
	WeightNeeds        = 0.4
	WeightCapability   = 0.3
	WeightRelationship = 0.2
	WeightBehavior     = 0.1
)

// Scoring constants.
const (
	neutralScore = 50.0
	maxScore     = 100.0

	unmatchedNeedQuality = 20.0

	jaccardShare         = 0.7
	complementarityShare = 0.3
	complementarityHigh  = 80.0
	complementarityLow   = 40.0

	mutualPoints    = 15.0
	mutualCap       = 70.0
	networkSizeCap  = 30.0
	activityPenalty = 0.4
	meetingBonus    = 20.0
	latencyBonus    = 10.0
	fastLatencyMins = 60.0

	baseConfidence      = 50.0
	completenessShare   = 0.3
	verifiedPoints      = 5
	verifiedCap         = 20
	sectionCompleteness = 25

	reasonThresholdHigh = 70.0
	reasonThresholdMid  = 40.0
)

// Reason texts, emitted in this order when their rule fires.
const (
	ReasonNeeds            = "candidate's skills strongly match your needs"
	ReasonDomainOverlap    = "high domain overlap"
	ReasonComplementary    = "complementary skills"
	ReasonWorkingStyle     = "similar working style"
	ReasonFallback         = "potential collaboration opportunity based on profile analysis"
	reasonMutualConnection = "%d mutual connections"
)

// defaultDomains classifies skills into coarse domains for complementarity.
// Short ASCII keywords match whole words, longer ones match word prefixes and
// non-ASCII keywords match anywhere in the skill text.
var defaultDomains = map[string][]string{ //nolint:gochecknoglobals // read-only keyword table
	"tech": {
		"develop", "engineer", "programming", "software", "tech", "ai", "ml", "algorithm",
		"python", "javascript", "golang", "backend", "frontend", "data", "cloud",
		"开发", "编程", "技术", "算法",
	},
	"design":   {"design", "ui", "ux", "visual", "brand", "graphic", "设计", "视觉", "品牌"},
	"business": {"business", "sales", "market", "operation", "management", "partnership", "growth", "商务", "销售", "市场", "运营", "管理"},
	"finance":  {"finance", "financial", "invest", "fundrais", "funding", "accounting", "venture", "财务", "投资", "融资", "会计"},
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithDomainKeywords replaces the skill-domain keyword table.
func WithDomainKeywords(domains map[string][]string) Option {
	return func(s *Scorer) {
		if len(domains) > 0 {
			s.domains = compileDomains(domains)
		}
	}
}

type domain struct {
	name     string
	keywords []string
}

// Scorer computes MatchScores.
type Scorer struct {
	domains []domain
}

// New creates a Scorer with configuration options.
func New(opts ...Option) *Scorer {
	s := &Scorer{domains: compileDomains(defaultDomains)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultScorer = New() //nolint:gochecknoglobals // stateless default instance

// Score computes the MatchScore of candidate for subject with the default scorer.
func Score(subject, candidate model.Profile) model.MatchScore {
	return defaultScorer.Score(subject, candidate)
}

// Score computes the MatchScore of candidate for subject.
func (s *Scorer) Score(subject, candidate model.Profile) model.MatchScore {
	needs := needsMatch(subject.Needs, candidate.Capabilities)
	capability := s.capabilityMatch(subject.Capabilities, candidate.Capabilities)
	mutual := mutualCount(subject.Network, candidate.Network)
	relationship := relationshipMatch(mutual, subject.Network, candidate.Network)
	behavior := behaviorMatch(subject.Behavior, candidate.Behavior)

	total := math.Round(needs*WeightNeeds + capability*WeightCapability +
		relationship*WeightRelationship + behavior*WeightBehavior)

	return model.MatchScore{
		Total: clampInt(total),
		Breakdown: model.Breakdown{
			Needs:        clampInt(math.Round(needs)),
			Capability:   clampInt(math.Round(capability)),
			Relationship: clampInt(math.Round(relationship)),
			Behavior:     clampInt(math.Round(behavior)),
		},
		Confidence: confidence(subject, candidate),
		Reasons:    reasons(needs, capability, behavior, mutual),
	}
}

// Completeness returns 25 points for each populated profile section.
func Completeness(p model.Profile) int {
	score := 0
	if len(p.Needs) > 0 {
		score += sectionCompleteness
	}
	if len(p.Capabilities) > 0 {
		score += sectionCompleteness
	}
	if p.Network.Size > 0 {
		score += sectionCompleteness
	}
	if p.Behavior.ActivityScore > 0 {
		score += sectionCompleteness
	}
	return score
}

func priorityWeight(p model.Priority) float64 {
	switch model.Priority(strings.ToLower(string(p))) {
	case model.PriorityHigh:
		return 3
	case model.PriorityMedium:
		return 2
	default:
		return 1
	}
}

func levelScore(l model.Level) float64 {
	switch model.Level(strings.ToLower(string(l))) {
	case model.LevelExpert:
		return 100
	case model.LevelAdvanced:
		return 80
	case model.LevelIntermediate:
		return 60
	default:
		return 40
	}
}

func needsMatch(needs []model.Need, caps []model.Capability) float64 {
	if len(needs) == 0 {
		return neutralScore
	}

	skills := make([]string, len(caps))
	for i, c := range caps {
		skills[i] = strings.ToLower(c.Skill)
	}

	var total, weightSum float64
	for _, need := range needs {
		weight := priorityWeight(need.Priority)

		var qualitySum float64
		matched := 0
		for i, skill := range skills {
			if skillMatchesTags(skill, need.Tags) {
				qualitySum += levelScore(caps[i].Level)
				matched++
			}
		}

		quality := unmatchedNeedQuality
		if matched > 0 {
			quality = qualitySum / float64(matched)
		}
		total += quality * weight
		weightSum += weight
	}
	return total / weightSum
}

func skillMatchesTags(skill string, tags []string) bool {
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && strings.Contains(skill, tag) {
			return true
		}
	}
	return false
}

func skillSet(caps []model.Capability) map[string]struct{} {
	set := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		if s := strings.ToLower(strings.TrimSpace(c.Skill)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func (s *Scorer) capabilityMatch(a, b []model.Capability) float64 {
	setA, setB := skillSet(a), skillSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return neutralScore
	}

	inter := 0
	for skill := range setA {
		if _, ok := setB[skill]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	jaccard := float64(inter) / float64(union)

	return jaccard*maxScore*jaccardShare + s.complementarity(a, b)*complementarityShare
}

func (s *Scorer) complementarity(a, b []model.Capability) float64 {
	domainsA, domainsB := s.classify(a), s.classify(b)
	if hasMissing(domainsA, domainsB) && hasMissing(domainsB, domainsA) {
		return complementarityHigh
	}
	return complementarityLow
}

// hasMissing reports whether a has a domain that b lacks.
func hasMissing(a, b map[string]struct{}) bool {
	for d := range a {
		if _, ok := b[d]; !ok {
			return true
		}
	}
	return false
}

func (s *Scorer) classify(caps []model.Capability) map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range caps {
		text := strings.ToLower(c.Skill)
		tokens := strings.FieldsFunc(text, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		})
		for _, d := range s.domains {
			if _, done := out[d.name]; done {
				continue
			}
			for _, kw := range d.keywords {
				if keywordMatches(text, tokens, kw) {
					out[d.name] = struct{}{}
					break
				}
			}
		}
	}
	return out
}

const prefixMatchMinLen = 4

func keywordMatches(text string, tokens []string, kw string) bool {
	if !isASCII(kw) {
		return strings.Contains(text, kw)
	}
	for _, tok := range tokens {
		if tok == kw || (len(kw) >= prefixMatchMinLen && strings.HasPrefix(tok, kw)) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func compileDomains(in map[string][]string) []domain {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain, 0, len(names))
	for _, name := range names {
		kws := make([]string, 0, len(in[name]))
		for _, kw := range in[name] {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		out = append(out, domain{name: name, keywords: kws})
	}
	return out
}

func mutualCount(a, b model.Network) int {
	if len(a.Connections) > 0 && len(b.Connections) > 0 {
		seen := make(map[string]struct{}, len(a.Connections))
		for _, id := range a.Connections {
			seen[id] = struct{}{}
		}
		shared := 0
		for _, id := range b.Connections {
			if _, ok := seen[id]; ok {
				shared++
				delete(seen, id)
			}
		}
		if shared > 0 {
			return shared
		}
	}
	if a.MutualConnections > 0 {
		return a.MutualConnections
	}
	return 0
}

func relationshipMatch(mutual int, a, b model.Network) float64 {
	mutualScore := math.Min(float64(mutual)*mutualPoints, mutualCap)

	sizeA, sizeB := math.Max(float64(a.Size), 0), math.Max(float64(b.Size), 0)
	var ratio float64
	if hi := math.Max(sizeA, sizeB); hi > 0 {
		ratio = math.Min(sizeA, sizeB) / hi
	}
	return mutualScore + ratio*networkSizeCap
}

func behaviorMatch(a, b model.Behavior) float64 {
	if a.IsZero() || b.IsZero() {
		return neutralScore
	}

	score := math.Max(0, neutralScore-activityPenalty*math.Abs(a.ActivityScore-b.ActivityScore))

	modeA := model.MeetingMode(strings.ToLower(strings.TrimSpace(string(a.MeetingMode))))
	modeB := model.MeetingMode(strings.ToLower(strings.TrimSpace(string(b.MeetingMode))))
	if modeA != "" && modeB != "" && (modeA == modeB || modeA == model.MeetingBoth || modeB == model.MeetingBoth) {
		score += meetingBonus
	}

	if a.AvgResponseMinutes > 0 && b.AvgResponseMinutes > 0 &&
		(a.AvgResponseMinutes+b.AvgResponseMinutes)/2 < fastLatencyMins {
		score += latencyBonus
	}

	return math.Min(score, maxScore)
}

func confidence(a, b model.Profile) int {
	completeness := float64(Completeness(a)+Completeness(b)) / 2

	verified := 0
	for _, c := range a.Capabilities {
		if c.Verified {
			verified++
		}
	}
	for _, c := range b.Capabilities {
		if c.Verified {
			verified++
		}
	}
	bonus := verified * verifiedPoints
	if bonus > verifiedCap {
		bonus = verifiedCap
	}

	return clampInt(math.Round(baseConfidence + completeness*completenessShare + float64(bonus)))
}

func reasons(needs, capability, behavior float64, mutual int) []string {
	out := make([]string, 0, 4)
	if needs > reasonThresholdHigh {
		out = append(out, ReasonNeeds)
	}
	switch {
	case capability > reasonThresholdHigh:
		out = append(out, ReasonDomainOverlap)
	case capability > reasonThresholdMid:
		out = append(out, ReasonComplementary)
	}
	if mutual > 0 {
		out = append(out, fmt.Sprintf(reasonMutualConnection, mutual))
	}
	if behavior > reasonThresholdHigh {
		out = append(out, ReasonWorkingStyle)
	}
	if len(out) == 0 {
		out = append(out, ReasonFallback)
	}
	return out
}

func clampInt(x float64) int {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > maxScore:
		return int(maxScore)
	default:
		return int(x)
	}
}
