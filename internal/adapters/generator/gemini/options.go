package gemini

import (
	"strings"

	"github.com/okian/agentmatch/pkg/logger"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithModel sets the Gemini model name.
func WithModel(name string) Option {
	return func(g *Generator) {
		if name = strings.TrimSpace(name); name != "" {
			g.modelName = name
		}
	}
}

// WithRounds sets how many exchanges the agents have before analysis.
func WithRounds(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.rounds = n
		}
	}
}

// WithTemperature sets the sampling temperature of conversation turns.
func WithTemperature(t float32) Option {
	return func(g *Generator) {
		if t >= 0 {
			g.temperature = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}
