package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/agentmatch/internal/adapters/repository"
	"github.com/okian/agentmatch/internal/domain/model"
	"github.com/okian/agentmatch/internal/domain/ranking"
	"github.com/okian/agentmatch/internal/domain/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rank profiles from a YAML fixture offline",
	Long:  "Scores every profile in a YAML fixture against the subject and prints the ranking as JSON. With --candidate only that pair is scored.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runScore(cmd, cmd.OutOrStdout(), scoreFlags)
	},
}

type scoreOptions struct {
	fixture   string
	subject   string
	candidate string
	limit     int
	industry  string
	location  string
}

var scoreFlags scoreOptions

func init() {
	scoreCmd.Flags().StringVarP(&scoreFlags.fixture, "fixture", "f", "", "Path to the YAML profile fixture (required)")
	scoreCmd.Flags().StringVarP(&scoreFlags.subject, "subject", "s", "", "Id of the profile to rank for (required)")
	scoreCmd.Flags().StringVarP(&scoreFlags.candidate, "candidate", "c", "", "Score only this candidate")
	scoreCmd.Flags().IntVarP(&scoreFlags.limit, "limit", "n", 10, "Number of ranked candidates to print (0 for all)")
	scoreCmd.Flags().StringVar(&scoreFlags.industry, "industry", "", "Only rank candidates whose industry contains this text")
	scoreCmd.Flags().StringVar(&scoreFlags.location, "location", "", "Only rank candidates whose location contains this text")

	if err := scoreCmd.MarkFlagRequired("fixture"); err != nil {
		panic(fmt.Sprintf("failed to mark fixture flag as required: %v", err))
	}
	if err := scoreCmd.MarkFlagRequired("subject"); err != nil {
		panic(fmt.Sprintf("failed to mark subject flag as required: %v", err))
	}

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, out io.Writer, opts scoreOptions) error {
	fixture, err := repository.LoadFixture(opts.fixture)
	if err != nil {
		return err
	}
	store := repository.NewProfileStore(fixture.Profiles...)
	ctx := cmd.Context()

	subject, err := store.Get(ctx, opts.subject)
	if err != nil {
		return fmt.Errorf("subject %q: %w", opts.subject, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if opts.candidate != "" {
		candidate, err := store.Get(ctx, opts.candidate)
		if err != nil {
			return fmt.Errorf("candidate %q: %w", opts.candidate, err)
		}
		return enc.Encode(ranking.Ranked{Profile: candidate, Score: scoring.Score(subject, candidate)})
	}

	all, err := store.List(ctx)
	if err != nil {
		return err
	}
	ranked, err := ranking.New(ranking.WithScorer(scoring.New())).Rank(ctx, subject, all, ranking.Options{
		Limit:       opts.limit,
		Preferences: model.Preferences{TargetIndustry: opts.industry, TargetLocation: opts.location},
	})
	if err != nil {
		return err
	}
	return enc.Encode(ranked)
}
