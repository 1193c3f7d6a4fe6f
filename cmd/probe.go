package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/agentmatch/internal/probe"
	"github.com/okian/agentmatch/pkg/logger"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Exercise a running server end to end",
	Long:  "Fetches the caller's top matches, dispatches toward them and polls every job until it finishes, checking that progress never goes backwards.",
	RunE:  runProbe,
}

var probeFlags probe.Config

func init() {
	probeCmd.Flags().StringVar(&probeFlags.BaseURL, "url", probe.DefaultBaseURL, "Base URL of the service")
	probeCmd.Flags().StringVarP(&probeFlags.UserID, "user", "u", "", "Caller identity sent as X-User-ID (required)")
	probeCmd.Flags().IntVarP(&probeFlags.Dispatches, "dispatches", "n", probe.DefaultDispatches, "Number of top matches to dispatch toward")
	probeCmd.Flags().DurationVar(&probeFlags.PollInterval, "interval", probe.DefaultPollInterval, "Delay between status polls")
	probeCmd.Flags().DurationVar(&probeFlags.Timeout, "timeout", probe.DefaultTimeout, "HTTP request timeout")
	probeCmd.Flags().DurationVar(&probeFlags.MaxWait, "max-wait", probe.DefaultMaxWait, "Give up waiting for jobs after this long")

	if err := probeCmd.MarkFlagRequired("user"); err != nil {
		panic(fmt.Sprintf("failed to mark user flag as required: %v", err))
	}

	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	summary, err := probe.Run(ctx, probeFlags)
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

func printSummary(out io.Writer, s probe.Summary) {
	fmt.Fprintf(out, "matches=%d accepted=%d refused=%d completed=%d failed=%d duration=%s\n",
		s.Matches, s.Accepted, s.Refused, s.Completed, s.Failed, s.Duration.Round(time.Millisecond))
	for _, j := range s.Jobs {
		switch {
		case j.Refused != "":
			fmt.Fprintf(out, "  %-20s refused: %s\n", j.CandidateID, j.Refused)
		case j.Report != nil:
			fmt.Fprintf(out, "  %-20s %s (%d polls) %s: %s\n", j.CandidateID, j.Final.Status, j.Polls, j.Report.Sentiment, j.Report.Summary)
		default:
			fmt.Fprintf(out, "  %-20s %s %d%% (%d polls) %s\n", j.CandidateID, j.Final.Status, j.Final.Progress, j.Polls, j.Final.Message)
		}
	}
}
