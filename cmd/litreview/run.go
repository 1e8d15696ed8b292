package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/litreview/internal/review"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <topic>",
		Short: "Search, analyze and draft a review in one go",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.Join(args, " ")
			return withApp(cmd.Context(), opts, func(a *app) error {
				state, err := a.runner.Full(cmd.Context(), topic)
				return report(cmd.OutOrStdout(), a, state, err)
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <topic>",
		Short: "Find and download papers for a topic",
		Long: `search plans queries for the topic, searches Semantic Scholar, selects the
most cited open-access papers and downloads their PDFs. Continue the run
with "litreview generate <run-id>".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.Join(args, " ")
			return withApp(cmd.Context(), opts, func(a *app) error {
				state, err := a.runner.Search(cmd.Context(), topic)
				return report(cmd.OutOrStdout(), a, state, err)
			})
		},
	}
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <run-id>",
		Short: "Continue a run until the review is drafted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				state, err := a.runner.Generate(cmd.Context(), args[0])
				return report(cmd.OutOrStdout(), a, state, err)
			})
		},
	}
}

func newReviseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revise <run-id>",
		Short: "Critique and revise the draft of a run again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				state, err := a.runner.Revise(cmd.Context(), args[0])
				return report(cmd.OutOrStdout(), a, state, err)
			})
		},
	}
}

// report prints the outcome of a workflow call. A failed run still prints
// what it reached so it can be resumed.
func report(w io.Writer, a *app, state review.State, err error) error {
	if state.RunID != "" {
		printSummary(w, state)
		if cost := a.runner.Cost(state.RunID); cost.Calls > 0 {
			fmt.Fprintf(w, "Cost:       %s\n", cost)
		}
		switch {
		case err != nil && state.Cursor != "":
			fmt.Fprintf(w, "\nResume with: litreview generate %s\n", state.RunID)
		case err == nil && !state.Done:
			fmt.Fprintf(w, "\nNext: litreview generate %s\n", state.RunID)
		case err == nil && state.FinalDraft != "":
			fmt.Fprintf(w, "\nRead the draft with: litreview show %s --format markdown\n", state.RunID)
		}
	}
	return err
}

func printSummary(w io.Writer, s review.State) {
	fmt.Fprintf(w, "Run:        %s\n", s.RunID)
	fmt.Fprintf(w, "Topic:      %s\n", s.Topic)
	fmt.Fprintf(w, "Milestone:  %s\n", orDash(s.Milestone))
	if s.Outcome != "" {
		fmt.Fprintf(w, "Outcome:    %s\n", s.Outcome)
	}
	if len(s.SelectedPapers) > 0 {
		fmt.Fprintf(w, "Papers:     %d selected of %d found\n", len(s.SelectedPapers), len(s.CandidatePapers))
		for _, p := range s.SelectedPapers {
			fmt.Fprintf(w, "  - %s (%d, %d citations)\n", p.Title, p.Year, p.CitationCount)
		}
	}
	if s.Critique != nil {
		fmt.Fprintf(w, "Critique:   %d/10, %d revision(s)\n", s.Critique.CoherenceScore, s.RevisionCount)
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(w, "Warnings:   %d\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
