package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/litreview/internal/review"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				runs, err := a.runner.List(cmd.Context())
				if err != nil {
					return err
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}
}

func printRuns(w io.Writer, runs []review.RunInfo) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tTOPIC\tMILESTONE\tOUTCOME\tSTEPS\tUPDATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.RunID, truncate(r.Topic, 40), orDash(r.Milestone), orDash(r.Outcome),
			r.Steps, r.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

const (
	formatJSON     = "json"
	formatYAML     = "yaml"
	formatMarkdown = "markdown"
)

func newShowCmd(opts *rootOptions) *cobra.Command {
	var (
		format    string
		milestone string
	)
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run",
		Long: `show prints the latest state of a run as JSON or YAML, or its draft as
markdown. With --milestone it prints the state saved at that milestone
instead (search-complete, sectioning-complete, draft-complete or
final-complete).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				var (
					state review.State
					err   error
				)
				if milestone != "" {
					state, err = a.runner.LoadMilestone(cmd.Context(), args[0], milestone)
				} else {
					state, err = a.runner.Load(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return writeState(cmd.OutOrStdout(), state, format)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json, yaml or markdown")
	cmd.Flags().StringVar(&milestone, "milestone", "", "show the state saved at a milestone")
	return cmd
}

// writeState renders state in format.
func writeState(w io.Writer, state review.State, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(state); err != nil {
			return err
		}
		return enc.Close()
	case formatMarkdown:
		draft := state.FinalDraft
		if draft == "" {
			draft = state.CurrentDraft()
		}
		if draft == "" {
			return fmt.Errorf("%w: %s", review.ErrNoDraft, state.RunID)
		}
		_, err := io.WriteString(w, draft)
		return err
	default:
		return fmt.Errorf("unknown format %q (want json, yaml or markdown)", format)
	}
}

func newCleanCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean [run-id...]",
		Short: "Delete stored runs",
		Long: `clean deletes the given runs from the run store. With --all it deletes
every run and also removes the downloaded papers, extracted text, analysis
and drafts under the data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("give at least one run ID or --all")
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				ids := args
				if all {
					runs, err := a.runner.List(cmd.Context())
					if err != nil {
						return err
					}
					ids = make([]string, 0, len(runs))
					for _, r := range runs {
						ids = append(ids, r.RunID)
					}
				}

				var errs []error
				for _, id := range ids {
					if err := a.runner.Delete(cmd.Context(), id); err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				if all {
					if err := a.artifacts.Clean(); err != nil {
						errs = append(errs, err)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "removed data files under %s\n", a.cfg.Storage.DataDir)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every run and its data files")
	return cmd
}
