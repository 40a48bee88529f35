package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediasort/internal/config"
	"mediasort/internal/faults"
	"mediasort/internal/ingest"
	"mediasort/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded ingest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				failures := run.Counts.HashFailures + run.Counts.MoveFailures + run.Counts.DeleteFailures
				rows = append(rows, []string{
					shortID(run.ID),
					run.StartedAt.Local().Format(time.DateTime),
					run.Mode,
					run.Status,
					strconv.Itoa(run.Counts.Total),
					strconv.Itoa(run.Counts.Uniques),
					strconv.Itoa(run.Counts.Duplicates),
					strconv.Itoa(failures),
					strconv.Itoa(run.Counts.Skipped),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Mode", "Status", "Total", "Unique", "Dup", "Failed", "Skipped"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				shouldColorize(out),
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var failuresOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "List the per-file outcomes of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := openJournal(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %q not found", args[0])
			}
			var kinds []string
			if failuresOnly {
				for _, k := range ingest.FailureKinds {
					kinds = append(kinds, string(k))
				}
			}
			outcomes, err := store.Outcomes(cmd.Context(), run.ID, kinds...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, outcomes)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s, %s)\n", run.ID, run.Mode, run.Status)
			fmt.Fprintf(out, "Input: %s\nOutput: %s\n", run.InputDir, run.OutputDir)
			if len(outcomes) == 0 {
				fmt.Fprintln(out, "No matching outcomes")
				return nil
			}
			rows := make([][]string, 0, len(outcomes))
			for _, o := range outcomes {
				target := o.Destination
				if target == "" {
					target = o.Detail
				}
				rows = append(rows, []string{strconv.Itoa(o.Seq), o.Outcome, o.Source, target})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Outcome", "Source", "Destination / detail"},
				rows,
				[]columnAlignment{alignRight},
				shouldColorize(out),
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&failuresOnly, "failures", false, "Only show hash, move, and delete failures")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func openJournal(cfg *config.Config) (*journal.Store, error) {
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return nil, faults.Wrap(faults.ErrStateCorruption, "state", "open journal", cfg.JournalPath(), err)
	}
	return store, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
