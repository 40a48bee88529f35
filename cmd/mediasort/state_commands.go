package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"mediasort/internal/checkpoint"
	"mediasort/internal/config"
	"mediasort/internal/fingerprint"
	"mediasort/internal/index"
	"mediasort/internal/logging"
)

type stateSummary struct {
	StateDir          string `json:"state_dir"`
	IndexPath         string `json:"index_path"`
	IndexEntries      int    `json:"index_entries"`
	CheckpointPath    string `json:"checkpoint_path"`
	CheckpointEntries int    `json:"checkpoint_entries"`
	JournalPath       string `json:"journal_path"`
	JournalEnabled    bool   `json:"journal_enabled"`
}

type staleEntry struct {
	Digest     string    `json:"digest"`
	Path       string    `json:"path"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newStateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show fingerprint index and checkpoint status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			idx, cp, err := openStoresReadOnly(cfg)
			if err != nil {
				return err
			}
			summary := stateSummary{
				StateDir:          cfg.Paths.StateDir,
				IndexPath:         idx.Path(),
				IndexEntries:      idx.Len(),
				CheckpointPath:    cp.Path(),
				CheckpointEntries: cp.Len(),
				JournalPath:       cfg.JournalPath(),
				JournalEnabled:    cfg.Ingest.Journal,
			}
			if asJSON {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Store", "Entries", "Path"},
				[][]string{
					{"Fingerprint index", strconv.Itoa(summary.IndexEntries), summary.IndexPath},
					{"Checkpoint", strconv.Itoa(summary.CheckpointEntries), summary.CheckpointPath},
				},
				[]columnAlignment{alignLeft, alignRight, alignLeft},
				shouldColorize(out),
			))
			fmt.Fprintf(out, "Journal: %s (enabled: %s)\n", summary.JournalPath, yesNo(summary.JournalEnabled))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	cmd.AddCommand(newStateVerifyCommand(ctx))
	return cmd
}

func newStateVerifyCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "List index entries whose canonical file is missing",
		Long: "Stale entries are harmless: the next file with the same content\n" +
			"replaces them and becomes the new canonical copy.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			idx, _, err := openStoresReadOnly(cfg)
			if err != nil {
				return err
			}
			stale, err := idx.Stale()
			if err != nil {
				return fmt.Errorf("verify index: %w", err)
			}
			views := make([]staleEntry, 0, len(stale))
			for _, e := range stale {
				views = append(views, staleEntry{Digest: e.Digest.String(), Path: e.Path, RecordedAt: e.RecordedAt})
			}
			if asJSON {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintf(out, "All %d index entries point at existing files\n", idx.Len())
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{fingerprint.Digest(v.Digest).Short(), v.Path, v.RecordedAt.Local().Format(time.DateTime)})
			}
			fmt.Fprintln(out, renderTable([]string{"Digest", "Missing canonical", "Recorded"}, rows, nil, shouldColorize(out)))
			fmt.Fprintf(out, "%d of %d index entries are stale; they self-heal on the next matching file\n", len(views), idx.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func openStoresReadOnly(cfg *config.Config) (*index.Index, *checkpoint.Store, error) {
	fs := afero.NewReadOnlyFs(afero.NewOsFs())
	logger := logging.NewNop()
	idx, err := index.Open(fs, cfg.IndexPath(), logger, index.ReadOnly())
	if err != nil {
		return nil, nil, err
	}
	cp, err := checkpoint.Open(fs, cfg.CheckpointPath(), logger, checkpoint.ReadOnly())
	if err != nil {
		return nil, nil, err
	}
	return idx, cp, nil
}
