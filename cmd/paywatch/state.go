package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show cursors and recent submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cursors, closeCursors, err := openCursorStore(cfg, store)
		if err != nil {
			return fmt.Errorf("open cursor store: %w", err)
		}
		defer closeCursors()

		stream := cfg.Module.StreamID()
		fmt.Fprintf(out, "cursor store: %s\n", cfg.Global.CursorStore)
		seq, ok, err := cursors.GetCursor(ctx, stream)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(out, "- %s: %d\n", stream, seq)
		} else {
			fmt.Fprintf(out, "- %s: unset\n", stream)
		}

		if cfg.Global.CursorStore == "sqlite" {
			rows, err := store.ListCursors(ctx)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if r.StreamID == stream {
					continue
				}
				fmt.Fprintf(out, "- %s: %d (updated %s)\n", r.StreamID, r.SequenceNumber, r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
			}
		}

		subs, err := store.ListSubmissions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "submissions: %d\n", len(subs))
		for _, s := range subs {
			fmt.Fprintf(out, "- %s %s amount=%d", s.PaymentID, s.State, s.Amount)
			if s.TxHash != "" {
				fmt.Fprintf(out, " txhash=%s", s.TxHash)
			}
			if s.Error != "" {
				fmt.Fprintf(out, " error=%q", s.Error)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}
