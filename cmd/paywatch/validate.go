package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/engine"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/source/aptos"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping the Aptos node",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)
		fmt.Fprintf(out, "- event type: %s (%s mode)\n", cfg.Module.EventType(), cfg.Poller.FetchMode)

		runs, err := engine.NextRuns(cfg.Poller.Schedule, time.Now().UTC(), 3)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "- schedule %q, next runs:", cfg.Poller.Schedule)
		for _, r := range runs {
			fmt.Fprintf(out, " %s", r.Format(time.RFC3339))
		}
		fmt.Fprintln(out)

		if cfg.Payment.PrivateKey != "" {
			signer, err := aptos.ParsePrivateKey(cfg.Payment.PrivateKey)
			if err != nil {
				return fmt.Errorf("payment.private_key: %w", err)
			}
			fmt.Fprintf(out, "- sender: %s\n", signer.Address())
		}

		client := newClient(cfg)
		failures := 0

		info, err := client.LedgerInfo(ctx)
		switch {
		case err != nil:
			failures++
			fmt.Fprintf(out, "- node %s: ERROR %v\n", client.URL(), err)
		case cfg.Node.ChainID != 0 && info.ChainID != cfg.Node.ChainID:
			failures++
			fmt.Fprintf(out, "- node %s: ERROR chain_id %d, node.chain_id expects %d\n", client.URL(), info.ChainID, cfg.Node.ChainID)
		default:
			fmt.Fprintf(out, "- node %s: chain_id %d, ledger version %d OK\n", client.URL(), info.ChainID, uint64(info.LedgerVersion))
		}

		if _, err := client.Account(ctx, cfg.Module.Address); err != nil {
			failures++
			fmt.Fprintf(out, "- module account %s: ERROR %v\n", aptos.ShortAddress(cfg.Module.Address), err)
		} else {
			fmt.Fprintf(out, "- module account %s: OK\n", aptos.ShortAddress(cfg.Module.Address))
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}

		fmt.Fprintf(out, "- minimum payment: %s APT\n", ledger.FormatAPT(cfg.Payment.MinAmount))
		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
