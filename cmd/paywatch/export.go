package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/storage"
)

var (
	flagExportKind   string
	flagExportFormat string
	flagExportOut    string
)

func init() {
	exportCmd.Flags().StringVar(&flagExportKind, "what", "payments", "What to export: payments|submissions")
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "json", "Output format: json|csv")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output file (default stdout)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded payments or submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		var w io.Writer = cmd.OutOrStdout()
		if flagExportOut != "" {
			f, err := os.Create(flagExportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", flagExportOut, err)
			}
			defer f.Close()
			w = f
		}
		return export(cmd.Context(), store, w, flagExportKind, flagExportFormat, cfg.Module.StreamID())
	},
}

func export(ctx context.Context, store *storage.Store, w io.Writer, kind, format, streamID string) error {
	if format != "json" && format != "csv" {
		return fmt.Errorf("unsupported format: %s", format)
	}
	switch kind {
	case "payments":
		rows, err := store.ListPayments(ctx, streamID)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(w, rows)
		}
		header := []string{"stream_id", "sequence_number", "payment_id", "sender", "amount_octas", "amount_apt", "timestamp", "additional_data", "treasury", "version"}
		records := make([][]string, 0, len(rows))
		for _, r := range rows {
			records = append(records, []string{
				r.StreamID,
				strconv.FormatUint(r.SequenceNumber, 10),
				r.PaymentID,
				r.Sender,
				strconv.FormatUint(r.Amount, 10),
				ledger.FormatAPT(r.Amount),
				time.Unix(int64(r.Timestamp), 0).UTC().Format(time.RFC3339),
				r.AdditionalData,
				r.Treasury,
				strconv.FormatUint(r.Version, 10),
			})
		}
		return writeCSV(w, header, records)
	case "submissions":
		rows, err := store.ListSubmissions(ctx)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeJSON(w, rows)
		}
		header := []string{"payment_id", "amount_octas", "state", "txhash", "vm_status", "gas_used", "version", "error", "updated_at"}
		records := make([][]string, 0, len(rows))
		for _, s := range rows {
			records = append(records, []string{
				s.PaymentID,
				strconv.FormatUint(s.Amount, 10),
				string(s.State),
				s.TxHash,
				s.VMStatus,
				strconv.FormatUint(s.GasUsed, 10),
				strconv.FormatUint(s.Version, 10),
				s.Error,
				s.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeCSV(w, header, records)
	default:
		return fmt.Errorf("unsupported export kind: %s", kind)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}
