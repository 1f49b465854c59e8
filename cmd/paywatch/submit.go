package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/source/aptos"
	"github.com/devblac/paywatch/internal/storage"
	"github.com/devblac/paywatch/internal/submit"
)

var (
	flagPaymentID string
	flagAmount    uint64
	flagData      string
)

func init() {
	submitCmd.Flags().StringVar(&flagPaymentID, "payment-id", "", "Payment id (default payment-<uuid>)")
	submitCmd.Flags().Uint64Var(&flagAmount, "amount", 0, "Amount in octas (default payment.min_amount)")
	submitCmd.Flags().StringVar(&flagData, "data", "", "Additional data stored with the payment")
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Simulate, sign and submit one process_payment transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.ValidateForSubmit(); err != nil {
			return err
		}
		log := newLogger(cfg)

		signer, err := aptos.ParsePrivateKey(cfg.Payment.PrivateKey)
		if err != nil {
			return fmt.Errorf("payment.private_key: %w", err)
		}

		store, err := storage.Open(cfg.Global.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		gw := aptos.NewGateway(newClient(cfg), signer, aptos.GatewayConfig{
			MaxGasAmount:   cfg.Payment.MaxGasAmount,
			GasUnitPrice:   cfg.Payment.GasUnitPrice,
			ExpirationSecs: cfg.Payment.ExpirationSecs,
			WaitTimeout:    cfg.Payment.WaitTimeout,
		}, log)

		pipeline := submit.New(gw, submit.Config{
			Sender:        gw.Sender(),
			ModuleAddress: cfg.Module.Address,
			ModuleName:    cfg.Module.Name,
			Function:      cfg.Module.EntryFunction,
			MinAmount:     cfg.Payment.MinAmount,
		}, store, log, nil)

		req := submit.PaymentRequest{
			PaymentID:      flagPaymentID,
			Amount:         flagAmount,
			AdditionalData: flagData,
		}
		if req.PaymentID == "" {
			req.PaymentID = "payment-" + uuid.NewString()
		}
		// an explicit --amount 0 must reach validation, not the default
		if !cmd.Flags().Changed("amount") {
			req.Amount = cfg.Payment.MinAmount
		}

		fmt.Fprintf(out, "sender:     %s\n", gw.Sender())
		fmt.Fprintf(out, "payment id: %s\n", req.PaymentID)
		fmt.Fprintf(out, "amount:     %d octas (%s APT)\n", req.Amount, ledger.FormatAPT(req.Amount))

		rec, err := pipeline.SubmitPayment(ctx, req)
		if rec != nil {
			fmt.Fprintf(out, "state:      %s\n", rec.State())
			if rec.Simulation != nil {
				fmt.Fprintf(out, "simulation: %s (gas %d)\n", rec.Simulation.VMStatus, rec.Simulation.GasUsed)
			}
			if rec.Hash != "" {
				fmt.Fprintf(out, "txhash:     %s\n", rec.Hash)
				fmt.Fprintf(out, "explorer:   %s\n", aptos.ExplorerURL(rec.Hash, cfg.Node.Network))
			}
			if rec.Confirmation != nil {
				fmt.Fprintf(out, "version:    %d (gas %d)\n", rec.Confirmation.Version, rec.Confirmation.GasUsed)
			}
		}
		return err
	},
}
