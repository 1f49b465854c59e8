package submit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/metrics"
	"github.com/devblac/paywatch/internal/storage"
)

// Recorder persists the latest state of a submission.
type Recorder interface {
	SaveSubmission(ctx context.Context, sub storage.Submission) error
}

// Config names the entry function to call and who signs for it.
type Config struct {
	Sender        string
	ModuleAddress string
	ModuleName    string
	Function      string
	MinAmount     uint64
}

type PaymentRequest struct {
	PaymentID      string
	Amount         uint64
	AdditionalData string
}

// Receipt is everything observed while submitting one payment.
type Receipt struct {
	PaymentID    string
	Amount       uint64
	States       []ledger.TxState
	Built        *ledger.BuiltTx
	Simulation   *ledger.Simulation
	Hash         string
	Confirmation *ledger.Confirmation
}

// State is the most recent state, or "" before the transaction was built.
func (r *Receipt) State() ledger.TxState {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

// Pipeline submits process_payment transactions one at a time:
// build, simulate, gate on the simulation, sign, submit, await.
// Nothing is retried.
type Pipeline struct {
	gateway  ledger.TxGateway
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New returns a Pipeline. recorder and m may be nil.
func New(gateway ledger.TxGateway, cfg Config, recorder Recorder, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.ModuleName == "" {
		cfg.ModuleName = "payment"
	}
	if cfg.Function == "" {
		cfg.Function = "process_payment"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{gateway: gateway, cfg: cfg, recorder: recorder, logger: logger, metrics: m}
}

// SubmitPayment runs one payment through the pipeline. On a committed VM
// failure it returns both the receipt and an ErrLedgerRejected error.
func (p *Pipeline) SubmitPayment(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	rec := &Receipt{PaymentID: req.PaymentID, Amount: req.Amount}
	log := p.logger.With("payment_id", req.PaymentID, "amount_octas", req.Amount)

	txReq := ledger.TxRequest{
		Sender: p.cfg.Sender,
		Function: ledger.FunctionID{
			Address: p.cfg.ModuleAddress,
			Module:  p.cfg.ModuleName,
			Name:    p.cfg.Function,
		},
		Args: []ledger.Arg{
			ledger.AddressArg(p.cfg.ModuleAddress),
			ledger.BytesArg([]byte(req.PaymentID)),
			ledger.BytesArg([]byte(req.AdditionalData)),
			ledger.U64Arg(strconv.FormatUint(req.Amount, 10)),
		},
	}

	log.Info("building transaction", "function", txReq.Function.String(), "sender", p.cfg.Sender)
	built, err := p.gateway.BuildTransaction(ctx, txReq)
	if err != nil {
		return p.abort(ctx, rec, "", fmt.Errorf("build: %w", err))
	}
	rec.Built = built
	p.transition(ctx, rec, ledger.TxBuilt, "", nil)
	log.Info("transaction built",
		"sequence_number", built.SequenceNumber,
		"max_gas_amount", built.MaxGasAmount,
		"gas_unit_price", built.GasUnitPrice,
		"chain_id", built.ChainID)

	sim, err := p.gateway.Simulate(ctx, built)
	if err != nil {
		return p.abort(ctx, rec, "", fmt.Errorf("simulate: %w", err))
	}
	rec.Simulation = sim
	if !sim.Success {
		p.transition(ctx, rec, ledger.TxSimulatedFailed, sim.VMStatus, nil)
		log.Warn("simulation failed, not submitting", "vm_status", sim.VMStatus, "gas_used", sim.GasUsed)
		return rec, ledger.NewError(ledger.ErrSimulationRejected, "simulate", sim.VMStatus, nil)
	}
	p.transition(ctx, rec, ledger.TxSimulatedOK, sim.VMStatus, nil)
	log.Info("simulation succeeded", "vm_status", sim.VMStatus, "gas_used", sim.GasUsed)

	hash, err := p.gateway.SignAndSubmit(ctx, built)
	if err != nil {
		return p.abort(ctx, rec, "", fmt.Errorf("submit: %w", err))
	}
	rec.Hash = hash
	p.transition(ctx, rec, ledger.TxSubmitted, "", nil)
	log.Info("transaction submitted", "txhash", hash)

	conf, err := p.gateway.AwaitConfirmation(ctx, hash)
	if err != nil {
		return p.abort(ctx, rec, hash, fmt.Errorf("await %s: %w", hash, err))
	}
	rec.Confirmation = conf
	if !conf.Success {
		p.transition(ctx, rec, ledger.TxConfirmedFailed, conf.VMStatus, nil)
		log.Error("transaction failed on chain", "txhash", hash, "vm_status", conf.VMStatus, "version", conf.Version)
		return rec, ledger.NewError(ledger.ErrLedgerRejected, "confirm", conf.VMStatus, nil)
	}
	p.transition(ctx, rec, ledger.TxConfirmedOK, conf.VMStatus, nil)
	log.Info("transaction confirmed", "txhash", hash, "version", conf.Version, "gas_used", conf.GasUsed)
	return rec, nil
}

func (p *Pipeline) validate(req PaymentRequest) error {
	if strings.TrimSpace(req.PaymentID) == "" {
		return ledger.NewError(ledger.ErrValidation, "submit payment", "payment id is required", nil)
	}
	if req.Amount < p.cfg.MinAmount {
		return ledger.NewError(ledger.ErrValidation, "submit payment",
			fmt.Sprintf("amount %d is below the minimum of %d octas", req.Amount, p.cfg.MinAmount), nil)
	}
	return nil
}

func (p *Pipeline) abort(ctx context.Context, rec *Receipt, hash string, err error) (*Receipt, error) {
	p.transition(ctx, rec, ledger.TxFailed, "", err)
	p.metrics.Error(ledger.KindOf(err))
	p.logger.Error("payment submission failed", "payment_id", rec.PaymentID, "txhash", hash, "error", err, "kind", ledger.KindOf(err))
	return rec, err
}

func (p *Pipeline) transition(ctx context.Context, rec *Receipt, state ledger.TxState, vmStatus string, cause error) {
	rec.States = append(rec.States, state)
	if state.Terminal() {
		p.metrics.Submission(string(state))
	}
	if p.recorder == nil {
		return
	}
	sub := storage.Submission{
		PaymentID: rec.PaymentID,
		Amount:    rec.Amount,
		State:     state,
		TxHash:    rec.Hash,
		VMStatus:  vmStatus,
	}
	if rec.Simulation != nil && sub.VMStatus == "" {
		sub.VMStatus = rec.Simulation.VMStatus
	}
	if rec.Confirmation != nil {
		sub.GasUsed = rec.Confirmation.GasUsed
		sub.Version = rec.Confirmation.Version
	} else if rec.Simulation != nil {
		sub.GasUsed = rec.Simulation.GasUsed
	}
	if cause != nil {
		sub.Error = cause.Error()
	}
	// a cancelled submission still gets its final state written
	if err := p.recorder.SaveSubmission(context.WithoutCancel(ctx), sub); err != nil {
		p.logger.Warn("record submission", "payment_id", rec.PaymentID, "state", state, "error", err)
	}
}
