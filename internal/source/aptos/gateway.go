package aptos

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devblac/paywatch/internal/ledger"
)

// GatewayConfig carries the gas and confirmation settings for submissions.
// A zero GasUnitPrice asks the node for an estimate.
type GatewayConfig struct {
	MaxGasAmount   uint64
	GasUnitPrice   uint64
	ExpirationSecs uint64
	WaitTimeout    time.Duration
	PollInterval   time.Duration
}

// Gateway implements ledger.TxGateway against an Aptos fullnode.
type Gateway struct {
	client  *Client
	signer  *Signer
	cfg     GatewayConfig
	logger  *slog.Logger
	nowFunc func() time.Time
}

var _ ledger.TxGateway = (*Gateway)(nil)

func NewGateway(client *Client, signer *Signer, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.MaxGasAmount == 0 {
		cfg.MaxGasAmount = 200_000
	}
	if cfg.ExpirationSecs == 0 {
		cfg.ExpirationSecs = 600
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, signer: signer, cfg: cfg, logger: logger, nowFunc: time.Now}
}

// Sender is the address transactions are signed for.
func (g *Gateway) Sender() string { return g.signer.Address().String() }

func (g *Gateway) BuildTransaction(ctx context.Context, req ledger.TxRequest) (*ledger.BuiltTx, error) {
	const op = "build transaction"

	sender, err := ParseAddress(req.Sender)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrInvalidArgument, op, "sender", err)
	}
	if sender != g.signer.Address() {
		return nil, ledger.NewError(ledger.ErrInvalidArgument, op,
			fmt.Sprintf("sender %s does not match signing key %s", sender, g.signer.Address()), nil)
	}
	module, err := ParseAddress(req.Function.Address)
	if err != nil {
		return nil, ledger.NewError(ledger.ErrInvalidArgument, op, "function address", err)
	}
	if req.Function.Module == "" || req.Function.Name == "" {
		return nil, ledger.NewError(ledger.ErrInvalidArgument, op, "function "+req.Function.String(), nil)
	}
	args := make([][]byte, 0, len(req.Args))
	for i, a := range req.Args {
		enc, err := encodeArg(a)
		if err != nil {
			return nil, ledger.NewError(ledger.ErrInvalidArgument, op, fmt.Sprintf("argument %d", i), err)
		}
		args = append(args, enc)
	}

	info, err := g.client.LedgerInfo(ctx)
	if err != nil {
		return nil, classify(op, err, ledger.ErrNetwork)
	}
	acct, err := g.client.Account(ctx, sender.String())
	if err != nil {
		if IsNotFound(err) {
			return nil, ledger.NewError(ledger.ErrInvalidArgument, op, "sender account does not exist", err)
		}
		return nil, classify(op, err, ledger.ErrInvalidArgument)
	}
	gasPrice := g.cfg.GasUnitPrice
	if gasPrice == 0 {
		est, err := g.client.EstimateGasPrice(ctx)
		if err != nil {
			return nil, classify(op, err, ledger.ErrNetwork)
		}
		gasPrice = uint64(est.GasEstimate)
	}

	raw := rawTransaction{
		Sender:         sender,
		SequenceNumber: uint64(acct.SequenceNumber),
		Module:         module,
		ModuleName:     req.Function.Module,
		Function:       req.Function.Name,
		Args:           args,
		MaxGasAmount:   g.cfg.MaxGasAmount,
		GasUnitPrice:   gasPrice,
		ExpirationSecs: uint64(g.nowFunc().Unix()) + g.cfg.ExpirationSecs,
		ChainID:        uint8(info.ChainID),
	}
	g.logger.Debug("transaction built",
		"function", req.Function.String(),
		"sequence_number", raw.SequenceNumber,
		"gas_unit_price", raw.GasUnitPrice,
		"chain_id", raw.ChainID,
	)
	return &ledger.BuiltTx{
		Request:        req,
		SequenceNumber: raw.SequenceNumber,
		MaxGasAmount:   raw.MaxGasAmount,
		GasUnitPrice:   raw.GasUnitPrice,
		ExpirationSecs: raw.ExpirationSecs,
		ChainID:        raw.ChainID,
		Raw:            raw.encode(),
	}, nil
}

// Simulate dry-runs tx. The node rejects simulations carrying a valid
// signature, so a zeroed one is attached.
func (g *Gateway) Simulate(ctx context.Context, tx *ledger.BuiltTx) (*ledger.Simulation, error) {
	const op = "simulate"
	if tx == nil || len(tx.Raw) == 0 {
		return nil, ledger.NewError(ledger.ErrInvalidArgument, op, "transaction not built", nil)
	}
	signed := encodeSigned(tx.Raw, g.signer.PublicKey(), make([]byte, ed25519.SignatureSize))
	results, err := g.client.SimulateBCS(ctx, signed)
	if err != nil {
		return nil, classify(op, err, ledger.ErrSimulationRejected)
	}
	if len(results) == 0 {
		return nil, ledger.NewError(ledger.ErrNetwork, op, "empty simulation response", nil)
	}
	r := results[0]
	return &ledger.Simulation{Success: r.Success, VMStatus: r.VMStatus, GasUsed: uint64(r.GasUsed)}, nil
}

func (g *Gateway) SignAndSubmit(ctx context.Context, tx *ledger.BuiltTx) (string, error) {
	const op = "submit"
	if tx == nil || len(tx.Raw) == 0 {
		return "", ledger.NewError(ledger.ErrInvalidArgument, op, "transaction not built", nil)
	}
	sig := g.signer.SignTransaction(tx.Raw)
	pending, err := g.client.SubmitBCS(ctx, encodeSigned(tx.Raw, g.signer.PublicKey(), sig))
	if err != nil {
		return "", classify(op, err, ledger.ErrLedgerRejected)
	}
	if pending.Hash == "" {
		return "", ledger.NewError(ledger.ErrNetwork, op, "node returned no transaction hash", nil)
	}
	return pending.Hash, nil
}

var errStillPending = errors.New("transaction pending")

// AwaitConfirmation polls the node with exponential backoff until hash is
// executed or the wait timeout elapses.
func (g *Gateway) AwaitConfirmation(ctx context.Context, hash string) (*ledger.Confirmation, error) {
	const op = "await confirmation"

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.PollInterval
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = g.cfg.WaitTimeout

	var done *Transaction
	poll := func() error {
		tx, err := g.client.TransactionByHash(ctx, hash)
		switch {
		case err == nil && tx.Pending():
			return errStillPending
		case err == nil:
			done = tx
			return nil
		case IsNotFound(err):
			// not yet visible to this node
			return errStillPending
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429 {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		g.logger.Debug("waiting for transaction", "hash", hash, "reason", err, "retry_in", next)
	}

	err := backoff.RetryNotify(poll, backoff.WithContext(bo, ctx), notify)
	switch {
	case err == nil:
	case errors.Is(err, errStillPending):
		return nil, ledger.NewError(ledger.ErrTimeout, op,
			fmt.Sprintf("%s not confirmed within %s", hash, g.cfg.WaitTimeout), nil)
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, fmt.Errorf("%s %s: %w", op, hash, ctx.Err())
	case ctx.Err() != nil:
		return nil, ledger.NewError(ledger.ErrTimeout, op, hash, ctx.Err())
	default:
		return nil, classify(op, err, ledger.ErrNetwork)
	}

	if done.Hash == "" {
		done.Hash = hash
	}
	return &ledger.Confirmation{
		Hash:     done.Hash,
		Success:  done.Success,
		VMStatus: done.VMStatus,
		GasUsed:  uint64(done.GasUsed),
		Version:  uint64(done.Version),
	}, nil
}
