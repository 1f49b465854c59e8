package submit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/storage"
)

const (
	testSender = "0x63c5215e87770d17b9f4cd47c777e322f4eb152cfd2054c1080fd9d57c48913b"
	testModule = "0x1"
	testHash   = "0xfeed"
)

type fakeGateway struct {
	calls []string

	buildErr  error
	simulate  ledger.Simulation
	simErr    error
	submitErr error
	confirm   ledger.Confirmation
	awaitErr  error

	lastReq ledger.TxRequest
}

func (g *fakeGateway) BuildTransaction(_ context.Context, req ledger.TxRequest) (*ledger.BuiltTx, error) {
	g.calls = append(g.calls, "build")
	g.lastReq = req
	if g.buildErr != nil {
		return nil, g.buildErr
	}
	return &ledger.BuiltTx{Request: req, SequenceNumber: 7, MaxGasAmount: 200_000, GasUnitPrice: 100, ChainID: 2}, nil
}

func (g *fakeGateway) Simulate(_ context.Context, _ *ledger.BuiltTx) (*ledger.Simulation, error) {
	g.calls = append(g.calls, "simulate")
	if g.simErr != nil {
		return nil, g.simErr
	}
	sim := g.simulate
	return &sim, nil
}

func (g *fakeGateway) SignAndSubmit(_ context.Context, _ *ledger.BuiltTx) (string, error) {
	g.calls = append(g.calls, "submit")
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return testHash, nil
}

func (g *fakeGateway) AwaitConfirmation(_ context.Context, hash string) (*ledger.Confirmation, error) {
	g.calls = append(g.calls, "await")
	if g.awaitErr != nil {
		return nil, g.awaitErr
	}
	conf := g.confirm
	conf.Hash = hash
	return &conf, nil
}

func okGateway() *fakeGateway {
	return &fakeGateway{
		simulate: ledger.Simulation{Success: true, VMStatus: "Executed successfully", GasUsed: 12},
		confirm:  ledger.Confirmation{Success: true, VMStatus: "Executed successfully", GasUsed: 11, Version: 99},
	}
}

func newPipeline(gw ledger.TxGateway, rec Recorder) *Pipeline {
	cfg := Config{Sender: testSender, ModuleAddress: testModule, MinAmount: 1_000_000}
	return New(gw, cfg, rec, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestSubmitPaymentHappyPath(t *testing.T) {
	gw := okGateway()
	store, err := storage.Open(filepath.Join(t.TempDir(), "submit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec, err := newPipeline(gw, store).SubmitPayment(context.Background(), PaymentRequest{
		PaymentID: "order-1", Amount: 1_000_000, AdditionalData: "vip",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"build", "simulate", "submit", "await"}, gw.calls)
	assert.Equal(t, []ledger.TxState{ledger.TxBuilt, ledger.TxSimulatedOK, ledger.TxSubmitted, ledger.TxConfirmedOK}, rec.States)
	assert.Equal(t, ledger.TxConfirmedOK, rec.State())
	assert.Equal(t, testHash, rec.Hash)
	assert.Equal(t, uint64(99), rec.Confirmation.Version)

	req := gw.lastReq
	assert.Equal(t, testSender, req.Sender)
	assert.Equal(t, "0x1::payment::process_payment", req.Function.String())
	require.Len(t, req.Args, 4)
	assert.Equal(t, ledger.AddressArg(testModule), req.Args[0])
	assert.Equal(t, []byte("order-1"), req.Args[1].Bytes)
	assert.Equal(t, []byte("vip"), req.Args[2].Bytes)
	assert.Equal(t, ledger.U64Arg("1000000"), req.Args[3])

	subs, err := store.ListSubmissions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, ledger.TxConfirmedOK, subs[0].State)
	assert.Equal(t, testHash, subs[0].TxHash)
	assert.Equal(t, uint64(11), subs[0].GasUsed)
}

func TestSubmitPaymentValidationShortCircuits(t *testing.T) {
	tests := []struct {
		name string
		req  PaymentRequest
	}{
		{"below minimum", PaymentRequest{PaymentID: "order-1", Amount: 999_999}},
		{"empty id", PaymentRequest{PaymentID: "  ", Amount: 1_000_000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := okGateway()
			rec, err := newPipeline(gw, nil).SubmitPayment(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrValidation)
			assert.Nil(t, rec)
			assert.Empty(t, gw.calls)
		})
	}
}

func TestSubmitPaymentSimulationGate(t *testing.T) {
	gw := okGateway()
	gw.simulate = ledger.Simulation{Success: false, VMStatus: "Move abort: EINSUFFICIENT_BALANCE"}

	rec, err := newPipeline(gw, nil).SubmitPayment(context.Background(), PaymentRequest{PaymentID: "order-1", Amount: 2_000_000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrSimulationRejected)
	assert.Contains(t, err.Error(), "EINSUFFICIENT_BALANCE")
	assert.Equal(t, []string{"build", "simulate"}, gw.calls)
	assert.Equal(t, ledger.TxSimulatedFailed, rec.State())
	assert.Empty(t, rec.Hash)
}

func TestSubmitPaymentCommittedFailure(t *testing.T) {
	gw := okGateway()
	gw.confirm = ledger.Confirmation{Success: false, VMStatus: "Out of gas", Version: 5}

	rec, err := newPipeline(gw, nil).SubmitPayment(context.Background(), PaymentRequest{PaymentID: "order-1", Amount: 1_000_000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrLedgerRejected)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.TxConfirmedFailed, rec.State())
	assert.Equal(t, testHash, rec.Confirmation.Hash)
}

func TestSubmitPaymentGatewayErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeGateway)
		kind  error
		calls []string
	}{
		{"build", func(g *fakeGateway) {
			g.buildErr = ledger.NewError(ledger.ErrInvalidArgument, "build transaction", "bad sender", nil)
		}, ledger.ErrInvalidArgument, []string{"build"}},
		{"simulate", func(g *fakeGateway) {
			g.simErr = ledger.NewError(ledger.ErrNetwork, "simulate", "connection refused", nil)
		}, ledger.ErrNetwork, []string{"build", "simulate"}},
		{"submit", func(g *fakeGateway) {
			g.submitErr = ledger.NewError(ledger.ErrLedgerRejected, "submit", "SEQUENCE_NUMBER_TOO_OLD", nil)
		}, ledger.ErrLedgerRejected, []string{"build", "simulate", "submit"}},
		{"await", func(g *fakeGateway) {
			g.awaitErr = ledger.NewError(ledger.ErrTimeout, "await confirmation", "", nil)
		}, ledger.ErrTimeout, []string{"build", "simulate", "submit", "await"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := okGateway()
			tt.setup(gw)
			rec, err := newPipeline(gw, nil).SubmitPayment(context.Background(), PaymentRequest{PaymentID: "order-1", Amount: 1_000_000})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.calls, gw.calls)
			assert.Equal(t, ledger.TxFailed, rec.State())
		})
	}
}
