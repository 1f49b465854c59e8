package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devblac/paywatch/internal/source/aptos"
)

func TestHealthEndpoint(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	fail := func(ctx context.Context) error { return context.DeadlineExceeded }

	tests := []struct {
		name       string
		checker    Checker
		wantCode   int
		wantStatus string
		wantDB     string
		wantNode   string
	}{
		{"all_ok", Checker{DBPing: ok, NodePing: ok}, http.StatusOK, "ok", "ok", "ok"},
		{"db_fail", Checker{DBPing: fail, NodePing: ok}, http.StatusServiceUnavailable, "degraded", "fail", "ok"},
		{"node_fail", Checker{DBPing: ok, NodePing: fail}, http.StatusServiceUnavailable, "degraded", "ok", "fail"},
		{"both_fail", Checker{DBPing: fail, NodePing: fail}, http.StatusServiceUnavailable, "degraded", "fail", "fail"},
		{"no_checkers", Checker{}, http.StatusOK, "ok", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()

			Handler(tt.checker).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp map[string]string
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["status"] != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp["status"], tt.wantStatus)
			}
			if resp["db"] != tt.wantDB {
				t.Errorf("db = %q, want %q", resp["db"], tt.wantDB)
			}
			if resp["node"] != tt.wantNode {
				t.Errorf("node = %q, want %q", resp["node"], tt.wantNode)
			}
		})
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := Serve("127.0.0.1:0", Checker{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Shutdown(ctx, srv); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

type stubLedger struct {
	info *aptos.LedgerInfo
	err  error
}

func (s stubLedger) LedgerInfo(context.Context) (*aptos.LedgerInfo, error) { return s.info, s.err }

func TestNodeChecker(t *testing.T) {
	ctx := context.Background()

	if err := NewNodeChecker(stubLedger{info: &aptos.LedgerInfo{ChainID: 2}}, 2).Ping(ctx); err != nil {
		t.Fatalf("expected healthy node, got %v", err)
	}
	if err := NewNodeChecker(stubLedger{info: &aptos.LedgerInfo{ChainID: 1}}, 0).Ping(ctx); err != nil {
		t.Fatalf("chain id 0 accepts any chain, got %v", err)
	}
	if err := NewNodeChecker(stubLedger{info: &aptos.LedgerInfo{ChainID: 1}}, 2).Ping(ctx); err == nil {
		t.Fatal("expected chain id mismatch")
	}
	if err := NewNodeChecker(stubLedger{err: errors.New("dial tcp: refused")}, 0).Ping(ctx); err == nil {
		t.Fatal("expected node error")
	}
}
