package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/engine"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/logging"
	"github.com/devblac/paywatch/internal/source/aptos"
	"github.com/devblac/paywatch/internal/storage"
)

// newLogger prefers LOG_LEVEL over global.log_level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" && cfg != nil {
		level = cfg.Global.LogLevel
	}
	return logging.NewWithLevel(level)
}

func newClient(cfg *config.Config) *aptos.Client {
	return aptos.NewClient(cfg.Node.URL, aptos.Options{
		IndexerURL: cfg.Node.IndexerURL,
		APIKey:     cfg.Node.APIKey,
		Timeout:    cfg.Node.Timeout,
		RPS:        cfg.Node.RPS,
		Burst:      cfg.Node.Burst,
	})
}

func newFetcher(cfg *config.Config, client *aptos.Client) (ledger.EventFetcher, error) {
	switch cfg.Poller.FetchMode {
	case "rest":
		return aptos.NewRESTEvents(client, cfg.Module.Address, cfg.Module.EventHandleStruct(), cfg.Module.EventField), nil
	case "indexer":
		return aptos.NewIndexerEvents(client, cfg.Module.Address, cfg.Module.EventType()), nil
	default:
		return nil, fmt.Errorf("unsupported fetch mode: %s", cfg.Poller.FetchMode)
	}
}

// openCursorStore picks the cursor backend. The returned close func is
// never nil.
func openCursorStore(cfg *config.Config, store *storage.Store) (engine.CursorStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Global.CursorStore {
	case "memory":
		return storage.NewMemoryCursors(), noop, nil
	case "sqlite", "":
		return store, noop, nil
	case "badger":
		b, err := storage.OpenBadgerCursors(cfg.Global.BadgerDir)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cursor store: %s", cfg.Global.CursorStore)
	}
}
