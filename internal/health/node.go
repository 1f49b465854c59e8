package health

import (
	"context"
	"fmt"

	"github.com/devblac/paywatch/internal/source/aptos"
)

// LedgerInfoClient is the part of the Aptos client the node check needs.
type LedgerInfoClient interface {
	LedgerInfo(ctx context.Context) (*aptos.LedgerInfo, error)
}

// NodeChecker pings an Aptos fullnode. A non-zero ChainID must match the
// node's chain.
type NodeChecker struct {
	client  LedgerInfoClient
	chainID int
}

func NewNodeChecker(client LedgerInfoClient, chainID int) *NodeChecker {
	return &NodeChecker{client: client, chainID: chainID}
}

// Ping reads ledger info and checks the chain id.
func (c *NodeChecker) Ping(ctx context.Context) error {
	info, err := c.client.LedgerInfo(ctx)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if c.chainID != 0 && info.ChainID != c.chainID {
		return fmt.Errorf("node: chain id %d, expected %d", info.ChainID, c.chainID)
	}
	return nil
}
