package aptos

import (
	"fmt"
	"net/url"
)

// ExplorerURL links a transaction on the Aptos explorer.
func ExplorerURL(hash, network string) string {
	if network == "" {
		network = "testnet"
	}
	return fmt.Sprintf("https://explorer.aptoslabs.com/txn/%s?network=%s", url.PathEscape(hash), url.QueryEscape(network))
}
