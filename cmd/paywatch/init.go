package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var flagInitForce bool

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite existing files")
}

const sampleConfig = `version: 1

global:
  db_path: paywatch.db
  cursor_store: sqlite # memory | sqlite | badger
  log_level: info

node:
  url: https://fullnode.testnet.aptoslabs.com/v1
  indexer_url: https://api.testnet.aptoslabs.com/v1/graphql
  network: testnet
  chain_id: 2 # 1 mainnet, 2 testnet; 0 skips the check
  api_key: ${APTOS_API_KEY}
  timeout: 10s

module:
  address: ${MODULE_ADDRESS}
  name: payment

poller:
  schedule: "*/10 * * * * *"
  batch_size: 100
  fetch_mode: indexer # rest | indexer

payment:
  private_key: ${APTOS_PRIVATE_KEY}
  min_amount: 1000000
  wait_timeout: 60s

sinks:
  - id: console
    type: log

rules:
  - id: all-payments
    sinks: [console]
    dedupe:
      key: payment_id
      ttl: 24h
`

const sampleEnv = `APTOS_API_KEY=
MODULE_ADDRESS=0x1
APTOS_PRIVATE_KEY=
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold config.yaml and .env.example",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		dir := filepath.Dir(cfgPath)
		files := []struct {
			path    string
			content string
		}{
			{cfgPath, sampleConfig},
			{filepath.Join(dir, ".env.example"), sampleEnv},
		}
		for _, f := range files {
			written, err := writeScaffold(f.path, f.content, flagInitForce)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintf(out, "wrote %s\n", f.path)
			} else {
				fmt.Fprintf(out, "skipped %s (exists, use --force)\n", f.path)
			}
		}
		return nil
	},
}

func writeScaffold(path, content string, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
