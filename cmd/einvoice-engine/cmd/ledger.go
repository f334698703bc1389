package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice-engine/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect exported audit ledgers",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify <export.json>",
	Short: "Verify the hash chain of an exported ledger",
	Long: `Verify loads a ledger export (the entries array returned by GET
/api/v1/ledger) and checks the full hash chain: sequence continuity, the
previous-hash links, and each entry's own hash. Any retroactive edit is
reported with the sequence number where the chain breaks.

Example:
  einvoice-engine ledger verify audit.json`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerVerify,
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats <export.json>",
	Short: "Aggregate an exported ledger by action",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerStats,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd)
}

func loadLedger(path string) (*ledger.Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	var entries []ledger.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing export: %w", err)
	}

	store := ledger.NewMemoryStore()
	for _, e := range entries {
		if err := store.Append(e); err != nil {
			return nil, err
		}
	}
	return ledger.New(store), nil
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	l, err := loadLedger(args[0])
	if err != nil {
		return err
	}
	if err := l.Verify(); err != nil {
		if printErr := printJSON(map[string]any{"intact": false, "error": err.Error()}); printErr != nil {
			return printErr
		}
		return fmt.Errorf("ledger integrity check failed")
	}
	return printJSON(map[string]any{"intact": true})
}

func runLedgerStats(cmd *cobra.Command, args []string) error {
	l, err := loadLedger(args[0])
	if err != nil {
		return err
	}
	stats, err := l.Stats()
	if err != nil {
		return err
	}
	return printJSON(stats)
}
