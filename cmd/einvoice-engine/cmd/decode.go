package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice-engine/internal/rules"
)

var decodeRecord bool

var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Decode an incoming invoice document",
	Long: `Decode parses an incoming document (freestanding XML, a PEPPOL
envelope, or a hybrid PDF) into the document model. The container is
detected from the bytes, never the file extension.

With --record, the document is also validated against its detected profile
and written to the audit ledger: Received when compliant, Rejected
otherwise.

Examples:
  einvoice-engine decode incoming.xml
  einvoice-engine decode incoming.pdf --record`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().BoolVar(&decodeRecord, "record", false, "Validate and append to the audit ledger")
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eng := newEngine()
	inv, p, err := eng.Decode(ctx, data)
	if err != nil {
		return err
	}

	if !decodeRecord {
		return printJSON(map[string]any{
			"profile": p.ID,
			"invoice": inv,
		})
	}

	recorded, err := eng.Record(ctx, inv, p, data)
	var compliance *rules.ComplianceError
	if err != nil && !errors.As(err, &compliance) {
		return err
	}
	if printErr := printJSON(map[string]any{
		"profile": p.ID,
		"invoice": inv,
		"record":  recorded,
	}); printErr != nil {
		return printErr
	}
	return err
}
