package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	convertTarget string
	convertOutput string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert an invoice to another compliance profile",
	Long: `Convert decodes an encoded invoice and re-encodes it for the target
profile, switching syntax family when needed (ZUGFeRD CII to XRechnung or
PEPPOL UBL and back). Totals are carried over, never recomputed.

Examples:
  einvoice-engine convert invoice.xml --target xrechnung-3 -o converted.xml
  einvoice-engine convert hybrid.pdf --target peppol-bis`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertTarget, "target", "t", "", "Target compliance profile")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Output file (default: stdout)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	p, err := resolveProfile(convertTarget)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	converted, err := newEngine().Convert(ctx, data, p)
	if err != nil {
		return err
	}

	if convertOutput != "" {
		return os.WriteFile(convertOutput, converted, 0o644)
	}
	fmt.Println(string(converted))
	return nil
}
