package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	buildProfile string
	buildOutput  string
	buildCarrier string
)

var buildCmd = &cobra.Command{
	Use:   "build <draft.json>",
	Short: "Build, validate and seal an invoice from a JSON draft",
	Long: `Build derives all amounts from the draft's lines, validates the
document against the target profile, seals it, and writes the encoded XML.
With --pdf, the XML is additionally embedded into the carrier PDF, producing
a hybrid document.

The sealed document's hash and ledger entry are printed to stdout.

Examples:
  einvoice-engine build draft.json --profile zugferd-comfort -o invoice.xml
  einvoice-engine build draft.json --profile zugferd-comfort --pdf letter.pdf -o invoice.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildProfile, "profile", "p", "", "Target compliance profile")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output file (default: stdout)")
	buildCmd.Flags().StringVar(&buildCarrier, "pdf", "", "Carrier PDF to embed the XML into")
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildCarrier != "" && buildOutput == "" {
		return fmt.Errorf("--pdf requires --output")
	}
	p, err := resolveProfile(buildProfile)
	if err != nil {
		return err
	}
	inv, err := loadDraft(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eng := newEngine()
	sealed, err := eng.Seal(ctx, inv, p)
	if err != nil {
		return err
	}

	output := sealed.Bytes
	if buildCarrier != "" {
		carrier, err := os.ReadFile(buildCarrier)
		if err != nil {
			return fmt.Errorf("reading carrier PDF: %w", err)
		}
		output, err = eng.EmbedInPDF(carrier, sealed.Bytes, p)
		if err != nil {
			return err
		}
	}

	if buildOutput != "" {
		if err := os.WriteFile(buildOutput, output, 0o644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
	} else {
		fmt.Println(string(output))
	}

	return printJSON(sealed)
}
