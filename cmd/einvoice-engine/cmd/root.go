package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice-engine/internal/logger"
)

var (
	version = "1.0.0"

	// Global flags
	verbose    bool
	apiKey     string
	llmBaseURL string
	llmModel   string
)

var rootCmd = &cobra.Command{
	Use:   "einvoice-engine",
	Short: "Build, validate and convert EN 16931 e-invoices",
	Long: `einvoice-engine works with European electronic invoices: ZUGFeRD
(CII), XRechnung and PEPPOL BIS (UBL), as freestanding XML or embedded in
hybrid PDFs.

Examples:
  # Build and seal an invoice from a JSON draft
  einvoice-engine build draft.json --profile zugferd-comfort -o invoice.xml

  # Validate an encoded invoice
  einvoice-engine validate invoice.xml

  # Decode an incoming document (XML or PDF)
  einvoice-engine decode incoming.pdf

  # Convert between profiles
  einvoice-engine convert invoice.xml --target xrechnung-3 -o converted.xml

  # Verify an exported ledger
  einvoice-engine ledger verify audit.json`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the advisory LLM (env: LLM_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&llmBaseURL, "llm-base-url", "", "Advisory LLM base URL (env: LLM_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&llmModel, "llm-model", "", "Advisory LLM model (env: LLM_MODEL)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A .env file is optional; absence is not an error.
	_ = godotenv.Load()

	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}
	if llmBaseURL == "" {
		llmBaseURL = os.Getenv("LLM_BASE_URL")
	}
	if llmModel == "" {
		llmModel = os.Getenv("LLM_MODEL")
	}

	cfg := logger.DefaultConfig()
	if verbose {
		cfg.Level = "debug"
	}
	_ = logger.Setup(cfg)
}
