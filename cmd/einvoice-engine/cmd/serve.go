package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice-engine/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server exposing the engine.

Endpoints:
  - POST /api/v1/invoices/validate  - Validate a draft invoice
  - POST /api/v1/invoices/seal      - Seal and encode a draft invoice
  - POST /api/v1/incoming/decode    - Decode and record an incoming document
  - POST /api/v1/convert            - Convert between profiles
  - GET  /api/v1/ledger             - Audit ledger entries and statistics
  - GET  /api/v1/ledger/verify      - Verify the ledger hash chain
  - GET  /api/v1/profiles           - Supported compliance profiles
  - GET  /health                    - Health check

Examples:
  einvoice-engine serve
  einvoice-engine serve --address :9000 --api-key <key>
  einvoice-engine serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", ":8080", "Server listen address")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 2*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	config := &server.Config{
		Address:      serverAddr,
		APIKey:       apiKey,
		LLMBaseURL:   llmBaseURL,
		LLMModel:     llmModel,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		Debug:        serverDebug,
	}

	srv := server.NewServer(config)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down server...")
		os.Exit(0)
	}()

	fmt.Printf("Starting server on %s\n", serverAddr)
	if apiKey != "" {
		fmt.Println("Advisory review enabled")
	} else {
		fmt.Println("Advisory review disabled (no API key)")
	}

	return srv.Run()
}
