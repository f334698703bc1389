package einvoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/advisory"
	"github.com/rezonia/einvoice-engine/internal/engine"
	"github.com/rezonia/einvoice-engine/internal/profile"
)

// EngineOptions configures a public Engine.
type EngineOptions struct {
	// EnableAdvisory turns on the LLM plausibility review. It additionally
	// requires LLMAPIKey to be set.
	EnableAdvisory bool
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string

	// AdvisoryTimeout bounds the review per document. Zero means 10s.
	AdvisoryTimeout time.Duration

	// GrossTolerance bounds accepted divergence between declared and
	// derived gross amounts. Zero means the default of 0.01.
	GrossTolerance decimal.Decimal

	// DomesticTaxArea lists country codes treated as domestic. Empty means
	// the EU member states.
	DomesticTaxArea []string
}

// DefaultEngineOptions returns the default configuration.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		EnableAdvisory: false,
		LLMBaseURL:     advisory.DefaultBaseURL,
		LLMModel:       advisory.ModelClaude35Sonnet,
	}
}

// Engine wraps the internal compliance engine behind a profile-ID based API.
type Engine struct {
	inner   *engine.Engine
	options EngineOptions
}

// NewEngine creates an engine with the given options.
func NewEngine(opts EngineOptions) *Engine {
	engineOpts := []engine.Option{
		engine.WithOptions(engine.Options{
			GrossTolerance:  opts.GrossTolerance,
			DomesticTaxArea: opts.DomesticTaxArea,
			AdvisoryTimeout: opts.AdvisoryTimeout,
		}),
	}

	if opts.EnableAdvisory && opts.LLMAPIKey != "" {
		var clientOpts []advisory.ClientOption
		if opts.LLMBaseURL != "" {
			clientOpts = append(clientOpts, advisory.WithBaseURL(opts.LLMBaseURL))
		}
		client := advisory.NewClient(opts.LLMAPIKey, clientOpts...)

		var reviewerOpts []advisory.ReviewerOption
		if opts.LLMModel != "" {
			reviewerOpts = append(reviewerOpts, advisory.WithModel(opts.LLMModel))
		}
		engineOpts = append(engineOpts, engine.WithReviewer(advisory.NewReviewer(client, reviewerOpts...)))
	}

	return &Engine{
		inner:   engine.New(engineOpts...),
		options: opts,
	}
}

// NewDefaultEngine creates an engine with default options.
func NewDefaultEngine() *Engine {
	return NewEngine(DefaultEngineOptions())
}

// Validate calculates totals where needed and checks the invoice against the
// named profile without sealing it.
func (e *Engine) Validate(ctx context.Context, inv *Invoice, profileID string) (Result, error) {
	p, err := profile.ByID(profileID)
	if err != nil {
		return Result{}, err
	}
	return e.inner.Validate(ctx, inv, p)
}

// Seal validates, encodes, and records the draft, leaving it immutable.
func (e *Engine) Seal(ctx context.Context, inv *Invoice, profileID string) (*SealedDocument, error) {
	p, err := profile.ByID(profileID)
	if err != nil {
		return nil, err
	}
	return e.inner.Seal(ctx, inv, p)
}

// Decode parses incoming content (raw XML, hybrid PDF, or a PEPPOL envelope)
// into an invoice and the profile it claims.
func (e *Engine) Decode(ctx context.Context, content []byte) (*Invoice, Profile, error) {
	return e.inner.Decode(ctx, content)
}

// Record validates a decoded incoming document and appends it to the ledger.
// A non-compliant document is recorded as rejected and a *ComplianceError is
// returned alongside the record.
func (e *Engine) Record(ctx context.Context, inv *Invoice, p Profile, content []byte) (*RecordedDocument, error) {
	return e.inner.Record(ctx, inv, p, content)
}

// Convert decodes content and re-encodes it under the named target profile.
func (e *Engine) Convert(ctx context.Context, content []byte, targetProfileID string) ([]byte, error) {
	p, err := profile.ByID(targetProfileID)
	if err != nil {
		return nil, err
	}
	return e.inner.Convert(ctx, content, p)
}

// EmbedInPDF attaches the encoded XML to a PDF carrier, producing a hybrid
// document.
func (e *Engine) EmbedInPDF(pdf, xml []byte, profileID string) ([]byte, error) {
	p, err := profile.ByID(profileID)
	if err != nil {
		return nil, err
	}
	return e.inner.EmbedInPDF(pdf, xml, p)
}

// VerifyLedger walks the full hash chain.
func (e *Engine) VerifyLedger() error {
	return e.inner.VerifyLedger()
}

// LedgerEntries returns the full audit trail in sequence order.
func (e *Engine) LedgerEntries() ([]LedgerEntry, error) {
	return e.inner.LedgerEntries()
}

// LedgerStats summarizes the audit trail.
func (e *Engine) LedgerStats() (LedgerStats, error) {
	return e.inner.LedgerStats()
}
