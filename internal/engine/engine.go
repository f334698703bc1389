// Package engine wires the document model, tax engine, compliance rules,
// format codec, signature inspection, advisory review and audit ledger into
// the operation surface the CLI and HTTP server expose.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/advisory"
	"github.com/rezonia/einvoice-engine/internal/codec"
	"github.com/rezonia/einvoice-engine/internal/ledger"
	"github.com/rezonia/einvoice-engine/internal/logger"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/profile"
	"github.com/rezonia/einvoice-engine/internal/rules"
	"github.com/rezonia/einvoice-engine/internal/signature"
	"github.com/rezonia/einvoice-engine/internal/tax"
)

// RetentionYears is the statutory retention period for sealed documents.
const RetentionYears = 10

// OversizeError reports an encoded document exceeding the profile's size cap.
type OversizeError struct {
	Size  int
	Limit int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("encoded document is %d bytes, profile allows %d", e.Size, e.Limit)
}

// Options holds engine-level policy.
type Options struct {
	// GrossTolerance bounds accepted divergence between declared and derived
	// gross amounts. Zero means the default of 0.01.
	GrossTolerance decimal.Decimal

	// DomesticTaxArea lists country codes treated as domestic. Empty means
	// the EU member states.
	DomesticTaxArea []string

	// AdvisoryTimeout bounds the LLM review per document. Zero means 10s.
	AdvisoryTimeout time.Duration
}

func (o Options) advisoryTimeout() time.Duration {
	if o.AdvisoryTimeout > 0 {
		return o.AdvisoryTimeout
	}
	return 10 * time.Second
}

// Engine is stateless apart from the ledger; it is safe for concurrent use.
type Engine struct {
	registry *codec.Registry
	ledger   *ledger.Ledger
	reviewer advisory.Reviewer
	verifier *signature.Verifier
	opts     Options
	log      zerolog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithLedger sets the audit ledger. Defaults to an in-memory ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithReviewer sets the advisory reviewer. Defaults to Noop.
func WithReviewer(r advisory.Reviewer) Option {
	return func(e *Engine) { e.reviewer = r }
}

// WithVerifier sets the XMLDSig verifier for incoming documents.
func WithVerifier(v *signature.Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithOptions sets the engine policy.
func WithOptions(opts Options) Option {
	return func(e *Engine) { e.opts = opts }
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry: codec.NewRegistry(),
		ledger:   ledger.New(ledger.NewMemoryStore()),
		reviewer: advisory.Noop{},
		verifier: signature.NewVerifier(),
		log:      logger.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) taxOptions(p profile.Profile) tax.Options {
	opts := tax.DefaultOptions()
	opts.Rounding = p.Rounding
	opts.EnforceExportHandling = p.ExportHandling
	if !e.opts.GrossTolerance.IsZero() {
		opts.GrossTolerance = e.opts.GrossTolerance
	}
	if len(e.opts.DomesticTaxArea) > 0 {
		opts.DomesticTaxArea = e.opts.DomesticTaxArea
	}
	return opts
}

func (e *Engine) ruleOptions() rules.Options {
	opts := rules.DefaultOptions()
	if !e.opts.GrossTolerance.IsZero() {
		opts.GrossTolerance = e.opts.GrossTolerance
	}
	if len(e.opts.DomesticTaxArea) > 0 {
		opts.DomesticTaxArea = e.opts.DomesticTaxArea
	}
	return opts
}

// Validate derives amounts (for draft documents) and evaluates the full
// compliance rule set. The result carries every violation, never just the
// first. A valid document transitions to the Validated state.
func (e *Engine) Validate(ctx context.Context, inv *model.Invoice, p profile.Profile) (rules.Result, error) {
	if err := inv.Validate(); err != nil {
		return rules.Result{}, err
	}
	if inv.State() == model.StateDraft {
		if err := tax.Calculate(inv, e.taxOptions(p)); err != nil {
			return rules.Result{}, err
		}
	}

	result := rules.Evaluate(inv, p, e.ruleOptions())
	if result.Valid() && inv.State() != model.StateValidated {
		if err := inv.Transition(model.StateValidated); err != nil {
			return result, err
		}
	}
	return result, nil
}

// SealedDocument is the outcome of issuing an invoice. Invoice is the
// engine's sealed snapshot; writes to the caller's object after Seal cannot
// reach it.
type SealedDocument struct {
	DocumentID     string         `json:"document_id"`
	InvoiceNumber  string         `json:"invoice_number"`
	Profile        string         `json:"profile"`
	Invoice        *model.Invoice `json:"invoice"`
	Bytes          []byte         `json:"-"`
	Hash           string         `json:"hash"`
	LedgerSeq      uint64         `json:"ledger_seq"`
	RetentionUntil time.Time      `json:"retention_until"`
	Advisory       []string       `json:"advisory,omitempty"`
	Result         rules.Result   `json:"result"`
}

// Seal runs the full issue pipeline: derive amounts, evaluate compliance,
// attach advisory findings, freeze the document, encode it, and append the
// sealed bytes' hash to the ledger.
func (e *Engine) Seal(ctx context.Context, inv *model.Invoice, p profile.Profile) (*SealedDocument, error) {
	result, err := e.Validate(ctx, inv, p)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		return nil, &rules.ComplianceError{Findings: result.Errors}
	}

	e.review(ctx, inv)

	encoded, err := e.registry.Encode(inv, p)
	if err != nil {
		return nil, err
	}
	if p.MaxEncodedSize > 0 && len(encoded) > p.MaxEncodedSize {
		return nil, &OversizeError{Size: len(encoded), Limit: p.MaxEncodedSize}
	}

	documentID := uuid.NewString()
	entry, err := e.ledger.Append(documentID, inv.Number, ledger.ActionIssued, encoded)
	if err != nil {
		return nil, err
	}

	// Issued means entered into the ledger. Sealing before the append could
	// strand a document that is immutable but has no audit entry.
	if err := inv.Transition(model.StateIssued); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("document_id", documentID).
		Str("invoice", inv.Number).
		Str("profile", p.ID).
		Uint64("ledger_seq", entry.Seq).
		Msg("document sealed")

	return &SealedDocument{
		DocumentID:     documentID,
		InvoiceNumber:  inv.Number,
		Profile:        p.ID,
		Invoice:        inv.Clone(),
		Bytes:          encoded,
		Hash:           entry.ContentHash,
		LedgerSeq:      entry.Seq,
		RetentionUntil: inv.IssueDate.AddDate(RetentionYears, 0, 0),
		Advisory:       inv.Advisory,
		Result:         result,
	}, nil
}

// review runs the advisory reviewer off the validation path. Findings are
// attached to the document; failures only log.
func (e *Engine) review(ctx context.Context, inv *model.Invoice) {
	reviewCtx, cancel := context.WithTimeout(ctx, e.opts.advisoryTimeout())
	defer cancel()

	findings, err := e.reviewer.Review(reviewCtx, inv)
	if err != nil {
		e.log.Warn().Err(err).Str("invoice", inv.Number).Msg("advisory review degraded")
		return
	}
	if len(findings) == 0 {
		return
	}
	if err := inv.AttachAdvisory(findings); err != nil {
		e.log.Warn().Err(err).Str("invoice", inv.Number).Msg("advisory findings dropped")
	}
}

// Decode parses incoming bytes (PDF or XML, detected by signature) into a
// Decoded-state invoice and inspects any XMLDSig signature. Unrecognized
// containers produce no ledger entry.
func (e *Engine) Decode(ctx context.Context, content []byte) (*model.Invoice, profile.Profile, error) {
	inv, p, err := e.registry.Decode(content)
	if err != nil {
		return nil, profile.Profile{}, err
	}

	if container, _ := codec.DetectContainer(content); container == codec.ContainerXML {
		if advisories := e.verifier.Inspect(content).Advisories(); len(advisories) > 0 {
			if err := inv.AttachAdvisory(advisories); err != nil {
				e.log.Warn().Err(err).Msg("signature advisories dropped")
			}
		}
	}
	return inv, p, nil
}

// RecordedDocument is the outcome of accepting an incoming invoice.
type RecordedDocument struct {
	DocumentID    string       `json:"document_id"`
	InvoiceNumber string       `json:"invoice_number"`
	Profile       string       `json:"profile"`
	Hash          string       `json:"hash"`
	LedgerSeq     uint64       `json:"ledger_seq"`
	Advisory      []string     `json:"advisory,omitempty"`
	Result        rules.Result `json:"result"`
}

// Record validates a decoded incoming document against its detected profile
// and appends it to the ledger: Received when compliant, Rejected otherwise.
// A rejected document returns the ComplianceError alongside the entry.
func (e *Engine) Record(ctx context.Context, inv *model.Invoice, p profile.Profile, content []byte) (*RecordedDocument, error) {
	documentID := uuid.NewString()

	result := rules.Evaluate(inv, p, e.ruleOptions())
	if !result.Valid() {
		entry, err := e.ledger.Append(documentID, inv.Number, ledger.ActionRejected, content)
		if err != nil {
			return nil, err
		}
		e.log.Info().
			Str("document_id", documentID).
			Str("invoice", inv.Number).
			Int("violations", len(result.Errors)).
			Uint64("ledger_seq", entry.Seq).
			Msg("incoming document rejected")
		return &RecordedDocument{
			DocumentID:    documentID,
			InvoiceNumber: inv.Number,
			Profile:       p.ID,
			Hash:          entry.ContentHash,
			LedgerSeq:     entry.Seq,
			Advisory:      inv.Advisory,
			Result:        result,
		}, &rules.ComplianceError{Findings: result.Errors}
	}

	e.review(ctx, inv)

	if inv.State() == model.StateDecoded {
		if err := inv.Transition(model.StateValidated); err != nil {
			return nil, err
		}
	}
	if err := inv.Transition(model.StateRecorded); err != nil {
		return nil, err
	}

	entry, err := e.ledger.Append(documentID, inv.Number, ledger.ActionReceived, content)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("document_id", documentID).
		Str("invoice", inv.Number).
		Str("profile", p.ID).
		Uint64("ledger_seq", entry.Seq).
		Msg("incoming document recorded")

	return &RecordedDocument{
		DocumentID:    documentID,
		InvoiceNumber: inv.Number,
		Profile:       p.ID,
		Hash:          entry.ContentHash,
		LedgerSeq:     entry.Seq,
		Advisory:      inv.Advisory,
		Result:        result,
	}, nil
}

// Convert decodes a document and re-encodes it for the target profile,
// appending a Converted ledger entry covering the new bytes. Totals are
// carried over, never recomputed.
func (e *Engine) Convert(ctx context.Context, content []byte, target profile.Profile) ([]byte, error) {
	inv, source, err := e.registry.Decode(content)
	if err != nil {
		return nil, err
	}

	encoded, err := e.registry.Encode(inv, target)
	if err != nil {
		return nil, err
	}
	if target.MaxEncodedSize > 0 && len(encoded) > target.MaxEncodedSize {
		return nil, &OversizeError{Size: len(encoded), Limit: target.MaxEncodedSize}
	}

	entry, err := e.ledger.Append(uuid.NewString(), inv.Number, ledger.ActionConverted, encoded)
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("invoice", inv.Number).
		Str("from", source.ID).
		Str("to", target.ID).
		Uint64("ledger_seq", entry.Seq).
		Msg("document converted")
	return encoded, nil
}

// EmbedInPDF attaches sealed XML to a carrier PDF, producing a hybrid
// document in the ZUGFeRD manner.
func (e *Engine) EmbedInPDF(pdf, xml []byte, p profile.Profile) ([]byte, error) {
	return codec.EmbedXMLAttachment(pdf, xml, p)
}

// VerifyLedger checks the full hash chain.
func (e *Engine) VerifyLedger() error {
	return e.ledger.Verify()
}

// VerifyContent checks sealed bytes against a ledger entry.
func (e *Engine) VerifyContent(seq uint64, content []byte) error {
	return e.ledger.VerifyContent(seq, content)
}

// LedgerEntries returns all audit entries in order.
func (e *Engine) LedgerEntries() ([]ledger.Entry, error) {
	return e.ledger.Entries()
}

// LedgerStats aggregates the ledger by action.
func (e *Engine) LedgerStats() (ledger.Stats, error) {
	return e.ledger.Stats()
}
