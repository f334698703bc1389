// Package einvoice provides a public API for building, validating, and
// converting European e-invoices.
//
// This package exposes the core types for the supported profiles (ZUGFeRD,
// XRechnung, PEPPOL BIS) together with an Engine that seals outgoing drafts,
// records incoming documents, and converts between the CII and UBL syntaxes.
//
// Example usage:
//
//	eng := einvoice.NewDefaultEngine()
//	sealed, err := eng.Seal(ctx, draft, "zugferd-comfort")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(sealed.Hash)
package einvoice

import (
	"github.com/rezonia/einvoice-engine/internal/engine"
	"github.com/rezonia/einvoice-engine/internal/ledger"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/profile"
	"github.com/rezonia/einvoice-engine/internal/rules"
)

// Re-export core types for public API
type (
	Invoice     = model.Invoice
	Money       = money.Money
	Line        = model.Line
	Party       = model.Party
	Address     = model.Address
	TaxGroup    = model.TaxGroup
	TaxCategory = model.TaxCategory
	State       = model.State
	Profile     = profile.Profile
	Syntax      = profile.Syntax
	Finding     = rules.Finding
	Result      = rules.Result
)

// Re-export tax categories
const (
	CategoryStandard           = model.CategoryStandard
	CategoryReduced            = model.CategoryReduced
	CategoryZeroExport         = model.CategoryZeroExport
	CategoryZeroIntraCommunity = model.CategoryZeroIntraCommunity
	CategoryExempt             = model.CategoryExempt
	CategoryReverseCharge      = model.CategoryReverseCharge
)

// Re-export lifecycle states
const (
	StateDraft      = model.StateDraft
	StateCalculated = model.StateCalculated
	StateValidated  = model.StateValidated
	StateIssued     = model.StateIssued
	StateDecoded    = model.StateDecoded
	StateRecorded   = model.StateRecorded
)

// Re-export syntaxes
const (
	SyntaxCII = profile.SyntaxCII
	SyntaxUBL = profile.SyntaxUBL
)

// Re-export error types
type (
	InputError                 = model.InputError
	ImmutabilityViolationError = model.ImmutabilityViolationError
	ToleranceError             = model.ToleranceError
	TransitionError            = model.TransitionError
	ComplianceError            = rules.ComplianceError
	UnsupportedProfileError    = profile.UnsupportedProfileError
	OversizeError              = engine.OversizeError
)

// Re-export document and ledger types
type (
	SealedDocument   = engine.SealedDocument
	RecordedDocument = engine.RecordedDocument
	LedgerEntry      = ledger.Entry
	LedgerStats      = ledger.Stats
)

// NewInvoice creates an outgoing draft invoice.
var NewInvoice = model.New

// NewMoney wraps a decimal amount with its currency.
var NewMoney = money.New

// MoneyFromString parses a decimal string into a monetary amount.
var MoneyFromString = money.FromString

// CorrectionOf creates a draft correction (381 credit note) referencing the
// original document.
var CorrectionOf = model.CorrectionOf

// CancellationOf creates a draft full cancellation referencing the original
// document.
var CancellationOf = model.CancellationOf

// Profiles returns all registered compliance profiles.
func Profiles() []Profile {
	return profile.All()
}

// ProfileByID looks up a profile by its registry identifier, such as
// "zugferd-comfort" or "xrechnung-3".
func ProfileByID(id string) (Profile, error) {
	return profile.ByID(id)
}
