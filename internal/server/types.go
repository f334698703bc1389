package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/engine"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/rules"
)

// LineInput is one invoice line as submitted by the caller. Amounts are
// decimal strings; floats are never accepted.
type LineInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxCategory string          `json:"tax_category"`
	TaxRate     decimal.Decimal `json:"tax_rate"`

	// DeclaredGross, when present, is checked against the derived gross
	// within the configured tolerance.
	DeclaredGross *decimal.Decimal `json:"declared_gross,omitempty"`
}

// InvoiceInput is the draft document as submitted by the caller.
type InvoiceInput struct {
	Number         string         `json:"number"`
	IssueDate      time.Time      `json:"issue_date"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	Seller         model.Party    `json:"seller"`
	Buyer          model.Party    `json:"buyer"`
	Currency       string         `json:"currency"`
	Lines          []LineInput    `json:"lines"`
	PaymentTerms   string         `json:"payment_terms,omitempty"`
	PaymentMeans   string         `json:"payment_means,omitempty"`
	OrderReference string         `json:"order_reference,omitempty"`
	DeliveryDate   *time.Time     `json:"delivery_date,omitempty"`
	DeliveryAddr   *model.Address `json:"delivery_address,omitempty"`
	Supersedes     string         `json:"supersedes,omitempty"`
	CreditNote     bool           `json:"credit_note,omitempty"`
}

// ToModel builds a draft invoice from the input.
func (in *InvoiceInput) ToModel() (*model.Invoice, error) {
	inv := model.New(in.Number, in.IssueDate, in.Seller, in.Buyer, in.Currency)

	err := inv.Mutate(func(i *model.Invoice) error {
		i.PaymentTerms = in.PaymentTerms
		i.PaymentMeans = in.PaymentMeans
		i.OrderReference = in.OrderReference
		i.DeliveryDate = in.DeliveryDate
		i.DeliveryAddress = in.DeliveryAddr
		i.DueDate = in.DueDate
		i.Supersedes = in.Supersedes
		i.CreditNote = in.CreditNote
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, line := range in.Lines {
		l := model.Line{
			Name:        line.Name,
			Description: line.Description,
			Quantity:    line.Quantity,
			Unit:        line.Unit,
			UnitPrice:   money.New(line.UnitPrice, in.Currency),
			Category:    model.TaxCategory(line.TaxCategory),
			TaxRate:     line.TaxRate,
		}
		if line.DeclaredGross != nil {
			gross := money.New(*line.DeclaredGross, in.Currency)
			l.DeclaredGross = &gross
		}
		if err := inv.AddLine(l); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// ValidateRequest is the body for the validate and seal endpoints.
type ValidateRequest struct {
	Profile string       `json:"profile"`
	Invoice InvoiceInput `json:"invoice"`
}

// ValidationResponse is the response for the validate endpoint.
type ValidationResponse struct {
	Valid    bool            `json:"valid"`
	Profile  string          `json:"profile"`
	Errors   []rules.Finding `json:"errors,omitempty"`
	Warnings []rules.Finding `json:"warnings,omitempty"`
	Invoice  *model.Invoice  `json:"invoice,omitempty"`
}

// SealResponse is the response for the seal endpoint. Document carries the
// sealed XML verbatim.
type SealResponse struct {
	*engine.SealedDocument
	Document string `json:"document"`
}

// DecodeResponse is the response for the incoming decode endpoint.
type DecodeResponse struct {
	*engine.RecordedDocument
	Invoice *model.Invoice `json:"invoice"`
}

// LedgerResponse is the response for GET /ledger.
type LedgerResponse struct {
	Stats   interface{} `json:"stats"`
	Entries interface{} `json:"entries"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Kind     string          `json:"kind,omitempty"`
	Findings []rules.Finding `json:"findings,omitempty"`
}
