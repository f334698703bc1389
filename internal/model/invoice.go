package model

import (
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/money"
)

// TaxCategory is the UN/ECE 5305 duty/tax category code carried by each line.
type TaxCategory string

const (
	CategoryStandard           TaxCategory = "S"  // standard rate
	CategoryReduced            TaxCategory = "AA" // reduced rate
	CategoryZeroExport         TaxCategory = "G"  // free export, tax not charged
	CategoryZeroIntraCommunity TaxCategory = "K"  // intra-community supply
	CategoryExempt             TaxCategory = "E"  // exempt from tax
	CategoryReverseCharge      TaxCategory = "AE" // VAT reverse charge
)

// Valid reports whether the category is a member of the fixed enumeration.
func (c TaxCategory) Valid() bool {
	switch c {
	case CategoryStandard, CategoryReduced, CategoryZeroExport,
		CategoryZeroIntraCommunity, CategoryExempt, CategoryReverseCharge:
		return true
	}
	return false
}

// ZeroRated reports whether the category implies a 0% rate.
func (c TaxCategory) ZeroRated() bool {
	switch c {
	case CategoryZeroExport, CategoryZeroIntraCommunity, CategoryExempt, CategoryReverseCharge:
		return true
	}
	return false
}

// State is the lifecycle state of an invoice document.
type State string

const (
	StateDraft      State = "draft"
	StateCalculated State = "calculated"
	StateValidated  State = "validated"
	StateIssued     State = "issued"   // terminal, sealed
	StateDecoded    State = "decoded"  // incoming document after parse
	StateRecorded   State = "recorded" // terminal, sealed
)

// transitions lists the legal moves of the outgoing and incoming paths.
var transitions = map[State][]State{
	StateDraft:      {StateCalculated},
	StateCalculated: {StateValidated, StateCalculated},
	StateValidated:  {StateIssued, StateRecorded, StateCalculated},
	StateDecoded:    {StateValidated, StateRecorded},
}

// Address is a postal address. Required on both parties for cross-border
// determination.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
}

// Party identifies a seller or buyer. At least one of VATID/TaxNumber is
// required.
type Party struct {
	Name      string  `json:"name"`
	VATID     string  `json:"vat_id,omitempty"`
	TaxNumber string  `json:"tax_number,omitempty"`
	Address   Address `json:"address"`
	Email     string  `json:"email,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Contact   string  `json:"contact,omitempty"`
}

// Line is a single invoice position. Net/Tax/Gross are derived by the tax
// engine; Tax and Gross carry the exact, unrounded figures so line sums
// reconcile with the group-rounded invoice totals. DeclaredGross, when
// supplied by the caller, is checked against the derivation and never
// overwritten.
type Line struct {
	Position    int             `json:"position"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"` // UN/ECE rec 20 code, e.g. C62
	UnitPrice   money.Money     `json:"unit_price"`
	Category    TaxCategory     `json:"tax_category"`
	TaxRate     decimal.Decimal `json:"tax_rate"` // percent

	DeclaredGross *money.Money `json:"declared_gross,omitempty"`

	Net   money.Money `json:"net"`
	Tax   money.Money `json:"tax"`
	Gross money.Money `json:"gross"`
}

// TaxGroup is one (category, rate) aggregation in the invoice tax breakdown.
type TaxGroup struct {
	Category TaxCategory     `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
	Net      money.Money     `json:"net"`
	Tax      money.Money     `json:"tax"`
}

// Invoice is the in-memory document model. Field writes after sealing go
// through Mutate and the Set*/Add* helpers so the engine can enforce
// immutability; a sealed invoice rejects every mutation attempt.
type Invoice struct {
	Number       string     `json:"number"`
	IssueDate    time.Time  `json:"issue_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Seller       Party      `json:"seller"`
	Buyer        Party      `json:"buyer"`
	Currency     string     `json:"currency"`
	Lines        []Line     `json:"lines"`
	PaymentTerms string     `json:"payment_terms,omitempty"`
	PaymentMeans string     `json:"payment_means,omitempty"` // e.g. IBAN or means code

	OrderReference  string     `json:"order_reference,omitempty"`
	DeliveryDate    *time.Time `json:"delivery_date,omitempty"`
	DeliveryAddress *Address   `json:"delivery_address,omitempty"`

	// Supersedes references the number of the original document this one
	// cancels or corrects. Corrections are always new documents.
	Supersedes string `json:"supersedes,omitempty"`
	CreditNote bool   `json:"credit_note,omitempty"`

	Profile string `json:"profile,omitempty"` // target compliance profile id

	NetTotal     money.Money `json:"net_total"`
	TaxTotal     money.Money `json:"tax_total"`
	GrossTotal   money.Money `json:"gross_total"`
	TaxBreakdown []TaxGroup  `json:"tax_breakdown,omitempty"`

	// Advisory findings are non-binding annotations and never affect
	// validity.
	Advisory []string `json:"advisory,omitempty"`

	state State
}

// New creates a draft invoice.
func New(number string, issueDate time.Time, seller, buyer Party, currency string) *Invoice {
	return &Invoice{
		Number:    number,
		IssueDate: issueDate,
		Seller:    seller,
		Buyer:     buyer,
		Currency:  currency,
		state:     StateDraft,
	}
}

// NewDecoded creates an invoice in the Decoded state, as produced by the
// format codec for incoming documents.
func NewDecoded() *Invoice {
	return &Invoice{state: StateDecoded}
}

// CorrectionOf creates a draft correction document referencing the original.
func CorrectionOf(original *Invoice, number string, issueDate time.Time) *Invoice {
	inv := New(number, issueDate, original.Seller, original.Buyer, original.Currency)
	inv.Supersedes = original.Number
	return inv
}

// CancellationOf creates a draft credit note cancelling the original: same
// lines with negated unit prices.
func CancellationOf(original *Invoice, number string, issueDate time.Time) *Invoice {
	inv := CorrectionOf(original, number, issueDate)
	inv.CreditNote = true
	for _, l := range original.Lines {
		neg := l
		neg.UnitPrice = l.UnitPrice.Neg()
		neg.Net = money.Money{}
		neg.Tax = money.Money{}
		neg.Gross = money.Money{}
		neg.DeclaredGross = nil
		inv.Lines = append(inv.Lines, neg)
	}
	return inv
}

// Clone returns a deep copy sharing no mutable memory with the original.
// The engine seals a clone so the document of record stays out of reach of
// later writes to the caller's object.
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	c.Lines = make([]Line, len(inv.Lines))
	for i, l := range inv.Lines {
		c.Lines[i] = l
		if l.DeclaredGross != nil {
			declared := *l.DeclaredGross
			c.Lines[i].DeclaredGross = &declared
		}
	}
	c.TaxBreakdown = append([]TaxGroup(nil), inv.TaxBreakdown...)
	c.Advisory = append([]string(nil), inv.Advisory...)
	if inv.DueDate != nil {
		due := *inv.DueDate
		c.DueDate = &due
	}
	if inv.DeliveryDate != nil {
		delivery := *inv.DeliveryDate
		c.DeliveryDate = &delivery
	}
	if inv.DeliveryAddress != nil {
		addr := *inv.DeliveryAddress
		c.DeliveryAddress = &addr
	}
	return &c
}

// State returns the lifecycle state.
func (inv *Invoice) State() State {
	return inv.state
}

// Sealed reports whether the document has reached a terminal, immutable
// state.
func (inv *Invoice) Sealed() bool {
	return inv.state == StateIssued || inv.state == StateRecorded
}

// Transition moves the invoice to the given state, enforcing the lifecycle.
func (inv *Invoice) Transition(to State) error {
	if inv.Sealed() {
		return NewImmutabilityViolation(inv.Number, "state")
	}
	for _, allowed := range transitions[inv.state] {
		if allowed == to {
			inv.state = to
			return nil
		}
	}
	return &TransitionError{From: inv.state, To: to}
}

// Mutate applies fn to the invoice, failing with ImmutabilityViolation if the
// document is sealed. All engine-side writes go through here or the helpers
// below.
func (inv *Invoice) Mutate(fn func(*Invoice) error) error {
	if inv.Sealed() {
		return NewImmutabilityViolation(inv.Number, "")
	}
	return fn(inv)
}

// AddLine appends a line, assigning the next position.
func (inv *Invoice) AddLine(line Line) error {
	return inv.Mutate(func(i *Invoice) error {
		line.Position = len(i.Lines) + 1
		i.Lines = append(i.Lines, line)
		return nil
	})
}

// SetDueDate sets the payment due date.
func (inv *Invoice) SetDueDate(t time.Time) error {
	return inv.Mutate(func(i *Invoice) error {
		i.DueDate = &t
		return nil
	})
}

// SetPayment sets payment terms and means.
func (inv *Invoice) SetPayment(terms, means string) error {
	return inv.Mutate(func(i *Invoice) error {
		i.PaymentTerms = terms
		i.PaymentMeans = means
		return nil
	})
}

// SetTotals records the computed totals and breakdown. Used by the tax
// engine.
func (inv *Invoice) SetTotals(net, tax, gross money.Money, breakdown []TaxGroup) error {
	return inv.Mutate(func(i *Invoice) error {
		i.NetTotal = net
		i.TaxTotal = tax
		i.GrossTotal = gross
		i.TaxBreakdown = breakdown
		return nil
	})
}

// SetLineAmounts records derived amounts on one line. Used by the tax engine.
func (inv *Invoice) SetLineAmounts(idx int, net, tax, gross money.Money) error {
	return inv.Mutate(func(i *Invoice) error {
		if idx < 0 || idx >= len(i.Lines) {
			return NewInputError("lines", "line index out of range", nil)
		}
		i.Lines[idx].Net = net
		i.Lines[idx].Tax = tax
		i.Lines[idx].Gross = gross
		return nil
	})
}

// AttachAdvisory appends advisory findings. Advisory metadata stays mutable
// up to sealing; findings arriving later are dropped by the engine.
func (inv *Invoice) AttachAdvisory(findings []string) error {
	return inv.Mutate(func(i *Invoice) error {
		i.Advisory = append(i.Advisory, findings...)
		return nil
	})
}

// CrossBorder reports whether seller and buyer countries differ.
func (inv *Invoice) CrossBorder() bool {
	return inv.Seller.Address.Country != inv.Buyer.Address.Country
}

// vatPatterns holds per-country VAT ID shapes keyed by the two-letter
// country prefix. Not exhaustive; unknown prefixes fall back to a generic
// shape.
var vatPatterns = map[string]*regexp.Regexp{
	"DE": regexp.MustCompile(`^DE[0-9]{9}$`),
	"AT": regexp.MustCompile(`^ATU[0-9]{8}$`),
	"FR": regexp.MustCompile(`^FR[0-9A-Z]{2}[0-9]{9}$`),
	"NL": regexp.MustCompile(`^NL[0-9]{9}B[0-9]{2}$`),
	"BE": regexp.MustCompile(`^BE[01][0-9]{9}$`),
	"IT": regexp.MustCompile(`^IT[0-9]{11}$`),
	"ES": regexp.MustCompile(`^ES[0-9A-Z][0-9]{7}[0-9A-Z]$`),
	"PL": regexp.MustCompile(`^PL[0-9]{10}$`),
	"DK": regexp.MustCompile(`^DK[0-9]{8}$`),
	"SE": regexp.MustCompile(`^SE[0-9]{12}$`),
}

var vatGeneric = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z+*]{2,12}$`)

// ValidateVATID checks a VAT identifier against the format of its country
// prefix. Empty IDs are the caller's concern; this only validates shape.
func ValidateVATID(id string) error {
	if len(id) < 4 {
		return NewInputError("vat_id", "too short", nil)
	}
	prefix := id[:2]
	if pattern, ok := vatPatterns[prefix]; ok {
		if !pattern.MatchString(id) {
			return NewInputError("vat_id", "does not match "+prefix+" format", nil)
		}
		return nil
	}
	if !vatGeneric.MatchString(id) {
		return NewInputError("vat_id", "malformed identifier", nil)
	}
	return nil
}

// Validate performs the structural checks that hold regardless of target
// profile. Profile-specific rules live in the compliance validator.
func (inv *Invoice) Validate() error {
	if inv.Number == "" {
		return NewInputError("number", "invoice number is required", nil)
	}
	if len(inv.Lines) == 0 {
		return NewInputError("lines", "at least one line is required", nil)
	}
	if inv.Seller.VATID == "" && inv.Seller.TaxNumber == "" {
		return NewInputError("seller", "VAT ID or tax number required", nil)
	}
	if inv.Buyer.Name == "" {
		return NewInputError("buyer.name", "buyer name is required", nil)
	}
	if inv.Seller.VATID != "" {
		if err := ValidateVATID(inv.Seller.VATID); err != nil {
			return NewInputError("seller.vat_id", "invalid VAT ID", err)
		}
	}
	if inv.Buyer.VATID != "" {
		if err := ValidateVATID(inv.Buyer.VATID); err != nil {
			return NewInputError("buyer.vat_id", "invalid VAT ID", err)
		}
	}
	if inv.DueDate != nil && inv.DueDate.Before(inv.IssueDate) {
		return NewInputError("due_date", "due date before issue date", nil)
	}
	for i, line := range inv.Lines {
		field := "lines[" + strconv.Itoa(i) + "]"
		if line.Quantity.LessThanOrEqual(decimal.Zero) {
			return NewInputError(field, "quantity must be positive", nil)
		}
		if !line.Category.Valid() {
			return NewInputError(field, "unknown tax category", nil)
		}
	}
	return nil
}
