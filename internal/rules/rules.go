// Package rules implements the profile-aware compliance validator. Each
// profile selects an ordered list of checks; the evaluator always runs every
// check and reports the complete set of findings, never just the first.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/profile"
)

// Severity classifies a finding. Errors block issuance; warnings are
// advisory.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalText renders the severity name in JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the severity name emitted by MarshalText.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", string(text))
	}
	return nil
}

// Finding is one validator result.
type Finding struct {
	CheckID  string   `json:"check_id"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", f.CheckID, f.Field, f.Message)
	}
	return fmt.Sprintf("[%s] %s", f.CheckID, f.Message)
}

// Result is the full validator outcome for one document and profile.
type Result struct {
	Profile  string    `json:"profile"`
	Errors   []Finding `json:"errors,omitempty"`
	Warnings []Finding `json:"warnings,omitempty"`
}

// Valid reports whether the document may transition to Issued/Recorded.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// ComplianceError carries the complete set of error-severity findings.
type ComplianceError struct {
	Findings []Finding
}

func (e *ComplianceError) Error() string {
	msgs := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("%d compliance error(s): %s", len(e.Findings), strings.Join(msgs, "; "))
}

// Check is one named predicate over a populated invoice. AppliesTo gates it
// per profile; Fn returns zero or more findings.
type Check struct {
	ID          string
	Description string
	Severity    Severity
	AppliesTo   func(profile.Profile) bool
	Fn          func(*model.Invoice, profile.Profile, Options) []Finding
}

// Options carries validator policy shared with the tax engine.
type Options struct {
	GrossTolerance  decimal.Decimal
	DomesticTaxArea []string
}

// DefaultOptions matches the tax engine defaults.
func DefaultOptions() Options {
	return Options{
		GrossTolerance: decimal.RequireFromString("0.01"),
		DomesticTaxArea: []string{
			"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE",
			"GR", "HU", "IE", "IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT",
			"RO", "SK", "SI", "ES", "SE",
		},
	}
}

func always(profile.Profile) bool { return true }

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// iso4217 lists the active ISO 4217 alpha codes, including the fund and
// precious-metal codes. A data table like the profile registry, so a valid
// AUD or CAD invoice never fails on its currency.
var iso4217 = map[string]bool{
	"AED": true, "AFN": true, "ALL": true, "AMD": true, "ANG": true,
	"AOA": true, "ARS": true, "AUD": true, "AWG": true, "AZN": true,
	"BAM": true, "BBD": true, "BDT": true, "BGN": true, "BHD": true,
	"BIF": true, "BMD": true, "BND": true, "BOB": true, "BOV": true,
	"BRL": true, "BSD": true, "BTN": true, "BWP": true, "BYN": true,
	"BZD": true, "CAD": true, "CDF": true, "CHE": true, "CHF": true,
	"CHW": true, "CLF": true, "CLP": true, "CNY": true, "COP": true,
	"COU": true, "CRC": true, "CUP": true, "CVE": true, "CZK": true,
	"DJF": true, "DKK": true, "DOP": true, "DZD": true, "EGP": true,
	"ERN": true, "ETB": true, "EUR": true, "FJD": true, "FKP": true,
	"GBP": true, "GEL": true, "GHS": true, "GIP": true, "GMD": true,
	"GNF": true, "GTQ": true, "GYD": true, "HKD": true, "HNL": true,
	"HTG": true, "HUF": true, "IDR": true, "ILS": true, "INR": true,
	"IQD": true, "IRR": true, "ISK": true, "JMD": true, "JOD": true,
	"JPY": true, "KES": true, "KGS": true, "KHR": true, "KMF": true,
	"KPW": true, "KRW": true, "KWD": true, "KYD": true, "KZT": true,
	"LAK": true, "LBP": true, "LKR": true, "LRD": true, "LSL": true,
	"LYD": true, "MAD": true, "MDL": true, "MGA": true, "MKD": true,
	"MMK": true, "MNT": true, "MOP": true, "MRU": true, "MUR": true,
	"MVR": true, "MWK": true, "MXN": true, "MXV": true, "MYR": true,
	"MZN": true, "NAD": true, "NGN": true, "NIO": true, "NOK": true,
	"NPR": true, "NZD": true, "OMR": true, "PAB": true, "PEN": true,
	"PGK": true, "PHP": true, "PKR": true, "PLN": true, "PYG": true,
	"QAR": true, "RON": true, "RSD": true, "RUB": true, "RWF": true,
	"SAR": true, "SBD": true, "SCR": true, "SDG": true, "SEK": true,
	"SGD": true, "SHP": true, "SLE": true, "SOS": true, "SRD": true,
	"SSP": true, "STN": true, "SVC": true, "SYP": true, "SZL": true,
	"THB": true, "TJS": true, "TMT": true, "TND": true, "TOP": true,
	"TRY": true, "TTD": true, "TWD": true, "TZS": true, "UAH": true,
	"UGX": true, "USD": true, "USN": true, "UYI": true, "UYU": true,
	"UYW": true, "UZS": true, "VED": true, "VES": true, "VND": true,
	"VUV": true, "WST": true, "XAF": true, "XAG": true, "XAU": true,
	"XCD": true, "XDR": true, "XOF": true, "XPD": true, "XPF": true,
	"XPT": true, "XSU": true, "XUA": true, "YER": true, "ZAR": true,
	"ZMW": true, "ZWG": true,
}

// checkTable is the single source of validation rules. The per-profile rule
// list is derived from it via ChecksFor; adding a profile is a data change in
// the profile registry, not new branching here.
var checkTable = []Check{
	{
		ID: "BR-01", Description: "invoice number present", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.Number == "" {
				return []Finding{{Field: "number", Message: "invoice number is required"}}
			}
			return nil
		},
	},
	{
		ID: "BR-02", Description: "issue date present", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.IssueDate.IsZero() {
				return []Finding{{Field: "issue_date", Message: "issue date is required"}}
			}
			return nil
		},
	},
	{
		ID: "BR-03", Description: "issue date not after due date", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.DueDate != nil && inv.DueDate.Before(inv.IssueDate) {
				return []Finding{{Field: "due_date", Message: "due date precedes issue date"}}
			}
			return nil
		},
	},
	{
		ID: "BR-04", Description: "at least one line", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if len(inv.Lines) == 0 {
				return []Finding{{Field: "lines", Message: "at least one line is required"}}
			}
			return nil
		},
	},
	{
		ID: "BR-05", Description: "currency is a valid ISO 4217 code", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if !currencyPattern.MatchString(inv.Currency) || !iso4217[inv.Currency] {
				return []Finding{{Field: "currency", Message: "unknown currency code " + inv.Currency}}
			}
			return nil
		},
	},
	{
		ID: "BR-06", Description: "seller identified for tax purposes", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			var fs []Finding
			if inv.Seller.Name == "" {
				fs = append(fs, Finding{Field: "seller.name", Message: "seller name is required"})
			}
			if inv.Seller.VATID == "" && inv.Seller.TaxNumber == "" {
				fs = append(fs, Finding{Field: "seller", Message: "seller VAT ID or tax number is required"})
			}
			if inv.Seller.VATID != "" {
				if err := model.ValidateVATID(inv.Seller.VATID); err != nil {
					fs = append(fs, Finding{Field: "seller.vat_id", Message: err.Error()})
				}
			}
			return fs
		},
	},
	{
		ID: "BR-07", Description: "buyer identified", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, p profile.Profile, _ Options) []Finding {
			var fs []Finding
			if inv.Buyer.Name == "" {
				fs = append(fs, Finding{Field: "buyer.name", Message: "buyer name is required"})
			}
			if p.RequireBuyerVATID && inv.Buyer.VATID == "" {
				fs = append(fs, Finding{Field: "buyer.vat_id", Message: "profile requires a buyer VAT ID"})
			}
			if inv.Buyer.VATID != "" {
				if err := model.ValidateVATID(inv.Buyer.VATID); err != nil {
					fs = append(fs, Finding{Field: "buyer.vat_id", Message: err.Error()})
				}
			}
			return fs
		},
	},
	{
		ID: "BR-08", Description: "party addresses complete", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			var fs []Finding
			for field, addr := range map[string]model.Address{
				"seller.address": inv.Seller.Address,
				"buyer.address":  inv.Buyer.Address,
			} {
				if addr.City == "" || addr.PostalCode == "" || len(addr.Country) != 2 {
					fs = append(fs, Finding{Field: field, Message: "city, postal code and ISO country are required"})
				}
			}
			return fs
		},
	},
	{
		ID: "BR-09", Description: "payment means referenced", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.PaymentMeans == "" {
				return []Finding{{Field: "payment_means", Message: "at least one payment means reference is required"}}
			}
			return nil
		},
	},
	{
		ID: "BR-10", Description: "delivery information present", Severity: SeverityError,
		AppliesTo: func(p profile.Profile) bool { return p.RequireDelivery },
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			var fs []Finding
			if inv.DeliveryDate == nil {
				fs = append(fs, Finding{Field: "delivery_date", Message: "profile requires a delivery date"})
			}
			if inv.DeliveryAddress == nil {
				fs = append(fs, Finding{Field: "delivery_address", Message: "profile requires a delivery address"})
			}
			return fs
		},
	},
	{
		ID: "BR-11", Description: "line count within profile limit", Severity: SeverityError,
		AppliesTo: func(p profile.Profile) bool { return p.MaxLines > 0 },
		Fn: func(inv *model.Invoice, p profile.Profile, _ Options) []Finding {
			if len(inv.Lines) > p.MaxLines {
				return []Finding{{Field: "lines", Message: fmt.Sprintf("%d lines exceed the profile limit of %d", len(inv.Lines), p.MaxLines)}}
			}
			return nil
		},
	},
	{
		ID: "BR-12", Description: "line net sum equals invoice net", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, opts Options) []Finding {
			if len(inv.Lines) == 0 {
				return nil
			}
			// Line nets are the figures the group totals are built from,
			// so they reconcile exactly; the tolerance only absorbs
			// transport rounding on decoded documents.
			sum := money.Zero(inv.Currency)
			for _, line := range inv.Lines {
				var err error
				if sum, err = sum.Add(line.Net); err != nil {
					return []Finding{{Field: "lines", Message: err.Error()}}
				}
			}
			ok, err := sum.WithinTolerance(inv.NetTotal, opts.GrossTolerance)
			if err != nil {
				return []Finding{{Field: "net_total", Message: err.Error()}}
			}
			if !ok {
				return []Finding{{Field: "net_total", Message: fmt.Sprintf(
					"sum of line nets %s differs from invoice net %s beyond tolerance",
					sum.Amount.StringFixed(2), inv.NetTotal.Amount.StringFixed(2))}}
			}
			return nil
		},
	},
	{
		ID: "BR-13", Description: "cross-border tax categories", Severity: SeverityError,
		AppliesTo: func(p profile.Profile) bool { return p.ExportHandling },
		Fn: func(inv *model.Invoice, _ profile.Profile, opts Options) []Finding {
			if !inv.CrossBorder() {
				return nil
			}
			domestic := false
			for _, c := range opts.DomesticTaxArea {
				if c == inv.Buyer.Address.Country {
					domestic = true
					break
				}
			}
			if domestic {
				return nil
			}
			var fs []Finding
			for i, line := range inv.Lines {
				if !line.Category.ZeroRated() {
					fs = append(fs, Finding{
						Field: fmt.Sprintf("lines[%d].tax_category", i),
						Message: fmt.Sprintf("category %s on export to %s; zero-rate-export or reverse-charge required",
							line.Category, inv.Buyer.Address.Country),
					})
				}
			}
			return fs
		},
	},
	{
		ID: "BR-14", Description: "tax breakdown consistent with totals", Severity: SeverityError,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, opts Options) []Finding {
			if len(inv.TaxBreakdown) == 0 {
				return []Finding{{Field: "tax_breakdown", Message: "totals have not been computed"}}
			}
			tax := money.Zero(inv.Currency)
			for _, g := range inv.TaxBreakdown {
				var err error
				if tax, err = tax.Add(g.Tax); err != nil {
					return []Finding{{Field: "tax_breakdown", Message: err.Error()}}
				}
			}
			if !tax.Equal(inv.TaxTotal) {
				return []Finding{{Field: "tax_total", Message: "breakdown tax sum does not equal invoice tax total"}}
			}
			gross, err := inv.NetTotal.Add(inv.TaxTotal)
			if err != nil {
				return []Finding{{Field: "gross_total", Message: err.Error()}}
			}
			if !gross.Equal(inv.GrossTotal) {
				return []Finding{{Field: "gross_total", Message: "net plus tax does not equal invoice gross total"}}
			}
			return nil
		},
	},
	{
		ID: "BW-01", Description: "payment terms stated", Severity: SeverityWarning,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.PaymentTerms == "" && inv.DueDate == nil {
				return []Finding{{Field: "payment_terms", Message: "neither payment terms nor due date stated"}}
			}
			return nil
		},
	},
	{
		ID: "BW-02", Description: "buyer reference for routing", Severity: SeverityWarning,
		AppliesTo: func(p profile.Profile) bool { return p.Syntax == profile.SyntaxUBL },
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.OrderReference == "" {
				return []Finding{{Field: "order_reference", Message: "no buyer/order reference; receivers may be unable to route the document"}}
			}
			return nil
		},
	},
	{
		ID: "BW-03", Description: "credit note references original", Severity: SeverityWarning,
		AppliesTo: always,
		Fn: func(inv *model.Invoice, _ profile.Profile, _ Options) []Finding {
			if inv.CreditNote && inv.Supersedes == "" {
				return []Finding{{Field: "supersedes", Message: "credit note does not reference the original invoice"}}
			}
			return nil
		},
	},
}

// ChecksFor returns the ordered check list a profile selects.
func ChecksFor(p profile.Profile) []Check {
	var out []Check
	for _, c := range checkTable {
		if c.AppliesTo(p) {
			out = append(out, c)
		}
	}
	return out
}

// Evaluate runs every applicable check against the invoice. It never
// short-circuits: the result carries all findings of both severities.
func Evaluate(inv *model.Invoice, p profile.Profile, opts Options) Result {
	if opts.GrossTolerance.IsZero() {
		opts.GrossTolerance = DefaultOptions().GrossTolerance
	}
	if opts.DomesticTaxArea == nil {
		opts.DomesticTaxArea = DefaultOptions().DomesticTaxArea
	}

	result := Result{Profile: p.ID}
	for _, check := range ChecksFor(p) {
		for _, f := range check.Fn(inv, p, opts) {
			f.CheckID = check.ID
			f.Severity = check.Severity
			if check.Severity == SeverityError {
				result.Errors = append(result.Errors, f)
			} else {
				result.Warnings = append(result.Warnings, f)
			}
		}
	}
	return result
}
