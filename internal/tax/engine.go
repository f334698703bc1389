// Package tax derives line and invoice totals from declared categories and
// rates. Tax amounts are computed once per (category, rate) group so that
// rounding drift cannot accumulate across many lines of the same rate.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
)

// Options holds the calculation policy. Rounding and export handling come
// from the target profile; tolerance and tax area are engine configuration.
type Options struct {
	Rounding money.Rounding
	Places   int32

	// GrossTolerance bounds the accepted divergence between caller-declared
	// and derived line gross amounts.
	GrossTolerance decimal.Decimal

	// DomesticTaxArea lists the country codes treated as domestic for
	// cross-border determination. Defaults to the EU member states.
	DomesticTaxArea []string

	// EnforceExportHandling rejects standard/reduced-rate lines on invoices
	// leaving the domestic tax area.
	EnforceExportHandling bool
}

// DefaultOptions returns the default policy: half-up to 2 places, 0.01
// tolerance, EU tax area.
func DefaultOptions() Options {
	return Options{
		Rounding:        money.RoundHalfUp,
		Places:          money.DefaultPlaces,
		GrossTolerance:  decimal.RequireFromString("0.01"),
		DomesticTaxArea: euMembers,
	}
}

var euMembers = []string{
	"AT", "BE", "BG", "HR", "CY", "CZ", "DK", "EE", "FI", "FR", "DE", "GR",
	"HU", "IE", "IT", "LV", "LT", "LU", "MT", "NL", "PL", "PT", "RO", "SK",
	"SI", "ES", "SE",
}

// MismatchedTaxRateError reports a declared rate outside the category's
// permitted set for the seller country.
type MismatchedTaxRateError struct {
	Line     int
	Category model.TaxCategory
	Rate     string
	Country  string
}

func (e *MismatchedTaxRateError) Error() string {
	return fmt.Sprintf("line %d: rate %s%% not permitted for category %s in %s",
		e.Line, e.Rate, e.Category, e.Country)
}

// CrossBorderCategoryError reports a taxable category on an invoice that
// leaves the domestic tax area.
type CrossBorderCategoryError struct {
	Line         int
	Category     model.TaxCategory
	BuyerCountry string
}

func (e *CrossBorderCategoryError) Error() string {
	return fmt.Sprintf("line %d: category %s not allowed on export to %s, use zero-rate-export or reverse-charge",
		e.Line, e.Category, e.BuyerCountry)
}

// NegativeTotalError reports a negative gross total on a document not
// flagged as a credit note.
type NegativeTotalError struct {
	Gross string
}

func (e *NegativeTotalError) Error() string {
	return fmt.Sprintf("gross total %s is negative and document is not a credit note", e.Gross)
}

// permittedRates maps country and category to the allowed percentage rates.
// Countries absent from the table fall back to a shape check only.
var permittedRates = map[string]map[model.TaxCategory][]string{
	"DE": {
		model.CategoryStandard: {"19"},
		model.CategoryReduced:  {"7"},
	},
	"AT": {
		model.CategoryStandard: {"20"},
		model.CategoryReduced:  {"10", "13"},
	},
	"FR": {
		model.CategoryStandard: {"20"},
		model.CategoryReduced:  {"5.5", "10", "2.1"},
	},
	"NL": {
		model.CategoryStandard: {"21"},
		model.CategoryReduced:  {"9"},
	},
}

type groupKey struct {
	category model.TaxCategory
	rate     string
}

// Calculate fills the derived fields of the invoice: per-line net/tax/gross,
// the per-(category, rate) breakdown, and invoice-level totals. It rejects,
// never corrects: any declared figure outside policy is an error.
func Calculate(inv *model.Invoice, opts Options) error {
	if len(inv.Lines) == 0 {
		return model.NewInputError("lines", "at least one line is required", nil)
	}
	if opts.GrossTolerance.IsZero() {
		// zero means unset, fall back to the default policy
		opts.GrossTolerance = decimal.RequireFromString("0.01")
	}

	exporting := opts.EnforceExportHandling && inv.CrossBorder() &&
		!contains(opts.DomesticTaxArea, inv.Buyer.Address.Country)

	sellerCountry := inv.Seller.Address.Country

	groups := make(map[groupKey]*model.TaxGroup)
	var groupOrder []groupKey

	for i, line := range inv.Lines {
		if err := checkRate(i+1, line, sellerCountry); err != nil {
			return err
		}
		if exporting && !line.Category.ZeroRated() {
			return &CrossBorderCategoryError{
				Line:         i + 1,
				Category:     line.Category,
				BuyerCountry: inv.Buyer.Address.Country,
			}
		}

		net := line.UnitPrice.MulScalar(line.Quantity).Round(opts.Rounding, opts.Places)
		// Line tax stays exact; rounding happens once per group. Rounding
		// here as well would let 100 lines of 0.01 net sum to a
		// different gross than the group figures.
		lineTax := net.MulScalar(line.TaxRate.Div(decimal.NewFromInt(100)))
		gross, err := net.Add(lineTax)
		if err != nil {
			return err
		}

		if line.DeclaredGross != nil {
			ok, err := gross.WithinTolerance(*line.DeclaredGross, opts.GrossTolerance)
			if err != nil {
				return err
			}
			if !ok {
				return &model.ToleranceError{
					Line:      i + 1,
					Declared:  line.DeclaredGross.Amount.StringFixed(opts.Places),
					Computed:  gross.Amount.StringFixed(opts.Places),
					Tolerance: opts.GrossTolerance.String(),
				}
			}
		}

		if err := inv.SetLineAmounts(i, net, lineTax, gross); err != nil {
			return err
		}

		key := groupKey{category: line.Category, rate: line.TaxRate.String()}
		g, seen := groups[key]
		if !seen {
			g = &model.TaxGroup{
				Category: line.Category,
				Rate:     line.TaxRate,
				Net:      money.Zero(inv.Currency),
			}
			groups[key] = g
			groupOrder = append(groupOrder, key)
		}
		g.Net, err = g.Net.Add(net)
		if err != nil {
			return err
		}
	}

	// One tax amount per group, computed from the group net. This is where
	// the no-drift guarantee comes from.
	netTotal := money.Zero(inv.Currency)
	taxTotal := money.Zero(inv.Currency)
	breakdown := make([]model.TaxGroup, 0, len(groupOrder))

	for _, key := range groupOrder {
		g := groups[key]
		g.Tax = g.Net.MulScalar(g.Rate.Div(decimal.NewFromInt(100))).Round(opts.Rounding, opts.Places)

		var err error
		if netTotal, err = netTotal.Add(g.Net); err != nil {
			return err
		}
		if taxTotal, err = taxTotal.Add(g.Tax); err != nil {
			return err
		}
		breakdown = append(breakdown, *g)
	}

	grossTotal, err := netTotal.Add(taxTotal)
	if err != nil {
		return err
	}

	if grossTotal.IsNegative() && !inv.CreditNote {
		return &NegativeTotalError{Gross: grossTotal.Amount.StringFixed(opts.Places)}
	}

	if err := inv.SetTotals(netTotal, taxTotal, grossTotal, breakdown); err != nil {
		return err
	}
	return inv.Transition(model.StateCalculated)
}

// checkRate validates the declared rate against the category's permitted set
// for the seller country.
func checkRate(lineNo int, line model.Line, country string) error {
	if line.TaxRate.IsNegative() {
		return &MismatchedTaxRateError{Line: lineNo, Category: line.Category, Rate: line.TaxRate.String(), Country: country}
	}
	if line.Category.ZeroRated() {
		if !line.TaxRate.IsZero() {
			return &MismatchedTaxRateError{Line: lineNo, Category: line.Category, Rate: line.TaxRate.String(), Country: country}
		}
		return nil
	}

	countryRates, ok := permittedRates[country]
	if !ok {
		return nil // unknown jurisdiction, shape check only
	}
	allowed, ok := countryRates[line.Category]
	if !ok {
		return nil
	}
	for _, r := range allowed {
		if line.TaxRate.Equal(decimal.RequireFromString(r)) {
			return nil
		}
	}
	return &MismatchedTaxRateError{Line: lineNo, Category: line.Category, Rate: line.TaxRate.String(), Country: country}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
