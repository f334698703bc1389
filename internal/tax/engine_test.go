package tax_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/tax"
)

func deParty(name, vatID string) model.Party {
	return model.Party{
		Name:  name,
		VATID: vatID,
		Address: model.Address{
			Street: "Hauptstr. 1", City: "Berlin", PostalCode: "10115", Country: "DE",
		},
	}
}

func standardLine(name, price string, qty int64) model.Line {
	return model.Line{
		Name:      name,
		Quantity:  decimal.NewFromInt(qty),
		Unit:      "C62",
		UnitPrice: money.MustFromString(price, "EUR"),
		Category:  model.CategoryStandard,
		TaxRate:   decimal.NewFromInt(19),
	}
}

func TestCalculate_DomesticScenario(t *testing.T) {
	// RE-2024-001: qty 2 @ 100.00 @19%, qty 1 @ 50.00 @19%
	inv := model.New("RE-2024-001", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	require.NoError(t, inv.AddLine(standardLine("Widget", "100.00", 2)))
	require.NoError(t, inv.AddLine(standardLine("Gadget", "50.00", 1)))

	require.NoError(t, tax.Calculate(inv, tax.DefaultOptions()))

	assert.True(t, inv.NetTotal.Equal(money.MustFromString("250.00", "EUR")),
		"net %s", inv.NetTotal)
	assert.True(t, inv.TaxTotal.Equal(money.MustFromString("47.50", "EUR")),
		"tax %s", inv.TaxTotal)
	assert.True(t, inv.GrossTotal.Equal(money.MustFromString("297.50", "EUR")),
		"gross %s", inv.GrossTotal)
	assert.Equal(t, model.StateCalculated, inv.State())

	require.Len(t, inv.TaxBreakdown, 1)
	assert.True(t, inv.TaxBreakdown[0].Net.Equal(money.MustFromString("250.00", "EUR")))
}

func TestCalculate_NoCentDriftAcrossManyLines(t *testing.T) {
	// 0.01 net at 19% per line would round to 0.00 tax per line; the group
	// computation must not lose the cents.
	inv := model.New("RE-2024-010", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	for i := 0; i < 100; i++ {
		require.NoError(t, inv.AddLine(standardLine("Part", "0.01", 1)))
	}

	require.NoError(t, tax.Calculate(inv, tax.DefaultOptions()))

	// Group net 1.00, tax 0.19 — not 100 * round(0.0019) = 0.00.
	assert.True(t, inv.NetTotal.Equal(money.MustFromString("1.00", "EUR")))
	assert.True(t, inv.TaxTotal.Equal(money.MustFromString("0.19", "EUR")))

	// Invariant: sum of group nets + sum of group taxes equals gross exactly.
	sum, err := inv.NetTotal.Add(inv.TaxTotal)
	require.NoError(t, err)
	assert.True(t, sum.Equal(inv.GrossTotal))

	// Line taxes stay unrounded, so summing the lines reconciles with the
	// group figures instead of drifting 0.19 below them.
	lineSum := money.Zero("EUR")
	for _, line := range inv.Lines {
		lineSum, err = lineSum.Add(line.Net)
		require.NoError(t, err)
		lineSum, err = lineSum.Add(line.Tax)
		require.NoError(t, err)
	}
	assert.True(t, lineSum.Equal(inv.GrossTotal), "line sum %s gross %s", lineSum, inv.GrossTotal)
}

func TestCalculate_MixedRateGroups(t *testing.T) {
	inv := model.New("RE-2024-011", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	require.NoError(t, inv.AddLine(standardLine("Widget", "100.00", 1)))
	reduced := model.Line{
		Name:      "Buch",
		Quantity:  decimal.NewFromInt(3),
		UnitPrice: money.MustFromString("10.00", "EUR"),
		Category:  model.CategoryReduced,
		TaxRate:   decimal.NewFromInt(7),
	}
	require.NoError(t, inv.AddLine(reduced))

	require.NoError(t, tax.Calculate(inv, tax.DefaultOptions()))

	require.Len(t, inv.TaxBreakdown, 2)
	assert.True(t, inv.NetTotal.Equal(money.MustFromString("130.00", "EUR")))
	assert.True(t, inv.TaxTotal.Equal(money.MustFromString("21.10", "EUR"))) // 19.00 + 2.10
	assert.True(t, inv.GrossTotal.Equal(money.MustFromString("151.10", "EUR")))
}

func TestCalculate_MismatchedRate(t *testing.T) {
	inv := model.New("RE-2024-012", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	line := standardLine("Widget", "100.00", 1)
	line.TaxRate = decimal.NewFromInt(16) // not a current DE standard rate
	require.NoError(t, inv.AddLine(line))

	err := tax.Calculate(inv, tax.DefaultOptions())
	require.Error(t, err)

	var mismatch *tax.MismatchedTaxRateError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Line)
	assert.Equal(t, "DE", mismatch.Country)
}

func TestCalculate_ZeroRatedCategoryWithNonZeroRate(t *testing.T) {
	inv := model.New("RE-2024-013", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	line := standardLine("Widget", "100.00", 1)
	line.Category = model.CategoryReverseCharge
	require.NoError(t, inv.AddLine(line)) // still 19%

	err := tax.Calculate(inv, tax.DefaultOptions())
	var mismatch *tax.MismatchedTaxRateError
	require.ErrorAs(t, err, &mismatch)
}

func TestCalculate_CrossBorderExportRejectsStandardRate(t *testing.T) {
	inv := model.New("RE-2024-014", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		model.Party{
			Name:  "US Corp",
			VATID: "",
			Address: model.Address{
				Street: "Main St 1", City: "Boston", PostalCode: "02101", Country: "US",
			},
		},
		"EUR")
	inv.Buyer.TaxNumber = "12-3456789"
	require.NoError(t, inv.AddLine(standardLine("Widget", "100.00", 2)))

	opts := tax.DefaultOptions()
	opts.EnforceExportHandling = true

	err := tax.Calculate(inv, opts)
	require.Error(t, err)

	var cbe *tax.CrossBorderCategoryError
	require.ErrorAs(t, err, &cbe)
	assert.Equal(t, "US", cbe.BuyerCountry)
}

func TestCalculate_CrossBorderExportAcceptsZeroExport(t *testing.T) {
	inv := model.New("RE-2024-015", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		model.Party{
			Name:      "US Corp",
			TaxNumber: "12-3456789",
			Address:   model.Address{Street: "Main St 1", City: "Boston", PostalCode: "02101", Country: "US"},
		},
		"EUR")
	line := model.Line{
		Name:      "Widget",
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: money.MustFromString("100.00", "EUR"),
		Category:  model.CategoryZeroExport,
		TaxRate:   decimal.Zero,
	}
	require.NoError(t, inv.AddLine(line))

	opts := tax.DefaultOptions()
	opts.EnforceExportHandling = true

	require.NoError(t, tax.Calculate(inv, opts))
	assert.True(t, inv.TaxTotal.IsZero())
	assert.True(t, inv.GrossTotal.Equal(money.MustFromString("200.00", "EUR")))
}

func TestCalculate_IntraCommunityNotExport(t *testing.T) {
	// FR buyer is inside the EU tax area: export handling does not trigger.
	inv := model.New("RE-2024-016", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		model.Party{
			Name:    "Société SA",
			VATID:   "FR40303265045",
			Address: model.Address{Street: "Rue 1", City: "Paris", PostalCode: "75001", Country: "FR"},
		},
		"EUR")
	require.NoError(t, inv.AddLine(standardLine("Widget", "100.00", 1)))

	opts := tax.DefaultOptions()
	opts.EnforceExportHandling = true

	require.NoError(t, tax.Calculate(inv, opts))
}

func TestCalculate_DeclaredGrossWithinTolerance(t *testing.T) {
	inv := model.New("RE-2024-017", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	line := standardLine("Widget", "100.00", 2)
	declared := money.MustFromString("238.01", "EUR") // derived is 238.00
	line.DeclaredGross = &declared
	require.NoError(t, inv.AddLine(line))

	require.NoError(t, tax.Calculate(inv, tax.DefaultOptions()))
	// Derived figures win in the totals; declared is never copied over.
	assert.True(t, inv.Lines[0].Gross.Equal(money.MustFromString("238.00", "EUR")))
}

func TestCalculate_DeclaredGrossBeyondTolerance(t *testing.T) {
	inv := model.New("RE-2024-018", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	line := standardLine("Widget", "100.00", 2)
	declared := money.MustFromString("240.00", "EUR")
	line.DeclaredGross = &declared
	require.NoError(t, inv.AddLine(line))

	err := tax.Calculate(inv, tax.DefaultOptions())
	require.Error(t, err)

	var te *model.ToleranceError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Line)
}

func TestCalculate_NegativeTotalNeedsCreditNoteFlag(t *testing.T) {
	inv := model.New("RE-2024-019", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	require.NoError(t, inv.AddLine(standardLine("Refund", "-100.00", 1)))

	err := tax.Calculate(inv, tax.DefaultOptions())
	var nte *tax.NegativeTotalError
	require.ErrorAs(t, err, &nte)

	// Same document flagged as credit note passes.
	credit := model.New("RE-2024-019-S", time.Now(),
		deParty("Muster GmbH", "DE123456789"),
		deParty("Beispiel AG", "DE987654321"),
		"EUR")
	credit.CreditNote = true
	require.NoError(t, credit.AddLine(standardLine("Refund", "-100.00", 1)))
	require.NoError(t, tax.Calculate(credit, tax.DefaultOptions()))
	assert.True(t, credit.GrossTotal.IsNegative())
}
