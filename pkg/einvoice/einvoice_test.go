package einvoice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/pkg/einvoice"
)

func testDraft(t *testing.T) *einvoice.Invoice {
	t.Helper()
	price, err := einvoice.MoneyFromString("100.00", "EUR")
	require.NoError(t, err)

	inv := einvoice.NewInvoice("RE-2024-100", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		einvoice.Party{
			Name:  "Muster GmbH",
			VATID: "DE123456789",
			Address: einvoice.Address{
				Street: "Hauptstr. 1", City: "Berlin", PostalCode: "10115", Country: "DE",
			},
		},
		einvoice.Party{
			Name:  "Beispiel AG",
			VATID: "DE987654321",
			Address: einvoice.Address{
				Street: "Marktplatz 5", City: "Hamburg", PostalCode: "20095", Country: "DE",
			},
		},
		"EUR")
	require.NoError(t, inv.AddLine(einvoice.Line{
		Name:      "Beratung",
		Quantity:  decimal.NewFromInt(3),
		Unit:      "HUR",
		UnitPrice: price,
		Category:  einvoice.CategoryStandard,
		TaxRate:   decimal.NewFromInt(19),
	}))
	require.NoError(t, inv.SetDueDate(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, inv.SetPayment("30 days net", "DE89370400440532013000"))
	return inv
}

func TestNewDefaultEngine(t *testing.T) {
	eng := einvoice.NewDefaultEngine()
	require.NotNil(t, eng)
}

func TestDefaultEngineOptions(t *testing.T) {
	opts := einvoice.DefaultEngineOptions()

	assert.False(t, opts.EnableAdvisory)
	assert.Equal(t, "https://openrouter.ai/api/v1", opts.LLMBaseURL)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", opts.LLMModel)
}

func TestProfiles(t *testing.T) {
	all := einvoice.Profiles()
	require.NotEmpty(t, all)

	p, err := einvoice.ProfileByID("zugferd-comfort")
	require.NoError(t, err)
	assert.Equal(t, einvoice.SyntaxCII, p.Syntax)

	_, err = einvoice.ProfileByID("nonsense")
	var unsupported *einvoice.UnsupportedProfileError
	require.ErrorAs(t, err, &unsupported)
}

func TestEngineSealAndDecode(t *testing.T) {
	eng := einvoice.NewDefaultEngine()
	ctx := context.Background()

	sealed, err := eng.Seal(ctx, testDraft(t), "zugferd-comfort")
	require.NoError(t, err)
	assert.Equal(t, "RE-2024-100", sealed.InvoiceNumber)
	assert.Equal(t, uint64(1), sealed.LedgerSeq)
	assert.NotEmpty(t, sealed.Hash)

	decoded, p, err := eng.Decode(ctx, sealed.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "zugferd-comfort", p.ID)
	assert.Equal(t, "RE-2024-100", decoded.Number)
	assert.True(t, decoded.GrossTotal.Amount.Equal(decimal.RequireFromString("357.00")))

	require.NoError(t, eng.VerifyLedger())
	stats, err := eng.LedgerStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Total)
}

func TestEngineValidate_NonCompliantDraft(t *testing.T) {
	eng := einvoice.NewDefaultEngine()
	inv := testDraft(t)
	require.NoError(t, inv.Mutate(func(i *einvoice.Invoice) error {
		i.PaymentMeans = ""
		return nil
	}))

	result, err := eng.Validate(context.Background(), inv, "zugferd-comfort")
	require.NoError(t, err)
	assert.False(t, result.Valid())
	require.NotEmpty(t, result.Errors)
}

func TestEngineSeal_NonCompliantDraftFails(t *testing.T) {
	eng := einvoice.NewDefaultEngine()
	inv := testDraft(t)
	require.NoError(t, inv.Mutate(func(i *einvoice.Invoice) error {
		i.PaymentMeans = ""
		return nil
	}))

	_, err := eng.Seal(context.Background(), inv, "zugferd-comfort")
	var compliance *einvoice.ComplianceError
	require.ErrorAs(t, err, &compliance)
	require.NotEmpty(t, compliance.Findings)
}

func TestEngineConvert(t *testing.T) {
	eng := einvoice.NewDefaultEngine()
	ctx := context.Background()

	sealed, err := eng.Seal(ctx, testDraft(t), "zugferd-comfort")
	require.NoError(t, err)

	ubl, err := eng.Convert(ctx, sealed.Bytes, "xrechnung-3")
	require.NoError(t, err)
	assert.Contains(t, string(ubl), "xrechnung_3.0")

	_, err = eng.Convert(ctx, sealed.Bytes, "nonsense")
	require.Error(t, err)
}

func TestEngineSealedDocumentIsImmutable(t *testing.T) {
	eng := einvoice.NewDefaultEngine()
	inv := testDraft(t)

	_, err := eng.Seal(context.Background(), inv, "zugferd-comfort")
	require.NoError(t, err)

	err = inv.SetPayment("changed", "")
	var immutable *einvoice.ImmutabilityViolationError
	require.True(t, errors.As(err, &immutable))
}
