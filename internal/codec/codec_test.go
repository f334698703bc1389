package codec_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/internal/codec"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/profile"
	"github.com/rezonia/einvoice-engine/internal/tax"
)

func testInvoice(t *testing.T, profileID string) *model.Invoice {
	t.Helper()
	inv := model.New("RE-2024-001", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		model.Party{
			Name:  "Muster GmbH",
			VATID: "DE123456789",
			Address: model.Address{
				Street: "Hauptstr. 1", City: "Berlin", PostalCode: "10115", Country: "DE",
			},
		},
		model.Party{
			Name:  "Beispiel AG",
			VATID: "DE987654321",
			Address: model.Address{
				Street: "Marktplatz 5", City: "Hamburg", PostalCode: "20095", Country: "DE",
			},
		},
		"EUR")
	inv.Profile = profileID
	inv.OrderReference = "PO-7731"

	require.NoError(t, inv.AddLine(model.Line{
		Name:      "Widget",
		Quantity:  decimal.NewFromInt(2),
		Unit:      "C62",
		UnitPrice: money.MustFromString("100.00", "EUR"),
		Category:  model.CategoryStandard,
		TaxRate:   decimal.NewFromInt(19),
	}))
	require.NoError(t, inv.AddLine(model.Line{
		Name:      "Gadget",
		Quantity:  decimal.NewFromInt(1),
		Unit:      "C62",
		UnitPrice: money.MustFromString("50.00", "EUR"),
		Category:  model.CategoryStandard,
		TaxRate:   decimal.NewFromInt(19),
	}))
	require.NoError(t, inv.SetDueDate(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, inv.SetPayment("30 days net", "DE89370400440532013000"))
	require.NoError(t, tax.Calculate(inv, tax.DefaultOptions()))
	return inv
}

func TestDetectContainer(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    codec.Container
		wantErr bool
	}{
		{name: "pdf signature", input: []byte("%PDF-1.7 rest"), want: codec.ContainerPDF},
		{name: "xml declaration", input: []byte(`<?xml version="1.0"?><Invoice/>`), want: codec.ContainerXML},
		{name: "bare root element", input: []byte("<Invoice></Invoice>"), want: codec.ContainerXML},
		{name: "utf8 bom before xml", input: append([]byte{0xEF, 0xBB, 0xBF}, []byte("<Invoice/>")...), want: codec.ContainerXML},
		{name: "leading whitespace", input: []byte("\n  <Invoice/>"), want: codec.ContainerXML},
		{name: "binary garbage", input: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05}, wantErr: true},
		{name: "too short", input: []byte("<a"), wantErr: true},
		{name: "empty", input: nil, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := codec.DetectContainer(tc.input)
			if tc.wantErr {
				var containerErr *codec.UnrecognizedContainerError
				require.ErrorAs(t, err, &containerErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoundTrip_CII(t *testing.T) {
	p, err := profile.ByID("zugferd-comfort")
	require.NoError(t, err)

	inv := testInvoice(t, p.ID)
	reg := codec.NewRegistry()

	encoded, err := reg.Encode(inv, p)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "CrossIndustryInvoice")
	assert.Contains(t, string(encoded), "urn:cen.eu:en16931:2017")

	decoded, detected, err := reg.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.ID, detected.ID)
	assert.Equal(t, model.StateDecoded, decoded.State())

	assert.Equal(t, inv.Number, decoded.Number)
	assert.True(t, inv.IssueDate.Equal(decoded.IssueDate))
	assert.Equal(t, "EUR", decoded.Currency)
	assert.Equal(t, inv.Seller.Name, decoded.Seller.Name)
	assert.Equal(t, inv.Seller.VATID, decoded.Seller.VATID)
	assert.Equal(t, inv.Buyer.Address.City, decoded.Buyer.Address.City)
	assert.Equal(t, inv.PaymentMeans, decoded.PaymentMeans)

	require.Len(t, decoded.Lines, 2)
	assert.Equal(t, "Widget", decoded.Lines[0].Name)
	assert.True(t, decoded.Lines[0].Net.Equal(money.MustFromString("200.00", "EUR")))

	assert.True(t, decoded.NetTotal.Equal(inv.NetTotal), "net %s vs %s", decoded.NetTotal, inv.NetTotal)
	assert.True(t, decoded.TaxTotal.Equal(inv.TaxTotal))
	assert.True(t, decoded.GrossTotal.Equal(inv.GrossTotal))

	require.Len(t, decoded.TaxBreakdown, 1)
	assert.Equal(t, model.CategoryStandard, decoded.TaxBreakdown[0].Category)
	assert.True(t, decoded.TaxBreakdown[0].Rate.Equal(decimal.NewFromInt(19)))
}

func TestRoundTrip_UBL(t *testing.T) {
	p, err := profile.ByID("xrechnung-3")
	require.NoError(t, err)

	inv := testInvoice(t, p.ID)
	reg := codec.NewRegistry()

	encoded, err := reg.Encode(inv, p)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "xrechnung_3.0")
	assert.Contains(t, string(encoded), "cac:InvoiceLine")

	decoded, detected, err := reg.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, p.ID, detected.ID)

	assert.Equal(t, inv.Number, decoded.Number)
	assert.Equal(t, inv.OrderReference, decoded.OrderReference)
	require.NotNil(t, decoded.DueDate)
	assert.True(t, inv.DueDate.Equal(*decoded.DueDate))
	require.Len(t, decoded.Lines, 2)
	assert.True(t, decoded.GrossTotal.Equal(money.MustFromString("297.50", "EUR")))
}

func TestRoundTrip_UBLCreditNote(t *testing.T) {
	p, err := profile.ByID("xrechnung-3")
	require.NoError(t, err)

	original := testInvoice(t, p.ID)
	cancel := model.CancellationOf(original, "RE-2024-001-S", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, tax.Calculate(cancel, tax.DefaultOptions()))

	reg := codec.NewRegistry()
	encoded, err := reg.Encode(cancel, p)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "<CreditNote")
	assert.Contains(t, string(encoded), "cac:CreditNoteLine")

	decoded, _, err := reg.Decode(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.CreditNote)
	assert.Equal(t, "RE-2024-001", decoded.Supersedes)
	assert.True(t, decoded.GrossTotal.Equal(money.MustFromString("-297.50", "EUR")))
}

func TestEncode_ProfileSyntaxMismatch(t *testing.T) {
	// A PEPPOL profile has no CII rendition.
	p, err := profile.ByID("peppol-bis")
	require.NoError(t, err)

	cii := codec.NewCIICodec()
	_, err = cii.Encode(testInvoice(t, p.ID), p)
	var unsupported *profile.UnsupportedProfileError
	require.ErrorAs(t, err, &unsupported)
}

func TestDecode_PeppolEnvelope(t *testing.T) {
	p, err := profile.ByID("peppol-bis")
	require.NoError(t, err)

	inv := testInvoice(t, p.ID)
	reg := codec.NewRegistry()
	payload, err := reg.Encode(inv, p)
	require.NoError(t, err)

	// Strip the XML declaration before nesting the payload.
	body := payload[bytes.IndexByte(payload, '\n')+1:]
	var envelope bytes.Buffer
	envelope.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	envelope.WriteString(`<sbd:StandardBusinessDocument xmlns:sbd="http://www.unece.org/cefact/namespaces/StandardBusinessDocumentHeader">`)
	envelope.WriteString(`<sbd:StandardBusinessDocumentHeader><sbd:HeaderVersion>1.0</sbd:HeaderVersion></sbd:StandardBusinessDocumentHeader>`)
	envelope.Write(body)
	envelope.WriteString(`</sbd:StandardBusinessDocument>`)

	decoded, detected, err := reg.Decode(envelope.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "peppol-bis", detected.ID)
	assert.Equal(t, inv.Number, decoded.Number)
	require.Len(t, decoded.Lines, 2)
}

func TestDecode_UnknownSchema(t *testing.T) {
	reg := codec.NewRegistry()
	_, _, err := reg.Decode([]byte(`<?xml version="1.0"?><PurchaseOrder><ID>1</ID></PurchaseOrder>`))
	var schemaErr *codec.UnrecognizedSchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Error(), "PurchaseOrder")
}

func TestDecode_CIIWithoutGuidelineFallsBackToBasic(t *testing.T) {
	xml := `<?xml version="1.0"?>
<rsm:CrossIndustryInvoice
    xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
    xmlns:ram="urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
    xmlns:udt="urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100">
  <rsm:ExchangedDocument>
    <ram:ID>RE-X-1</ram:ID>
    <ram:TypeCode>380</ram:TypeCode>
  </rsm:ExchangedDocument>
  <rsm:SupplyChainTradeTransaction>
    <ram:ApplicableHeaderTradeSettlement>
      <ram:InvoiceCurrencyCode>EUR</ram:InvoiceCurrencyCode>
    </ram:ApplicableHeaderTradeSettlement>
  </rsm:SupplyChainTradeTransaction>
</rsm:CrossIndustryInvoice>`

	reg := codec.NewRegistry()
	decoded, detected, err := reg.Decode([]byte(xml))
	require.NoError(t, err)
	assert.Equal(t, "zugferd-basic", detected.ID)
	assert.Equal(t, "RE-X-1", decoded.Number)
}

func TestExtractXMLAttachment_RejectsBrokenPDF(t *testing.T) {
	_, err := codec.ExtractXMLAttachment([]byte("%PDF-1.7 not actually a pdf"))
	var containerErr *codec.UnrecognizedContainerError
	require.True(t, errors.As(err, &containerErr))
}
