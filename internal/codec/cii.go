package codec

import (
	"bytes"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/money"
	"github.com/rezonia/einvoice-engine/internal/profile"
)

// CII namespaces (UN/CEFACT Cross Industry Invoice D16B).
const (
	nsRSM = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"
	nsRAM = "urn:un:unece:uncefact:data:standard:ReusableAggregateBusinessInformationEntity:100"
	nsUDT = "urn:un:unece:uncefact:data:standard:UnqualifiedDataType:100"
)

// ciiDateFormat is UNCL 2379 code 102: CCYYMMDD.
const ciiDateFormat = "20060102"

// ciiGuideline maps profile IDs to the guideline URN written into the
// document context, and back during decode.
var ciiGuideline = map[string]string{
	"zugferd-basic":    "urn:cen.eu:en16931:2017#compliant#urn:factur-x.eu:1p0:basic",
	"zugferd-comfort":  "urn:cen.eu:en16931:2017",
	"zugferd-extended": "urn:cen.eu:en16931:2017#conformant#urn:factur-x.eu:1p0:extended",
}

// typeCode is UNCL 1001: 380 commercial invoice, 381 credit note.
func typeCode(inv *model.Invoice) string {
	if inv.CreditNote {
		return "381"
	}
	return "380"
}

// partyField maps one party sub-element path to its accessors. One table
// serves seller and buyer on both directions.
type partyField struct {
	path string
	get  func(*model.Party) string
	set  func(*model.Party, string)
}

var ciiPartyFields = []partyField{
	{path: "ram:Name",
		get: func(p *model.Party) string { return p.Name },
		set: func(p *model.Party, v string) { p.Name = v }},
	{path: "ram:PostalTradeAddress/ram:PostcodeCode",
		get: func(p *model.Party) string { return p.Address.PostalCode },
		set: func(p *model.Party, v string) { p.Address.PostalCode = v }},
	{path: "ram:PostalTradeAddress/ram:LineOne",
		get: func(p *model.Party) string { return p.Address.Street },
		set: func(p *model.Party, v string) { p.Address.Street = v }},
	{path: "ram:PostalTradeAddress/ram:CityName",
		get: func(p *model.Party) string { return p.Address.City },
		set: func(p *model.Party, v string) { p.Address.City = v }},
	{path: "ram:PostalTradeAddress/ram:CountryID",
		get: func(p *model.Party) string { return p.Address.Country },
		set: func(p *model.Party, v string) { p.Address.Country = v }},
}

// CIICodec reads and writes ZUGFeRD Cross Industry Invoice XML.
type CIICodec struct{}

// NewCIICodec creates a new CII codec.
func NewCIICodec() *CIICodec {
	return &CIICodec{}
}

// Syntax returns the syntax family.
func (c *CIICodec) Syntax() profile.Syntax {
	return profile.SyntaxCII
}

// CanDecode checks for the CrossIndustryInvoice root.
func (c *CIICodec) CanDecode(content []byte) bool {
	return bytes.Contains(content, []byte("CrossIndustryInvoice"))
}

// Encode serializes the invoice to CII XML.
func (c *CIICodec) Encode(inv *model.Invoice, p profile.Profile) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("rsm:CrossIndustryInvoice")
	root.CreateAttr("xmlns:rsm", nsRSM)
	root.CreateAttr("xmlns:ram", nsRAM)
	root.CreateAttr("xmlns:udt", nsUDT)

	guideline, ok := ciiGuideline[p.ID]
	if !ok {
		return nil, &profile.UnsupportedProfileError{Name: p.ID}
	}

	ctx := root.CreateElement("rsm:ExchangedDocumentContext")
	ctx.CreateElement("ram:GuidelineSpecifiedDocumentContextParameter").
		CreateElement("ram:ID").SetText(guideline)

	exDoc := root.CreateElement("rsm:ExchangedDocument")
	exDoc.CreateElement("ram:ID").SetText(inv.Number)
	exDoc.CreateElement("ram:TypeCode").SetText(typeCode(inv))
	issue := exDoc.CreateElement("ram:IssueDateTime").CreateElement("udt:DateTimeString")
	issue.CreateAttr("format", "102")
	issue.SetText(inv.IssueDate.Format(ciiDateFormat))

	tx := root.CreateElement("rsm:SupplyChainTradeTransaction")

	for _, line := range inv.Lines {
		c.encodeLine(tx, line)
	}

	agreement := tx.CreateElement("ram:ApplicableHeaderTradeAgreement")
	if inv.OrderReference != "" {
		agreement.CreateElement("ram:BuyerReference").SetText(inv.OrderReference)
	}
	c.encodeParty(agreement.CreateElement("ram:SellerTradeParty"), &inv.Seller)
	c.encodeParty(agreement.CreateElement("ram:BuyerTradeParty"), &inv.Buyer)

	delivery := tx.CreateElement("ram:ApplicableHeaderTradeDelivery")
	if inv.DeliveryDate != nil {
		occ := delivery.CreateElement("ram:ActualDeliverySupplyChainEvent").
			CreateElement("ram:OccurrenceDateTime").CreateElement("udt:DateTimeString")
		occ.CreateAttr("format", "102")
		occ.SetText(inv.DeliveryDate.Format(ciiDateFormat))
	}

	settlement := tx.CreateElement("ram:ApplicableHeaderTradeSettlement")
	settlement.CreateElement("ram:InvoiceCurrencyCode").SetText(inv.Currency)

	if inv.PaymentMeans != "" {
		means := settlement.CreateElement("ram:SpecifiedTradeSettlementPaymentMeans")
		means.CreateElement("ram:TypeCode").SetText("58") // SEPA credit transfer
		means.CreateElement("ram:PayeePartyCreditorFinancialAccount").
			CreateElement("ram:IBANID").SetText(inv.PaymentMeans)
	}

	for _, g := range inv.TaxBreakdown {
		taxEl := settlement.CreateElement("ram:ApplicableTradeTax")
		taxEl.CreateElement("ram:CalculatedAmount").SetText(g.Tax.Amount.StringFixed(2))
		taxEl.CreateElement("ram:TypeCode").SetText("VAT")
		taxEl.CreateElement("ram:BasisAmount").SetText(g.Net.Amount.StringFixed(2))
		taxEl.CreateElement("ram:CategoryCode").SetText(string(g.Category))
		taxEl.CreateElement("ram:RateApplicablePercent").SetText(g.Rate.String())
	}

	terms := settlement.CreateElement("ram:SpecifiedTradePaymentTerms")
	if inv.PaymentTerms != "" {
		terms.CreateElement("ram:Description").SetText(inv.PaymentTerms)
	}
	if inv.DueDate != nil {
		due := terms.CreateElement("ram:DueDateDateTime").CreateElement("udt:DateTimeString")
		due.CreateAttr("format", "102")
		due.SetText(inv.DueDate.Format(ciiDateFormat))
	}

	sum := settlement.CreateElement("ram:SpecifiedTradeSettlementHeaderMonetarySummation")
	sum.CreateElement("ram:LineTotalAmount").SetText(inv.NetTotal.Amount.StringFixed(2))
	sum.CreateElement("ram:TaxBasisTotalAmount").SetText(inv.NetTotal.Amount.StringFixed(2))
	taxTotal := sum.CreateElement("ram:TaxTotalAmount")
	taxTotal.CreateAttr("currencyID", inv.Currency)
	taxTotal.SetText(inv.TaxTotal.Amount.StringFixed(2))
	sum.CreateElement("ram:GrandTotalAmount").SetText(inv.GrossTotal.Amount.StringFixed(2))
	sum.CreateElement("ram:DuePayableAmount").SetText(inv.GrossTotal.Amount.StringFixed(2))

	if inv.Supersedes != "" {
		settlement.CreateElement("ram:InvoiceReferencedDocument").
			CreateElement("ram:IssuerAssignedID").SetText(inv.Supersedes)
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func (c *CIICodec) encodeParty(el *etree.Element, p *model.Party) {
	for _, f := range ciiPartyFields {
		v := f.get(p)
		if v == "" {
			continue
		}
		ensure(el, f.path).SetText(v)
	}
	if p.VATID != "" {
		reg := el.CreateElement("ram:SpecifiedTaxRegistration").CreateElement("ram:ID")
		reg.CreateAttr("schemeID", "VA")
		reg.SetText(p.VATID)
	}
	if p.TaxNumber != "" {
		reg := el.CreateElement("ram:SpecifiedTaxRegistration").CreateElement("ram:ID")
		reg.CreateAttr("schemeID", "FC")
		reg.SetText(p.TaxNumber)
	}
}

func (c *CIICodec) encodeLine(tx *etree.Element, line model.Line) {
	item := tx.CreateElement("ram:IncludedSupplyChainTradeLineItem")

	item.CreateElement("ram:AssociatedDocumentLineDocument").
		CreateElement("ram:LineID").SetText(decimal.NewFromInt(int64(line.Position)).String())

	product := item.CreateElement("ram:SpecifiedTradeProduct")
	product.CreateElement("ram:Name").SetText(line.Name)
	if line.Description != "" {
		product.CreateElement("ram:Description").SetText(line.Description)
	}

	item.CreateElement("ram:SpecifiedLineTradeAgreement").
		CreateElement("ram:NetPriceProductTradePrice").
		CreateElement("ram:ChargeAmount").SetText(line.UnitPrice.Amount.StringFixed(2))

	qty := item.CreateElement("ram:SpecifiedLineTradeDelivery").CreateElement("ram:BilledQuantity")
	if line.Unit != "" {
		qty.CreateAttr("unitCode", line.Unit)
	}
	qty.SetText(line.Quantity.String())

	settlement := item.CreateElement("ram:SpecifiedLineTradeSettlement")
	taxEl := settlement.CreateElement("ram:ApplicableTradeTax")
	taxEl.CreateElement("ram:TypeCode").SetText("VAT")
	taxEl.CreateElement("ram:CategoryCode").SetText(string(line.Category))
	taxEl.CreateElement("ram:RateApplicablePercent").SetText(line.TaxRate.String())
	settlement.CreateElement("ram:SpecifiedTradeSettlementLineMonetarySummation").
		CreateElement("ram:LineTotalAmount").SetText(line.Net.Amount.StringFixed(2))
}

// Decode parses CII XML into a Decoded-state invoice.
func (c *CIICodec) Decode(content []byte) (*model.Invoice, profile.Profile, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, profile.Profile{}, &UnrecognizedSchemaError{Root: "malformed XML"}
	}
	root := doc.Root()
	if root == nil || root.Tag != "CrossIndustryInvoice" {
		return nil, profile.Profile{}, &UnrecognizedSchemaError{Root: rootName(content)}
	}

	p := c.detectProfile(root)
	inv := model.NewDecoded()
	inv.Profile = p.ID

	if el := root.FindElement("rsm:ExchangedDocument/ram:ID"); el != nil {
		inv.Number = el.Text()
	}
	if el := root.FindElement("rsm:ExchangedDocument/ram:TypeCode"); el != nil {
		inv.CreditNote = el.Text() == "381"
	}
	if el := root.FindElement("rsm:ExchangedDocument/ram:IssueDateTime/udt:DateTimeString"); el != nil {
		if t, err := time.Parse(ciiDateFormat, el.Text()); err == nil {
			inv.IssueDate = t
		}
	}

	tx := root.FindElement("rsm:SupplyChainTradeTransaction")
	if tx == nil {
		return nil, profile.Profile{}, &UnrecognizedSchemaError{Root: "CrossIndustryInvoice without transaction"}
	}

	if agreement := tx.FindElement("ram:ApplicableHeaderTradeAgreement"); agreement != nil {
		if el := agreement.FindElement("ram:BuyerReference"); el != nil {
			inv.OrderReference = el.Text()
		}
		if el := agreement.FindElement("ram:SellerTradeParty"); el != nil {
			inv.Seller = c.decodeParty(el)
		}
		if el := agreement.FindElement("ram:BuyerTradeParty"); el != nil {
			inv.Buyer = c.decodeParty(el)
		}
	}

	settlement := tx.FindElement("ram:ApplicableHeaderTradeSettlement")
	if settlement != nil {
		if el := settlement.FindElement("ram:InvoiceCurrencyCode"); el != nil {
			inv.Currency = el.Text()
		}
		if el := settlement.FindElement("ram:SpecifiedTradeSettlementPaymentMeans/ram:PayeePartyCreditorFinancialAccount/ram:IBANID"); el != nil {
			inv.PaymentMeans = el.Text()
		}
		if el := settlement.FindElement("ram:SpecifiedTradePaymentTerms/ram:Description"); el != nil {
			inv.PaymentTerms = el.Text()
		}
		if el := settlement.FindElement("ram:SpecifiedTradePaymentTerms/ram:DueDateDateTime/udt:DateTimeString"); el != nil {
			if t, err := time.Parse(ciiDateFormat, el.Text()); err == nil {
				inv.DueDate = &t
			}
		}
		if el := settlement.FindElement("ram:InvoiceReferencedDocument/ram:IssuerAssignedID"); el != nil {
			inv.Supersedes = el.Text()
		}

		for _, taxEl := range settlement.FindElements("ram:ApplicableTradeTax") {
			g := model.TaxGroup{}
			if el := taxEl.FindElement("ram:CategoryCode"); el != nil {
				g.Category = model.TaxCategory(el.Text())
			}
			if el := taxEl.FindElement("ram:RateApplicablePercent"); el != nil {
				g.Rate, _ = decimal.NewFromString(el.Text())
			}
			if el := taxEl.FindElement("ram:BasisAmount"); el != nil {
				g.Net, _ = money.FromString(el.Text(), inv.Currency)
			}
			if el := taxEl.FindElement("ram:CalculatedAmount"); el != nil {
				g.Tax, _ = money.FromString(el.Text(), inv.Currency)
			}
			inv.TaxBreakdown = append(inv.TaxBreakdown, g)
		}

		sum := settlement.FindElement("ram:SpecifiedTradeSettlementHeaderMonetarySummation")
		if sum != nil {
			if el := sum.FindElement("ram:LineTotalAmount"); el != nil {
				inv.NetTotal, _ = money.FromString(el.Text(), inv.Currency)
			}
			if el := sum.FindElement("ram:TaxTotalAmount"); el != nil {
				inv.TaxTotal, _ = money.FromString(el.Text(), inv.Currency)
			}
			if el := sum.FindElement("ram:GrandTotalAmount"); el != nil {
				inv.GrossTotal, _ = money.FromString(el.Text(), inv.Currency)
			}
		}
	}

	for _, item := range tx.FindElements("ram:IncludedSupplyChainTradeLineItem") {
		inv.Lines = append(inv.Lines, c.decodeLine(item, inv.Currency))
	}

	return inv, p, nil
}

func (c *CIICodec) detectProfile(root *etree.Element) profile.Profile {
	guideline := ""
	if el := root.FindElement("rsm:ExchangedDocumentContext/ram:GuidelineSpecifiedDocumentContextParameter/ram:ID"); el != nil {
		guideline = el.Text()
	}
	for id, urn := range ciiGuideline {
		if urn == guideline {
			if p, err := profile.ByID(id); err == nil {
				return p
			}
		}
	}
	// Known schema with an unknown or absent guideline: fall back to the
	// family's base profile. UnrecognizedSchema is reserved for unknown
	// roots.
	p, _ := profile.ByID("zugferd-basic")
	return p
}

func (c *CIICodec) decodeParty(el *etree.Element) model.Party {
	var p model.Party
	for _, f := range ciiPartyFields {
		if leaf := el.FindElement(f.path); leaf != nil {
			f.set(&p, leaf.Text())
		}
	}
	for _, reg := range el.FindElements("ram:SpecifiedTaxRegistration/ram:ID") {
		switch reg.SelectAttrValue("schemeID", "") {
		case "VA":
			p.VATID = reg.Text()
		case "FC":
			p.TaxNumber = reg.Text()
		}
	}
	return p
}

func (c *CIICodec) decodeLine(item *etree.Element, currency string) model.Line {
	var line model.Line
	if el := item.FindElement("ram:AssociatedDocumentLineDocument/ram:LineID"); el != nil {
		if n, err := decimal.NewFromString(el.Text()); err == nil {
			line.Position = int(n.IntPart())
		}
	}
	if el := item.FindElement("ram:SpecifiedTradeProduct/ram:Name"); el != nil {
		line.Name = el.Text()
	}
	if el := item.FindElement("ram:SpecifiedTradeProduct/ram:Description"); el != nil {
		line.Description = el.Text()
	}
	if el := item.FindElement("ram:SpecifiedLineTradeAgreement/ram:NetPriceProductTradePrice/ram:ChargeAmount"); el != nil {
		line.UnitPrice, _ = money.FromString(el.Text(), currency)
	}
	if el := item.FindElement("ram:SpecifiedLineTradeDelivery/ram:BilledQuantity"); el != nil {
		line.Quantity, _ = decimal.NewFromString(el.Text())
		line.Unit = el.SelectAttrValue("unitCode", "")
	}
	if el := item.FindElement("ram:SpecifiedLineTradeSettlement/ram:ApplicableTradeTax/ram:CategoryCode"); el != nil {
		line.Category = model.TaxCategory(el.Text())
	}
	if el := item.FindElement("ram:SpecifiedLineTradeSettlement/ram:ApplicableTradeTax/ram:RateApplicablePercent"); el != nil {
		line.TaxRate, _ = decimal.NewFromString(el.Text())
	}
	if el := item.FindElement("ram:SpecifiedLineTradeSettlement/ram:SpecifiedTradeSettlementLineMonetarySummation/ram:LineTotalAmount"); el != nil {
		line.Net, _ = money.FromString(el.Text(), currency)
	}

	// Re-derive line tax and gross from the transported net and rate. Kept
	// exact like the tax engine's per-line figures; rounding belongs to the
	// transported group totals.
	line.Tax = line.Net.MulScalar(line.TaxRate.Div(decimal.NewFromInt(100)))
	line.Gross, _ = line.Net.Add(line.Tax)
	return line
}

// ensure returns the element at path below el, creating missing segments.
func ensure(el *etree.Element, path string) *etree.Element {
	current := el
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '/' {
			continue
		}
		segment := path[start:i]
		start = i + 1
		if segment == "" {
			continue
		}
		child := current.FindElement(segment)
		if child == nil {
			child = current.CreateElement(segment)
		}
		current = child
	}
	return current
}
