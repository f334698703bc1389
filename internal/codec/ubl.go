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

// UBL 2.1 namespaces.
const (
	nsUBLInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	nsUBLCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	nsCAC           = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	nsCBC           = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
)

const ublDateFormat = "2006-01-02"

// ublCustomization maps profile IDs to the CustomizationID written into
// cbc:CustomizationID, and back during decode.
var ublCustomization = map[string]string{
	"xrechnung-2": "urn:cen.eu:en16931:2017#compliant#urn:xoev-de:kosit:standard:xrechnung_2.3",
	"xrechnung-3": "urn:cen.eu:en16931:2017#compliant#urn:xoev-de:kosit:standard:xrechnung_3.0",
	"peppol-bis":  "urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0",
}

const peppolProfileID = "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0"

var ublPartyFields = []partyField{
	{path: "cac:PartyName/cbc:Name",
		get: func(p *model.Party) string { return p.Name },
		set: func(p *model.Party, v string) { p.Name = v }},
	{path: "cac:PostalAddress/cbc:StreetName",
		get: func(p *model.Party) string { return p.Address.Street },
		set: func(p *model.Party, v string) { p.Address.Street = v }},
	{path: "cac:PostalAddress/cbc:CityName",
		get: func(p *model.Party) string { return p.Address.City },
		set: func(p *model.Party, v string) { p.Address.City = v }},
	{path: "cac:PostalAddress/cbc:PostalZone",
		get: func(p *model.Party) string { return p.Address.PostalCode },
		set: func(p *model.Party, v string) { p.Address.PostalCode = v }},
	{path: "cac:PostalAddress/cac:Country/cbc:IdentificationCode",
		get: func(p *model.Party) string { return p.Address.Country },
		set: func(p *model.Party, v string) { p.Address.Country = v }},
	{path: "cac:PartyTaxScheme/cbc:CompanyID",
		get: func(p *model.Party) string { return p.VATID },
		set: func(p *model.Party, v string) { p.VATID = v }},
	{path: "cac:Contact/cbc:ElectronicMail",
		get: func(p *model.Party) string { return p.Email },
		set: func(p *model.Party, v string) { p.Email = v }},
}

// UBLCodec reads and writes OASIS UBL invoices and credit notes, the
// syntax XRechnung and PEPPOL BIS Billing are built on.
type UBLCodec struct{}

// NewUBLCodec creates a new UBL codec.
func NewUBLCodec() *UBLCodec {
	return &UBLCodec{}
}

// Syntax returns the syntax family.
func (c *UBLCodec) Syntax() profile.Syntax {
	return profile.SyntaxUBL
}

// CanDecode checks for a UBL Invoice or CreditNote namespace.
func (c *UBLCodec) CanDecode(content []byte) bool {
	return bytes.Contains(content, []byte(nsUBLInvoice)) ||
		bytes.Contains(content, []byte(nsUBLCreditNote))
}

// Encode serializes the invoice to UBL XML.
func (c *UBLCodec) Encode(inv *model.Invoice, p profile.Profile) ([]byte, error) {
	customization, ok := ublCustomization[p.ID]
	if !ok {
		return nil, &profile.UnsupportedProfileError{Name: p.ID}
	}

	rootTag, ns, lineTag, qtyTag := "Invoice", nsUBLInvoice, "cac:InvoiceLine", "cbc:InvoicedQuantity"
	if inv.CreditNote {
		rootTag, ns, lineTag, qtyTag = "CreditNote", nsUBLCreditNote, "cac:CreditNoteLine", "cbc:CreditedQuantity"
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.CreateAttr("xmlns", ns)
	root.CreateAttr("xmlns:cac", nsCAC)
	root.CreateAttr("xmlns:cbc", nsCBC)

	root.CreateElement("cbc:CustomizationID").SetText(customization)
	if p.ID == "peppol-bis" {
		root.CreateElement("cbc:ProfileID").SetText(peppolProfileID)
	}
	root.CreateElement("cbc:ID").SetText(inv.Number)
	root.CreateElement("cbc:IssueDate").SetText(inv.IssueDate.Format(ublDateFormat))
	if inv.DueDate != nil && !inv.CreditNote {
		root.CreateElement("cbc:DueDate").SetText(inv.DueDate.Format(ublDateFormat))
	}
	if inv.CreditNote {
		root.CreateElement("cbc:CreditNoteTypeCode").SetText("381")
	} else {
		root.CreateElement("cbc:InvoiceTypeCode").SetText("380")
	}
	root.CreateElement("cbc:DocumentCurrencyCode").SetText(inv.Currency)
	if inv.OrderReference != "" {
		root.CreateElement("cbc:BuyerReference").SetText(inv.OrderReference)
	}
	if inv.Supersedes != "" {
		root.CreateElement("cac:BillingReference").
			CreateElement("cac:InvoiceDocumentReference").
			CreateElement("cbc:ID").SetText(inv.Supersedes)
	}

	c.encodeParty(root.CreateElement("cac:AccountingSupplierParty").CreateElement("cac:Party"), &inv.Seller)
	c.encodeParty(root.CreateElement("cac:AccountingCustomerParty").CreateElement("cac:Party"), &inv.Buyer)

	if inv.DeliveryDate != nil {
		root.CreateElement("cac:Delivery").
			CreateElement("cbc:ActualDeliveryDate").SetText(inv.DeliveryDate.Format(ublDateFormat))
	}

	if inv.PaymentMeans != "" {
		means := root.CreateElement("cac:PaymentMeans")
		means.CreateElement("cbc:PaymentMeansCode").SetText("58")
		means.CreateElement("cac:PayeeFinancialAccount").
			CreateElement("cbc:ID").SetText(inv.PaymentMeans)
	}
	if inv.PaymentTerms != "" {
		root.CreateElement("cac:PaymentTerms").
			CreateElement("cbc:Note").SetText(inv.PaymentTerms)
	}

	taxTotal := root.CreateElement("cac:TaxTotal")
	c.amount(taxTotal, "cbc:TaxAmount", inv.TaxTotal)
	for _, g := range inv.TaxBreakdown {
		sub := taxTotal.CreateElement("cac:TaxSubtotal")
		c.amount(sub, "cbc:TaxableAmount", g.Net)
		c.amount(sub, "cbc:TaxAmount", g.Tax)
		cat := sub.CreateElement("cac:TaxCategory")
		cat.CreateElement("cbc:ID").SetText(string(g.Category))
		cat.CreateElement("cbc:Percent").SetText(g.Rate.String())
		cat.CreateElement("cac:TaxScheme").CreateElement("cbc:ID").SetText("VAT")
	}

	total := root.CreateElement("cac:LegalMonetaryTotal")
	c.amount(total, "cbc:LineExtensionAmount", inv.NetTotal)
	c.amount(total, "cbc:TaxExclusiveAmount", inv.NetTotal)
	c.amount(total, "cbc:TaxInclusiveAmount", inv.GrossTotal)
	c.amount(total, "cbc:PayableAmount", inv.GrossTotal)

	for _, line := range inv.Lines {
		c.encodeLine(root, line, lineTag, qtyTag, inv.Currency)
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func (c *UBLCodec) amount(parent *etree.Element, tag string, m money.Money) {
	el := parent.CreateElement(tag)
	el.CreateAttr("currencyID", m.Currency)
	el.SetText(m.Amount.StringFixed(2))
}

func (c *UBLCodec) encodeParty(el *etree.Element, p *model.Party) {
	for _, f := range ublPartyFields {
		v := f.get(p)
		if v == "" {
			continue
		}
		ensure(el, f.path).SetText(v)
	}
	if p.VATID != "" {
		ensure(el, "cac:PartyTaxScheme/cac:TaxScheme/cbc:ID").SetText("VAT")
	}
	legal := ensure(el, "cac:PartyLegalEntity")
	ensure(legal, "cbc:RegistrationName").SetText(p.Name)
	if p.TaxNumber != "" {
		ensure(legal, "cbc:CompanyID").SetText(p.TaxNumber)
	}
}

func (c *UBLCodec) encodeLine(root *etree.Element, line model.Line, lineTag, qtyTag, currency string) {
	el := root.CreateElement(lineTag)
	el.CreateElement("cbc:ID").SetText(decimal.NewFromInt(int64(line.Position)).String())

	qty := el.CreateElement(qtyTag)
	if line.Unit != "" {
		qty.CreateAttr("unitCode", line.Unit)
	}
	qty.SetText(line.Quantity.String())
	c.amount(el, "cbc:LineExtensionAmount", line.Net)

	item := el.CreateElement("cac:Item")
	if line.Description != "" {
		item.CreateElement("cbc:Description").SetText(line.Description)
	}
	item.CreateElement("cbc:Name").SetText(line.Name)
	cat := item.CreateElement("cac:ClassifiedTaxCategory")
	cat.CreateElement("cbc:ID").SetText(string(line.Category))
	cat.CreateElement("cbc:Percent").SetText(line.TaxRate.String())
	cat.CreateElement("cac:TaxScheme").CreateElement("cbc:ID").SetText("VAT")

	c.amount(el.CreateElement("cac:Price"), "cbc:PriceAmount", line.UnitPrice)
}

// Decode parses UBL XML into a Decoded-state invoice.
func (c *UBLCodec) Decode(content []byte) (*model.Invoice, profile.Profile, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, profile.Profile{}, &UnrecognizedSchemaError{Root: "malformed XML"}
	}
	root := doc.Root()
	if root == nil || (root.Tag != "Invoice" && root.Tag != "CreditNote") {
		return nil, profile.Profile{}, &UnrecognizedSchemaError{Root: rootName(content)}
	}
	creditNote := root.Tag == "CreditNote"

	p := c.detectProfile(root)
	inv := model.NewDecoded()
	inv.Profile = p.ID
	inv.CreditNote = creditNote

	if el := root.FindElement("cbc:ID"); el != nil {
		inv.Number = el.Text()
	}
	if el := root.FindElement("cbc:IssueDate"); el != nil {
		if t, err := time.Parse(ublDateFormat, el.Text()); err == nil {
			inv.IssueDate = t
		}
	}
	if el := root.FindElement("cbc:DueDate"); el != nil {
		if t, err := time.Parse(ublDateFormat, el.Text()); err == nil {
			inv.DueDate = &t
		}
	}
	if el := root.FindElement("cbc:DocumentCurrencyCode"); el != nil {
		inv.Currency = el.Text()
	}
	if el := root.FindElement("cbc:BuyerReference"); el != nil {
		inv.OrderReference = el.Text()
	}
	if el := root.FindElement("cac:BillingReference/cac:InvoiceDocumentReference/cbc:ID"); el != nil {
		inv.Supersedes = el.Text()
	}
	if el := root.FindElement("cac:AccountingSupplierParty/cac:Party"); el != nil {
		inv.Seller = c.decodeParty(el)
	}
	if el := root.FindElement("cac:AccountingCustomerParty/cac:Party"); el != nil {
		inv.Buyer = c.decodeParty(el)
	}
	if el := root.FindElement("cac:Delivery/cbc:ActualDeliveryDate"); el != nil {
		if t, err := time.Parse(ublDateFormat, el.Text()); err == nil {
			inv.DeliveryDate = &t
		}
	}
	if el := root.FindElement("cac:PaymentMeans/cac:PayeeFinancialAccount/cbc:ID"); el != nil {
		inv.PaymentMeans = el.Text()
	}
	if el := root.FindElement("cac:PaymentTerms/cbc:Note"); el != nil {
		inv.PaymentTerms = el.Text()
	}

	if taxTotal := root.FindElement("cac:TaxTotal"); taxTotal != nil {
		if el := taxTotal.FindElement("cbc:TaxAmount"); el != nil {
			inv.TaxTotal, _ = money.FromString(el.Text(), inv.Currency)
		}
		for _, sub := range taxTotal.FindElements("cac:TaxSubtotal") {
			g := model.TaxGroup{}
			if el := sub.FindElement("cbc:TaxableAmount"); el != nil {
				g.Net, _ = money.FromString(el.Text(), inv.Currency)
			}
			if el := sub.FindElement("cbc:TaxAmount"); el != nil {
				g.Tax, _ = money.FromString(el.Text(), inv.Currency)
			}
			if el := sub.FindElement("cac:TaxCategory/cbc:ID"); el != nil {
				g.Category = model.TaxCategory(el.Text())
			}
			if el := sub.FindElement("cac:TaxCategory/cbc:Percent"); el != nil {
				g.Rate, _ = decimal.NewFromString(el.Text())
			}
			inv.TaxBreakdown = append(inv.TaxBreakdown, g)
		}
	}

	if total := root.FindElement("cac:LegalMonetaryTotal"); total != nil {
		if el := total.FindElement("cbc:LineExtensionAmount"); el != nil {
			inv.NetTotal, _ = money.FromString(el.Text(), inv.Currency)
		}
		if el := total.FindElement("cbc:TaxInclusiveAmount"); el != nil {
			inv.GrossTotal, _ = money.FromString(el.Text(), inv.Currency)
		}
	}

	lineTag, qtyTag := "cac:InvoiceLine", "cbc:InvoicedQuantity"
	if creditNote {
		lineTag, qtyTag = "cac:CreditNoteLine", "cbc:CreditedQuantity"
	}
	for _, el := range root.FindElements(lineTag) {
		inv.Lines = append(inv.Lines, c.decodeLine(el, qtyTag, inv.Currency))
	}

	return inv, p, nil
}

func (c *UBLCodec) detectProfile(root *etree.Element) profile.Profile {
	customization := ""
	if el := root.FindElement("cbc:CustomizationID"); el != nil {
		customization = el.Text()
	}
	for id, urn := range ublCustomization {
		if urn == customization {
			if p, err := profile.ByID(id); err == nil {
				return p
			}
		}
	}
	p, _ := profile.ByID("xrechnung-3")
	return p
}

func (c *UBLCodec) decodeParty(el *etree.Element) model.Party {
	var p model.Party
	for _, f := range ublPartyFields {
		if leaf := el.FindElement(f.path); leaf != nil {
			f.set(&p, leaf.Text())
		}
	}
	if p.Name == "" {
		if leaf := el.FindElement("cac:PartyLegalEntity/cbc:RegistrationName"); leaf != nil {
			p.Name = leaf.Text()
		}
	}
	if leaf := el.FindElement("cac:PartyLegalEntity/cbc:CompanyID"); leaf != nil {
		p.TaxNumber = leaf.Text()
	}
	return p
}

func (c *UBLCodec) decodeLine(el *etree.Element, qtyTag, currency string) model.Line {
	var line model.Line
	if leaf := el.FindElement("cbc:ID"); leaf != nil {
		if n, err := decimal.NewFromString(leaf.Text()); err == nil {
			line.Position = int(n.IntPart())
		}
	}
	if leaf := el.FindElement(qtyTag); leaf != nil {
		line.Quantity, _ = decimal.NewFromString(leaf.Text())
		line.Unit = leaf.SelectAttrValue("unitCode", "")
	}
	if leaf := el.FindElement("cbc:LineExtensionAmount"); leaf != nil {
		line.Net, _ = money.FromString(leaf.Text(), currency)
	}
	if leaf := el.FindElement("cac:Item/cbc:Name"); leaf != nil {
		line.Name = leaf.Text()
	}
	if leaf := el.FindElement("cac:Item/cbc:Description"); leaf != nil {
		line.Description = leaf.Text()
	}
	if leaf := el.FindElement("cac:Item/cac:ClassifiedTaxCategory/cbc:ID"); leaf != nil {
		line.Category = model.TaxCategory(leaf.Text())
	}
	if leaf := el.FindElement("cac:Item/cac:ClassifiedTaxCategory/cbc:Percent"); leaf != nil {
		line.TaxRate, _ = decimal.NewFromString(leaf.Text())
	}
	if leaf := el.FindElement("cac:Price/cbc:PriceAmount"); leaf != nil {
		line.UnitPrice, _ = money.FromString(leaf.Text(), currency)
	}

	// Exact like the tax engine's per-line figures; rounding belongs to the
	// transported group totals.
	line.Tax = line.Net.MulScalar(line.TaxRate.Div(decimal.NewFromInt(100)))
	line.Gross, _ = line.Net.Add(line.Tax)
	return line
}
