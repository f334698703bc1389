// Package signature inspects XMLDSig signatures on incoming documents.
// E-invoice profiles do not require signatures, so the outcome is advisory:
// it never blocks processing, it only annotates the decoded document.
package signature

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// SignerInfo carries certificate subject details for reporting.
type SignerInfo struct {
	Name         string    `json:"name"`
	Organization string    `json:"organization,omitempty"`
	SerialNumber string    `json:"serial_number"`
	Issuer       string    `json:"issuer"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

// Result is the advisory outcome of a signature inspection.
type Result struct {
	Present  bool        `json:"present"`
	Valid    bool        `json:"valid"`
	Signer   *SignerInfo `json:"signer,omitempty"`
	SignedAt *time.Time  `json:"signed_at,omitempty"`
	Notes    []string    `json:"notes,omitempty"`
}

func (r *Result) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Advisories renders the result as human-readable annotations for the
// decoded document. An unsigned document yields none.
func (r *Result) Advisories() []string {
	if !r.Present {
		return nil
	}
	out := make([]string, 0, len(r.Notes)+1)
	if r.Valid {
		signer := "unknown signer"
		if r.Signer != nil && r.Signer.Name != "" {
			signer = r.Signer.Name
		}
		out = append(out, "document carries a valid XMLDSig signature from "+signer)
	} else {
		out = append(out, "document carries an XMLDSig signature that did not verify")
	}
	return append(out, r.Notes...)
}

// Verifier validates enveloped XMLDSig signatures against a caller-supplied
// set of trusted roots.
type Verifier struct {
	roots []*x509.Certificate
}

// NewVerifier creates a verifier trusting the given root certificates. With
// no roots, signatures are reported present but never valid.
func NewVerifier(roots ...*x509.Certificate) *Verifier {
	return &Verifier{roots: roots}
}

// Inspect looks for an XMLDSig signature in the XML payload and validates
// it when found. It always returns a result; parse problems become notes.
func (v *Verifier) Inspect(content []byte) *Result {
	result := &Result{}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		result.note("payload is not well-formed XML: %v", err)
		return result
	}
	root := doc.Root()
	if root == nil {
		return result
	}

	sig := findSignature(root)
	if sig == nil {
		return result
	}
	result.Present = true

	validationCtx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: v.roots,
	})
	if _, err := validationCtx.Validate(root); err != nil {
		result.note("signature validation: %v", err)
	} else {
		result.Valid = true
	}

	cert, err := signingCertificate(sig)
	if err != nil {
		result.note("signing certificate: %v", err)
	} else {
		result.Signer = signerInfo(cert)
	}

	if t := signingTime(sig); t != nil {
		result.SignedAt = t
	}
	return result
}

// findSignature locates a ds:Signature element anywhere in the tree.
func findSignature(el *etree.Element) *etree.Element {
	if el.Tag == "Signature" {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findSignature(child); found != nil {
			return found
		}
	}
	return nil
}

// signingCertificate parses the X509Certificate embedded in the KeyInfo.
func signingCertificate(sig *etree.Element) (*x509.Certificate, error) {
	paths := []string{
		"KeyInfo/X509Data/X509Certificate",
		"ds:KeyInfo/ds:X509Data/ds:X509Certificate",
	}
	var encoded string
	for _, path := range paths {
		if el := sig.FindElement(path); el != nil && el.Text() != "" {
			encoded = el.Text()
			break
		}
	}
	if encoded == "" {
		return nil, fmt.Errorf("no X509Certificate in KeyInfo")
	}

	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert, nil
}

func signerInfo(cert *x509.Certificate) *SignerInfo {
	info := &SignerInfo{
		Name:         cert.Subject.CommonName,
		SerialNumber: cert.SerialNumber.String(),
		Issuer:       cert.Issuer.CommonName,
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}
	if len(cert.Subject.Organization) > 0 {
		info.Organization = cert.Subject.Organization[0]
	}
	if info.Issuer == "" && len(cert.Issuer.Organization) > 0 {
		info.Issuer = cert.Issuer.Organization[0]
	}
	return info
}

// signingTime reads the optional XAdES signing time property.
func signingTime(sig *etree.Element) *time.Time {
	paths := []string{
		"Object/SignatureProperties/SignatureProperty/SigningTime",
		"Object/QualifyingProperties/SignedProperties/SignedSignatureProperties/SigningTime",
	}
	for _, path := range paths {
		el := sig.FindElement(path)
		if el == nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339, el.Text()); err == nil {
			return &t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", el.Text()); err == nil {
			return &t
		}
	}
	return nil
}
