// Package profile defines the supported compliance profiles and their
// versioned registry. Selecting an unknown profile/version combination fails
// fast rather than falling back to a default.
package profile

import (
	"fmt"
	"strings"

	"github.com/rezonia/einvoice-engine/internal/money"
)

// Syntax is the XML syntax family a profile serializes to.
type Syntax string

const (
	SyntaxCII Syntax = "cii" // UN/CEFACT Cross Industry Invoice (ZUGFeRD)
	SyntaxUBL Syntax = "ubl" // OASIS UBL 2.1 (XRechnung, PEPPOL BIS)
)

// Tier is the mandatory-field tier a profile demands.
type Tier int

const (
	TierBasic Tier = iota
	TierComfort
	TierExtended
)

// UnsupportedProfileError is returned for unknown profile/version
// combinations.
type UnsupportedProfileError struct {
	Name    string
	Version string
}

func (e *UnsupportedProfileError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("unsupported profile %s version %s", e.Name, e.Version)
	}
	return fmt.Sprintf("unsupported profile %s", e.Name)
}

// Profile describes one target compliance profile/version.
type Profile struct {
	ID       string // stable identifier, e.g. "zugferd-comfort"
	Name     string
	Version  string
	Syntax   Syntax
	Tier     Tier
	Rounding money.Rounding

	// MaxEncodedSize caps the encoded document size in bytes; zero means
	// unlimited. PEPPOL access points reject oversized documents.
	MaxEncodedSize int

	// MaxLines caps the line count; zero means unlimited.
	MaxLines int

	// RequireBuyerVATID demands a buyer VAT identifier.
	RequireBuyerVATID bool

	// RequireDelivery demands delivery date and address.
	RequireDelivery bool

	// ExportHandling demands zero-rate-export or reverse-charge categories
	// on cross-border invoices leaving the domestic tax area.
	ExportHandling bool
}

// registry holds every supported profile keyed by ID. Adding a profile or
// version is a data addition here, not a code change elsewhere.
var registry = []Profile{
	{
		ID: "zugferd-basic", Name: "ZUGFeRD BASIC", Version: "2.3",
		Syntax: SyntaxCII, Tier: TierBasic, Rounding: money.RoundHalfUp,
	},
	{
		ID: "zugferd-comfort", Name: "ZUGFeRD COMFORT", Version: "2.3",
		Syntax: SyntaxCII, Tier: TierComfort, Rounding: money.RoundHalfUp,
		ExportHandling: true,
	},
	{
		ID: "zugferd-extended", Name: "ZUGFeRD EXTENDED", Version: "2.3",
		Syntax: SyntaxCII, Tier: TierExtended, Rounding: money.RoundHalfUp,
		RequireDelivery: true, ExportHandling: true,
	},
	{
		ID: "xrechnung-2", Name: "XRechnung", Version: "2.3",
		Syntax: SyntaxUBL, Tier: TierComfort, Rounding: money.RoundHalfUp,
		RequireBuyerVATID: false, ExportHandling: true,
	},
	{
		ID: "xrechnung-3", Name: "XRechnung", Version: "3.0",
		Syntax: SyntaxUBL, Tier: TierComfort, Rounding: money.RoundHalfUp,
		ExportHandling: true,
	},
	{
		ID: "peppol-bis", Name: "PEPPOL BIS Billing", Version: "3.0",
		Syntax: SyntaxUBL, Tier: TierComfort, Rounding: money.RoundHalfEven,
		MaxEncodedSize: 100 << 20, MaxLines: 10000,
		RequireBuyerVATID: true, ExportHandling: true,
	},
}

// ByID looks up a profile by its stable identifier.
func ByID(id string) (Profile, error) {
	for _, p := range registry {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, &UnsupportedProfileError{Name: id}
}

// Parse resolves a profile from a name and optional version, e.g.
// ("zugferd-comfort", "") or ("XRechnung", "3.0"). Matching is
// case-insensitive on name and exact on version when given.
func Parse(name, version string) (Profile, error) {
	name = strings.TrimSpace(name)
	for _, p := range registry {
		if !strings.EqualFold(p.ID, name) && !strings.EqualFold(p.Name, name) {
			continue
		}
		if version == "" || p.Version == version {
			return p, nil
		}
	}
	return Profile{}, &UnsupportedProfileError{Name: name, Version: version}
}

// All returns the supported profiles in registry order.
func All() []Profile {
	out := make([]Profile, len(registry))
	copy(out, registry)
	return out
}

// String renders "ZUGFeRD COMFORT 2.3".
func (p Profile) String() string {
	return p.Name + " " + p.Version
}
