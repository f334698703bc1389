// Package codec serializes the document model to and from the profile XML
// schemas and their containers: freestanding XML (CII or UBL), a PEPPOL
// StandardBusinessDocument envelope, or an XML attachment embedded in a
// PDF/A-3 wrapper.
package codec

import (
	"bytes"
	"fmt"

	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/profile"
)

// Container identifies the outer byte format, detected by signature, never
// by file extension.
type Container string

const (
	ContainerPDF Container = "pdf"
	ContainerXML Container = "xml"
)

// UnrecognizedContainerError is returned when the outer format cannot be
// identified.
type UnrecognizedContainerError struct {
	Hint string
}

func (e *UnrecognizedContainerError) Error() string {
	if e.Hint != "" {
		return "unrecognized container: " + e.Hint
	}
	return "unrecognized container: no PDF or XML signature found"
}

// UnrecognizedSchemaError is returned when an XML payload matches no known
// profile schema.
type UnrecognizedSchemaError struct {
	Root string
}

func (e *UnrecognizedSchemaError) Error() string {
	if e.Root != "" {
		return "unrecognized schema: unknown root element " + e.Root
	}
	return "unrecognized schema"
}

// Codec encodes and decodes one XML syntax family.
type Codec interface {
	// Syntax returns the family this codec handles.
	Syntax() profile.Syntax

	// CanDecode returns true if the codec recognizes the XML payload.
	CanDecode(content []byte) bool

	// Decode parses the payload into a Decoded-state invoice and the
	// detected profile.
	Decode(content []byte) (*model.Invoice, profile.Profile, error)

	// Encode serializes the invoice to the profile's schema.
	Encode(inv *model.Invoice, p profile.Profile) ([]byte, error)
}

// Registry holds the syntax codecs. Order matters: more specific payload
// shapes are probed first.
type Registry struct {
	codecs []Codec
}

// NewRegistry creates a registry with the CII and UBL codecs.
func NewRegistry() *Registry {
	return &Registry{
		codecs: []Codec{
			NewCIICodec(),
			NewUBLCodec(),
		},
	}
}

// ForSyntax returns the codec for a syntax family.
func (r *Registry) ForSyntax(s profile.Syntax) (Codec, error) {
	for _, c := range r.codecs {
		if c.Syntax() == s {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no codec for syntax %s", s)
}

// DetectContainer identifies the outer format from signature bytes.
func DetectContainer(content []byte) (Container, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) < 5 {
		return "", &UnrecognizedContainerError{Hint: "input too short"}
	}
	if bytes.HasPrefix(trimmed, []byte("%PDF")) {
		return ContainerPDF, nil
	}
	// Allow a UTF-8 BOM before the XML declaration or root element.
	if bytes.HasPrefix(trimmed, []byte{0xEF, 0xBB, 0xBF}) {
		trimmed = trimmed[3:]
	}
	if bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<")) {
		return ContainerXML, nil
	}
	return "", &UnrecognizedContainerError{}
}

// Encode serializes an invoice to the profile's XML schema.
func (r *Registry) Encode(inv *model.Invoice, p profile.Profile) ([]byte, error) {
	c, err := r.ForSyntax(p.Syntax)
	if err != nil {
		return nil, err
	}
	return c.Encode(inv, p)
}

// DecodeXML parses an XML payload (after any envelope unwrapping) with the
// codec that recognizes it.
func (r *Registry) DecodeXML(content []byte) (*model.Invoice, profile.Profile, error) {
	payload, err := UnwrapEnvelope(content)
	if err != nil {
		return nil, profile.Profile{}, err
	}
	for _, c := range r.codecs {
		if c.CanDecode(payload) {
			return c.Decode(payload)
		}
	}
	return nil, profile.Profile{}, &UnrecognizedSchemaError{Root: rootName(payload)}
}

// Decode identifies the container, extracts the XML payload, and parses it.
func (r *Registry) Decode(content []byte) (*model.Invoice, profile.Profile, error) {
	container, err := DetectContainer(content)
	if err != nil {
		return nil, profile.Profile{}, err
	}

	switch container {
	case ContainerPDF:
		payload, err := ExtractXMLAttachment(content)
		if err != nil {
			return nil, profile.Profile{}, err
		}
		return r.DecodeXML(payload)
	default:
		return r.DecodeXML(content)
	}
}
