package codec

import (
	"github.com/beevik/etree"
)

// PEPPOL transports invoices inside a StandardBusinessDocument envelope.
// UnwrapEnvelope returns the business payload when the input is such an
// envelope, or the input unchanged otherwise.
func UnwrapEnvelope(content []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, &UnrecognizedSchemaError{Root: "malformed XML"}
	}
	root := doc.Root()
	if root == nil {
		return nil, &UnrecognizedSchemaError{Root: "empty document"}
	}
	if localName(root.Tag) != "StandardBusinessDocument" {
		return content, nil
	}

	for _, child := range root.ChildElements() {
		if localName(child.Tag) == "StandardBusinessDocumentHeader" {
			continue
		}
		inner := etree.NewDocument()
		inner.SetRoot(child.Copy())
		return inner.WriteToBytes()
	}
	return nil, &UnrecognizedSchemaError{Root: "StandardBusinessDocument without payload"}
}

// localName strips a namespace prefix like "rsm:" from a tag.
func localName(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ':' {
			return tag[i+1:]
		}
	}
	return tag
}

// rootName returns the local name of the payload's root element, for error
// messages.
func rootName(content []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return ""
	}
	if root := doc.Root(); root != nil {
		return localName(root.Tag)
	}
	return ""
}
