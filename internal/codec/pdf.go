package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rezonia/einvoice-engine/internal/profile"
)

// attachmentName returns the conventional file name for the embedded XML.
// Hybrid ZUGFeRD PDFs carry factur-x.xml; UBL payloads keep a generic name.
func attachmentName(p profile.Profile) string {
	if p.Syntax == profile.SyntaxCII {
		return "factur-x.xml"
	}
	return "invoice.xml"
}

// EmbedXMLAttachment attaches invoice XML to an existing PDF, producing a
// hybrid document in the ZUGFeRD manner. The page content is taken as-is;
// only the attachment is added.
func EmbedXMLAttachment(pdf, xml []byte, p profile.Profile) ([]byte, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, fmt.Errorf("reading carrier PDF: %w", err)
	}

	now := time.Now()
	a := pdfmodel.Attachment{
		Reader:   bytes.NewReader(xml),
		ID:       attachmentName(p),
		FileName: attachmentName(p),
		Desc:     p.Name + " invoice data",
		ModTime:  &now,
	}
	if err := ctx.AddAttachment(a, false); err != nil {
		return nil, fmt.Errorf("embedding invoice XML: %w", err)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("writing hybrid PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractXMLAttachment returns the first XML attachment found in a PDF.
// A PDF without one is an unrecognized container for our purposes: it may
// be a fine document, but it carries no invoice payload.
func ExtractXMLAttachment(pdf []byte) ([]byte, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, &UnrecognizedContainerError{Hint: "unreadable PDF"}
	}

	attachments, err := ctx.ListAttachments()
	if err != nil {
		return nil, &UnrecognizedContainerError{Hint: "PDF without attachment table"}
	}

	for _, a := range attachments {
		if !strings.HasSuffix(strings.ToLower(a.FileName), ".xml") {
			continue
		}
		extracted, err := ctx.ExtractAttachment(a)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", a.FileName, err)
		}
		content, err := io.ReadAll(extracted.Reader)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", a.FileName, err)
		}
		return content, nil
	}
	return nil, &UnrecognizedContainerError{Hint: "PDF carries no XML attachment"}
}
