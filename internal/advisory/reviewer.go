package advisory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rezonia/einvoice-engine/internal/model"
)

// Reviewer produces advisory findings for an invoice. Implementations must
// treat findings as annotations: returning an error means "no review", not
// "invalid invoice".
type Reviewer interface {
	Review(ctx context.Context, inv *model.Invoice) ([]string, error)
}

// Noop is a Reviewer that never finds anything. Used when no API key is
// configured.
type Noop struct{}

func (Noop) Review(context.Context, *model.Invoice) ([]string, error) {
	return nil, nil
}

// LLMReviewer asks a language model for plausibility findings.
type LLMReviewer struct {
	client *Client
	model  string
}

// ReviewerOption configures the reviewer
type ReviewerOption func(*LLMReviewer)

// WithModel overrides the model used for review
func WithModel(model string) ReviewerOption {
	return func(r *LLMReviewer) {
		r.model = model
	}
}

// NewReviewer creates a reviewer on top of an LLM client
func NewReviewer(client *Client, opts ...ReviewerOption) *LLMReviewer {
	r := &LLMReviewer{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Review serializes the invoice, asks the model for findings, and parses
// the JSON array it returns.
func (r *LLMReviewer) Review(ctx context.Context, inv *model.Invoice) ([]string, error) {
	payload, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing invoice for review: %w", err)
	}

	response, err := r.client.ChatText(ctx, r.model, SystemPromptReviewer,
		fmt.Sprintf(UserPromptReview, string(payload)))
	if err != nil {
		return nil, fmt.Errorf("advisory review: %w", err)
	}

	return ParseFindings(response)
}

// ParseFindings extracts the findings array from a model response.
func ParseFindings(response string) ([]string, error) {
	raw := ExtractJSON(response)

	var findings []string
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		return nil, fmt.Errorf("parsing review findings: %w", err)
	}
	return findings, nil
}
