package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rezonia/einvoice-engine/internal/advisory"
	"github.com/rezonia/einvoice-engine/internal/engine"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/profile"
	"github.com/rezonia/einvoice-engine/internal/server"
)

// newEngine builds an engine with the advisory reviewer when an API key is
// configured.
func newEngine() *engine.Engine {
	var reviewer advisory.Reviewer = advisory.Noop{}
	if apiKey != "" {
		var clientOpts []advisory.ClientOption
		if llmBaseURL != "" {
			clientOpts = append(clientOpts, advisory.WithBaseURL(llmBaseURL))
		}
		client := advisory.NewClient(apiKey, clientOpts...)

		var reviewerOpts []advisory.ReviewerOption
		if llmModel != "" {
			reviewerOpts = append(reviewerOpts, advisory.WithModel(llmModel))
		}
		reviewer = advisory.NewReviewer(client, reviewerOpts...)
	}
	return engine.New(engine.WithReviewer(reviewer))
}

// loadDraft reads a JSON draft file into a draft-state invoice.
func loadDraft(path string) (*model.Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading draft: %w", err)
	}
	var input server.InvoiceInput
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parsing draft: %w", err)
	}
	return input.ToModel()
}

// resolveProfile parses a profile flag value.
func resolveProfile(id string) (profile.Profile, error) {
	if id == "" {
		return profile.Profile{}, fmt.Errorf("a target profile is required (see 'einvoice-engine profiles')")
	}
	return profile.ByID(id)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
