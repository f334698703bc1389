package advisory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/internal/advisory"
)

func TestNewClient(t *testing.T) {
	client := advisory.NewClient("test-api-key")
	require.NotNil(t, client)
}

func TestNewClient_WithOptions(t *testing.T) {
	client := advisory.NewClient("test-api-key",
		advisory.WithBaseURL("https://custom.api.com/v1"),
		advisory.WithDefaultModel(advisory.ModelGPT4oMini),
	)
	require.NotNil(t, client)
}

func TestNewReviewer_WithModel(t *testing.T) {
	client := advisory.NewClient("test-api-key")
	reviewer := advisory.NewReviewer(client, advisory.WithModel(advisory.ModelClaude3Haiku))
	require.NotNil(t, reviewer)
}

func TestNoop(t *testing.T) {
	findings, err := advisory.Noop{}.Review(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "Findings:\n```json\n[\"line 2: price unusually high\"]\n```",
			expected: `["line 2: price unusually high"]`,
		},
		{
			name:     "generic code block",
			input:    "```\n[]\n```",
			expected: `[]`,
		},
		{
			name:     "raw array",
			input:    `["seller and buyer share an address"]`,
			expected: `["seller and buyer share an address"]`,
		},
		{
			name:     "raw object",
			input:    `{"findings": []}`,
			expected: `{"findings": []}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, advisory.ExtractJSON(tt.input))
		})
	}
}

func TestParseFindings(t *testing.T) {
	findings, err := advisory.ParseFindings("```json\n[\"a\", \"b\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, findings)

	findings, err = advisory.ParseFindings("[]")
	require.NoError(t, err)
	assert.Empty(t, findings)

	_, err = advisory.ParseFindings("the invoice looks fine to me")
	assert.Error(t, err)
}
