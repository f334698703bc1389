package profile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/internal/profile"
)

func TestByID(t *testing.T) {
	p, err := profile.ByID("zugferd-comfort")
	require.NoError(t, err)
	assert.Equal(t, "ZUGFeRD COMFORT", p.Name)
	assert.Equal(t, profile.SyntaxCII, p.Syntax)
}

func TestByID_Unknown(t *testing.T) {
	_, err := profile.ByID("fatturapa")
	require.Error(t, err)

	var upe *profile.UnsupportedProfileError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "fatturapa", upe.Name)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantID  string
		wantErr bool
	}{
		{"zugferd-comfort", "", "zugferd-comfort", false},
		{"ZUGFeRD COMFORT", "2.3", "zugferd-comfort", false},
		{"XRechnung", "3.0", "xrechnung-3", false},
		{"xrechnung", "2.3", "xrechnung-2", false},
		{"peppol-bis", "3.0", "peppol-bis", false},
		{"XRechnung", "1.0", "", true}, // unknown version never falls back
		{"unknown", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.version, func(t *testing.T) {
			p, err := profile.Parse(tt.name, tt.version)
			if tt.wantErr {
				require.Error(t, err)
				var upe *profile.UnsupportedProfileError
				assert.ErrorAs(t, err, &upe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}
}

func TestAll_CoversDeclaredProfiles(t *testing.T) {
	ids := make(map[string]bool)
	for _, p := range profile.All() {
		ids[p.ID] = true
	}
	for _, want := range []string{
		"zugferd-basic", "zugferd-comfort", "zugferd-extended",
		"xrechnung-2", "xrechnung-3", "peppol-bis",
	} {
		assert.True(t, ids[want], "missing profile %s", want)
	}
}

func TestPeppolLimits(t *testing.T) {
	p, err := profile.ByID("peppol-bis")
	require.NoError(t, err)
	assert.NotZero(t, p.MaxEncodedSize)
	assert.NotZero(t, p.MaxLines)
	assert.True(t, p.RequireBuyerVATID)
}
