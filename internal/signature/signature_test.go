package signature_test

import (
	"crypto/x509"
	"testing"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/einvoice-engine/internal/signature"
)

func TestInspect_UnsignedDocument(t *testing.T) {
	v := signature.NewVerifier()
	result := v.Inspect([]byte(`<?xml version="1.0"?><Invoice><ID>RE-1</ID></Invoice>`))

	assert.False(t, result.Present)
	assert.False(t, result.Valid)
	assert.Empty(t, result.Advisories())
}

func TestInspect_MalformedXML(t *testing.T) {
	v := signature.NewVerifier()
	result := v.Inspect([]byte(`<Invoice><unclosed`))

	assert.False(t, result.Present)
	assert.NotEmpty(t, result.Notes)
}

func TestInspect_SignedDocument(t *testing.T) {
	keyStore := dsig.RandomKeyStoreForTest()
	signCtx := dsig.NewDefaultSigningContext(keyStore)

	doc := etree.NewDocument()
	root := doc.CreateElement("Invoice")
	root.CreateElement("ID").SetText("RE-2024-001")

	signed, err := signCtx.SignEnveloped(root)
	require.NoError(t, err)
	out := etree.NewDocument()
	out.SetRoot(signed)
	payload, err := out.WriteToBytes()
	require.NoError(t, err)

	_, certDER, err := keyStore.GetKeyPair()
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	t.Run("trusted root", func(t *testing.T) {
		result := signature.NewVerifier(cert).Inspect(payload)
		assert.True(t, result.Present)
		assert.True(t, result.Valid)
		advisories := result.Advisories()
		require.NotEmpty(t, advisories)
		assert.Contains(t, advisories[0], "valid XMLDSig signature")
	})

	t.Run("no trusted roots", func(t *testing.T) {
		result := signature.NewVerifier().Inspect(payload)
		assert.True(t, result.Present)
		assert.False(t, result.Valid)
		advisories := result.Advisories()
		require.NotEmpty(t, advisories)
		assert.Contains(t, advisories[0], "did not verify")
	})
}

func TestInspect_TamperedSignedDocument(t *testing.T) {
	keyStore := dsig.RandomKeyStoreForTest()
	signCtx := dsig.NewDefaultSigningContext(keyStore)

	doc := etree.NewDocument()
	root := doc.CreateElement("Invoice")
	root.CreateElement("ID").SetText("RE-2024-001")

	signed, err := signCtx.SignEnveloped(root)
	require.NoError(t, err)

	// Change the signed content after signing.
	signed.FindElement("ID").SetText("RE-2024-999")
	out := etree.NewDocument()
	out.SetRoot(signed)
	payload, err := out.WriteToBytes()
	require.NoError(t, err)

	_, certDER, err := keyStore.GetKeyPair()
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	result := signature.NewVerifier(cert).Inspect(payload)
	assert.True(t, result.Present)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Notes)
}
