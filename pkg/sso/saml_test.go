package sso

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func idpMetadataXML(cert string) string {
	return fmt.Sprintf(`<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com">
  <IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <KeyDescriptor use="signing">
      <KeyInfo xmlns="http://www.w3.org/2000/09/xmldsig#">
        <X509Data><X509Certificate>%s</X509Certificate></X509Data>
      </KeyInfo>
    </KeyDescriptor>
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/sso"/>
  </IDPSSODescriptor>
</EntityDescriptor>`, cert)
}

func metadataServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/samlmetadata+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewSAMLProviderFromMetadata(t *testing.T) {
	srv := metadataServer(t, idpMetadataXML(selfSignedCert(t)))

	p, err := NewSAMLProvider(context.Background(), SAMLOptions{
		MetadataURL:          srv.URL,
		EntityID:             "https://eventdesk.example.com",
		AssertionConsumerURL: "https://eventdesk.example.com/auth/sso/saml/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "saml", p.Name())
	assert.Equal(t, KindSAML, p.Kind())
	assert.Equal(t, "https://idp.example.com/sso", p.sp.IdentityProviderSSOURL)
	assert.Equal(t, "https://idp.example.com", p.sp.IdentityProviderIssuer)
	assert.False(t, p.sp.SignAuthnRequests)
}

func TestNewSAMLProviderRejectsMetadataWithoutCerts(t *testing.T) {
	metadata := `<EntityDescriptor xmlns="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://idp.example.com">
  <IDPSSODescriptor>
    <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="https://idp.example.com/sso"/>
  </IDPSSODescriptor>
</EntityDescriptor>`
	srv := metadataServer(t, metadata)

	_, err := NewSAMLProvider(context.Background(), SAMLOptions{
		MetadataURL:          srv.URL,
		EntityID:             "https://eventdesk.example.com",
		AssertionConsumerURL: "https://eventdesk.example.com/auth/sso/saml/callback",
	})
	assert.ErrorContains(t, err, "no signing certificates")
}

func TestNewSAMLProviderRequiresConfig(t *testing.T) {
	_, err := NewSAMLProvider(context.Background(), SAMLOptions{})
	assert.Error(t, err)

	_, err = NewSAMLProvider(context.Background(), SAMLOptions{MetadataURL: "https://idp.example.com/metadata"})
	assert.Error(t, err)
}

func TestSAMLInitiateLoginRedirects(t *testing.T) {
	srv := metadataServer(t, idpMetadataXML(selfSignedCert(t)))

	p, err := NewSAMLProvider(context.Background(), SAMLOptions{
		MetadataURL:          srv.URL,
		EntityID:             "https://eventdesk.example.com",
		AssertionConsumerURL: "https://eventdesk.example.com/auth/sso/saml/callback",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/auth/sso/saml/login", nil)
	require.NoError(t, p.InitiateLogin(rec, req, "state-123"))

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "https://idp.example.com/sso")
	assert.Contains(t, loc, "SAMLRequest=")
	assert.Contains(t, loc, "RelayState=state-123")
}

func TestSAMLCallbackRequiresResponse(t *testing.T) {
	p := &SAMLProvider{name: "saml"}
	req := httptest.NewRequest("POST", "/auth/sso/saml/callback", nil)
	_, err := p.HandleCallback(req)
	assert.ErrorContains(t, err, "SAMLResponse")
}
