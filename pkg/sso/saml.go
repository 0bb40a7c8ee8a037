package sso

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	samltypes "github.com/russellhaering/gosaml2/types"
	dsig "github.com/russellhaering/goxmldsig"
)

// Attribute names accepted for the asserted email, in preference order.
// Identity providers disagree on which one they send.
var emailAttributes = []string{
	"email",
	"mail",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
}

// SAMLOptions configures a SAML 2.0 provider. The identity provider is
// described by its metadata document; the SP signing keypair is optional.
type SAMLOptions struct {
	Name                 string // route segment, defaults to "saml"
	MetadataURL          string // IdP metadata document
	EntityID             string // our SP entity ID
	AssertionConsumerURL string // our callback URL
	CertPath             string // SP signing certificate (PEM), optional
	KeyPath              string // SP signing key (PEM), optional
}

// SAMLProvider implements SAML 2.0 login against a single identity provider
type SAMLProvider struct {
	name string
	sp   *saml2.SAMLServiceProvider
}

// NewSAMLProvider fetches the IdP metadata and builds a service provider.
// When a signing keypair is configured, authn requests are signed.
func NewSAMLProvider(ctx context.Context, opts SAMLOptions) (*SAMLProvider, error) {
	if opts.MetadataURL == "" {
		return nil, fmt.Errorf("saml metadata URL is required")
	}
	if opts.EntityID == "" || opts.AssertionConsumerURL == "" {
		return nil, fmt.Errorf("saml entity ID and assertion consumer URL are required")
	}

	metadata, err := fetchIDPMetadata(ctx, opts.MetadataURL)
	if err != nil {
		return nil, err
	}

	certStore, err := idpCertificates(metadata)
	if err != nil {
		return nil, err
	}
	if metadata.IDPSSODescriptor == nil || len(metadata.IDPSSODescriptor.SingleSignOnServices) == 0 {
		return nil, fmt.Errorf("idp metadata has no single sign-on service")
	}

	var keyStore dsig.X509KeyStore
	signRequests := false
	if opts.CertPath != "" && opts.KeyPath != "" {
		pair, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading sp keypair: %w", err)
		}
		store := dsig.TLSCertKeyStore(pair)
		keyStore = &store
		signRequests = true
	} else {
		keyStore = dsig.RandomKeyStoreForTest()
	}

	name := opts.Name
	if name == "" {
		name = "saml"
	}

	return &SAMLProvider{
		name: name,
		sp: &saml2.SAMLServiceProvider{
			IdentityProviderSSOURL:      metadata.IDPSSODescriptor.SingleSignOnServices[0].Location,
			IdentityProviderIssuer:      metadata.EntityID,
			ServiceProviderIssuer:       opts.EntityID,
			AssertionConsumerServiceURL: opts.AssertionConsumerURL,
			SignAuthnRequests:           signRequests,
			AudienceURI:                 opts.EntityID,
			IDPCertificateStore:         certStore,
			SPKeyStore:                  keyStore,
		},
	}, nil
}

func fetchIDPMetadata(ctx context.Context, url string) (*samltypes.EntityDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching idp metadata: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching idp metadata: unexpected status %d", res.StatusCode)
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading idp metadata: %w", err)
	}
	return parseIDPMetadata(raw)
}

func parseIDPMetadata(raw []byte) (*samltypes.EntityDescriptor, error) {
	metadata := &samltypes.EntityDescriptor{}
	if err := xml.Unmarshal(raw, metadata); err != nil {
		return nil, fmt.Errorf("parsing idp metadata: %w", err)
	}
	return metadata, nil
}

func idpCertificates(metadata *samltypes.EntityDescriptor) (*dsig.MemoryX509CertificateStore, error) {
	store := &dsig.MemoryX509CertificateStore{}
	if metadata.IDPSSODescriptor == nil {
		return nil, fmt.Errorf("idp metadata has no IDPSSODescriptor")
	}
	for _, kd := range metadata.IDPSSODescriptor.KeyDescriptors {
		for _, xcert := range kd.KeyInfo.X509Data.X509Certificates {
			if xcert.Data == "" {
				continue
			}
			der, err := base64.StdEncoding.DecodeString(xcert.Data)
			if err != nil {
				return nil, fmt.Errorf("decoding idp certificate: %w", err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("parsing idp certificate: %w", err)
			}
			store.Roots = append(store.Roots, cert)
		}
	}
	if len(store.Roots) == 0 {
		return nil, fmt.Errorf("idp metadata contains no signing certificates")
	}
	return store, nil
}

// Name returns the provider's route segment
func (p *SAMLProvider) Name() string { return p.name }

// Kind returns KindSAML
func (p *SAMLProvider) Kind() Kind { return KindSAML }

// InitiateLogin redirects to the IdP with state carried as RelayState
func (p *SAMLProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	authURL, err := p.sp.BuildAuthURL(state)
	if err != nil {
		return fmt.Errorf("building saml auth URL: %w", err)
	}
	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// HandleCallback validates the posted SAML assertion
func (p *SAMLProvider) HandleCallback(r *http.Request) (*ExternalUser, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parsing saml callback form: %w", err)
	}
	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	info, err := p.sp.RetrieveAssertionInfo(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("validating saml assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("saml assertion is outside its validity window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("saml assertion is not addressed to this service")
		}
	}

	user := &ExternalUser{
		ExternalID: info.NameID,
		Attributes: make(map[string]string),
	}
	for name, attr := range info.Values {
		if len(attr.Values) > 0 {
			user.Attributes[name] = attr.Values[0].Value
		}
	}
	for _, name := range emailAttributes {
		if v := info.Values.Get(name); v != "" {
			user.Email = v
			break
		}
	}
	user.FirstName = info.Values.Get("givenName")
	user.LastName = info.Values.Get("sn")
	user.Username = info.Values.Get("uid")
	if user.Username == "" {
		user.Username = user.Email
	}

	if user.ExternalID == "" {
		return nil, fmt.Errorf("saml assertion has no NameID")
	}
	if user.Email == "" {
		return nil, fmt.Errorf("saml assertion has no email attribute")
	}
	return user, nil
}
