package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

type fakeProvider struct {
	name      string
	lastState string
	user      *ExternalUser
	err       error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Kind() Kind   { return KindOIDC }

func (f *fakeProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	f.lastState = state
	http.Redirect(w, r, "https://idp.example.com/authorize?state="+state, http.StatusFound)
	return nil
}

func (f *fakeProvider) HandleCallback(r *http.Request) (*ExternalUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeIssuer struct {
	token string
	err   error
}

func (f *fakeIssuer) CreateSession(ctx context.Context, principalID int64) (string, *auth.Session, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.token, &auth.Session{
		ID:          1,
		PrincipalID: principalID,
		ExpiresAt:   time.Now().Add(auth.SessionTTL),
	}, nil
}

func setupHandlers(t *testing.T, provider *fakeProvider) (*Handlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers([]Provider{provider}, NewProvisioner(db), &fakeIssuer{token: "edsk_test"}, nil, logger)
	return h, mock
}

func serve(h *Handlers, r *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func TestListProviders(t *testing.T) {
	h, _ := setupHandlers(t, &fakeProvider{name: "okta"})

	rec := serve(h, httptest.NewRequest("GET", "/auth/sso/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []providerInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "okta", infos[0].Name)
	assert.Equal(t, KindOIDC, infos[0].Kind)
	assert.Equal(t, "/auth/sso/okta/login", infos[0].URL)
}

func TestInitiateLoginUnknownProvider(t *testing.T) {
	h, _ := setupHandlers(t, &fakeProvider{name: "okta"})

	rec := serve(h, httptest.NewRequest("GET", "/auth/sso/nope/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitiateLoginSetsStateCookie(t *testing.T) {
	provider := &fakeProvider{name: "okta"}
	h, _ := setupHandlers(t, provider)

	rec := serve(h, httptest.NewRequest("GET", "/auth/sso/okta/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.NotEmpty(t, provider.lastState)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "state cookie not set")
	assert.Equal(t, provider.lastState, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Contains(t, rec.Header().Get("Location"), provider.lastState)
}

func TestHandleCallbackMissingState(t *testing.T) {
	h, _ := setupHandlers(t, &fakeProvider{name: "okta", user: externalUser()})

	rec := serve(h, httptest.NewRequest("GET", "/auth/sso/okta/callback?code=abc&state=xyz", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	h, _ := setupHandlers(t, &fakeProvider{name: "okta", user: externalUser()})

	req := httptest.NewRequest("GET", "/auth/sso/okta/callback?code=abc&state=other", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})
	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCallbackSuccess(t *testing.T) {
	h, mock := setupHandlers(t, &fakeProvider{name: "okta", user: externalUser()})
	mock.ExpectQuery(`FROM sso_identities i`).
		WithArgs("okta", "idp-42").
		WillReturnRows(principalRow(3, "ana@example.com", auth.RoleUser, true))
	mock.ExpectExec(`UPDATE sso_identities SET last_login_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE principals SET last_login_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest("GET", "/auth/sso/okta/callback?code=abc&state=xyz", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "xyz"})
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "edsk_test", resp.Token)
	require.NotNil(t, resp.Principal)
	assert.Equal(t, "ana@example.com", resp.Principal.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCallbackProviderRejects(t *testing.T) {
	h, _ := setupHandlers(t, &fakeProvider{name: "okta", err: fmt.Errorf("bad assertion")})

	req := httptest.NewRequest("GET", "/auth/sso/okta/callback?state=xyz", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "xyz"})
	rec := serve(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCallbackInactiveAccount(t *testing.T) {
	h, mock := setupHandlers(t, &fakeProvider{name: "okta", user: externalUser()})
	mock.ExpectQuery(`FROM sso_identities i`).
		WillReturnRows(principalRow(3, "ana@example.com", auth.RoleUser, false))

	req := httptest.NewRequest("GET", "/auth/sso/okta/callback?state=xyz", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "xyz"})
	rec := serve(h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCallbackSAMLRelayState(t *testing.T) {
	h, mock := setupHandlers(t, &fakeProvider{name: "adfs", user: externalUser()})
	mock.ExpectQuery(`FROM sso_identities i`).
		WillReturnRows(principalRow(3, "ana@example.com", auth.RoleUser, true))
	mock.ExpectExec(`UPDATE sso_identities SET last_login_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE principals SET last_login_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	form := "SAMLResponse=ignored&RelayState=xyz"
	req := httptest.NewRequest("POST", "/auth/sso/adfs/callback", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "xyz"})
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckStateRequiresEcho(t *testing.T) {
	h, _ := setupHandlers(t, &fakeProvider{name: "okta"})

	req := httptest.NewRequest("GET", "/auth/sso/okta/callback", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "xyz"})
	assert.Error(t, h.checkState(req))
}
