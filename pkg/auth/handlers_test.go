package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mindara-hq/eventdesk/pkg/contextkeys"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

func setupHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := setupMockDB(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewHandlers(NewStore(db), nil, logger), mock
}

func serveAuth(h *Handlers, r *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	h.RegisterPublicRoutes(router)
	h.RegisterProtectedRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegister(t *testing.T) {
	t.Run("creates a basic account", func(t *testing.T) {
		h, mock := setupHandlers(t)
		want := &Principal{
			ID: 5, Email: "ana@example.com", Username: "ana",
			Role: RoleUser, IsActive: true,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		mock.ExpectQuery(`INSERT INTO principals`).
			WithArgs("ana@example.com", "ana", sqlmock.AnyArg(), RoleUser).
			WillReturnRows(principalRows(t, want))

		rec := serveAuth(h, jsonRequest("POST", "/auth/register",
			`{"email":"ana@example.com","username":"ana","password":"hunter2hunter2"}`))
		require.Equal(t, http.StatusCreated, rec.Code)

		var p Principal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, RoleUser, p.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		h, mock := setupHandlers(t)
		mock.ExpectQuery(`INSERT INTO principals`).
			WillReturnError(&pq.Error{Code: uniqueViolation})

		rec := serveAuth(h, jsonRequest("POST", "/auth/register",
			`{"email":"ana@example.com","username":"ana","password":"hunter2hunter2"}`))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("field validation", func(t *testing.T) {
		cases := []struct {
			name  string
			body  string
			field string
		}{
			{"bad email", `{"email":"nope","username":"ana","password":"hunter2hunter2"}`, "email"},
			{"missing username", `{"email":"ana@example.com","password":"hunter2hunter2"}`, "username"},
			{"short password", `{"email":"ana@example.com","username":"ana","password":"short"}`, "password"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				h, _ := setupHandlers(t)
				rec := serveAuth(h, jsonRequest("POST", "/auth/register", tc.body))
				require.Equal(t, http.StatusBadRequest, rec.Code)

				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tc.field, body["field"])
			})
		}
	})
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	authRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "email", "username", "first_name", "last_name", "role",
			"phone", "is_active", "created_at", "updated_at", "last_login_at", "password_hash",
		}).AddRow(int64(3), "ana@example.com", "ana", "Ana", "Lopez", RoleUser,
			"", true, time.Now(), time.Now(), nil, string(hash))
	}

	t.Run("success returns a token", func(t *testing.T) {
		h, mock := setupHandlers(t)
		mock.ExpectQuery(`SELECT .+ FROM principals WHERE email = \$1`).
			WithArgs("ana@example.com").
			WillReturnRows(authRows())
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE principals SET last_login_at = NOW() WHERE id = $1`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO sessions`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "expires_at"}).
				AddRow(int64(1), time.Now(), time.Now().Add(SessionTTL)))

		rec := serveAuth(h, jsonRequest("POST", "/auth/login",
			`{"email":"ana@example.com","password":"correct-horse"}`))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, strings.HasPrefix(resp.Token, "edsk_"))
		require.NotNil(t, resp.Principal)
		assert.Equal(t, "ana@example.com", resp.Principal.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		h, mock := setupHandlers(t)
		mock.ExpectQuery(`SELECT .+ FROM principals WHERE email = \$1`).
			WillReturnRows(authRows())

		rec := serveAuth(h, jsonRequest("POST", "/auth/login",
			`{"email":"ana@example.com","password":"wrong"}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	t.Run("revokes the presented session", func(t *testing.T) {
		h, mock := setupHandlers(t)
		token, _, _, err := GenerateToken()
		require.NoError(t, err)
		mock.ExpectExec(`UPDATE sessions SET revoked_at = NOW\(\)`).
			WithArgs(HashToken(token)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := serveAuth(h, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		h, _ := setupHandlers(t)
		rec := serveAuth(h, httptest.NewRequest("POST", "/auth/logout", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown token is unauthorized", func(t *testing.T) {
		h, mock := setupHandlers(t)
		token, _, _, err := GenerateToken()
		require.NoError(t, err)
		mock.ExpectExec(`UPDATE sessions SET revoked_at = NOW\(\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		req := httptest.NewRequest("POST", "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := serveAuth(h, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCurrentSession(t *testing.T) {
	t.Run("returns the authenticated principal", func(t *testing.T) {
		h, _ := setupHandlers(t)
		p := &Principal{ID: 3, Email: "ana@example.com", Username: "ana", Role: RoleUser, IsActive: true}

		req := httptest.NewRequest("GET", "/auth/session", nil)
		req = req.WithContext(context.WithValue(req.Context(), contextkeys.PrincipalKey, p))
		rec := serveAuth(h, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got Principal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, p.Email, got.Email)
	})

	t.Run("unauthenticated request is rejected", func(t *testing.T) {
		h, _ := setupHandlers(t)
		rec := serveAuth(h, httptest.NewRequest("GET", "/auth/session", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
