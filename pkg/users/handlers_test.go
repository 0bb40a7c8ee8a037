package users

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/contextkeys"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

func setupHandlers(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	svc, mock := setupService(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	router := mux.NewRouter()
	NewHandlers(svc, logger).RegisterRoutes(router)
	return router, mock
}

func doRequest(t *testing.T, router *mux.Router, p *auth.Principal, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if p != nil {
		req = req.WithContext(context.WithValue(req.Context(), contextkeys.PrincipalKey, p))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListUsersEndpoint(t *testing.T) {
	t.Run("basic user forbidden", func(t *testing.T) {
		router, _ := setupHandlers(t)
		rec := doRequest(t, router, user, "GET", "/users", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin allowed", func(t *testing.T) {
		router, mock := setupHandlers(t)
		mock.ExpectQuery(`FROM principals ORDER BY username`).
			WillReturnRows(principalRow(3, "ana", auth.RoleUser))

		rec := doRequest(t, router, admin, "GET", "/users", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestChangeRoleEndpoint(t *testing.T) {
	t.Run("admin promotes", func(t *testing.T) {
		router, mock := setupHandlers(t)
		expectGet(mock, user.ID, "ana", auth.RoleUser)
		mock.ExpectExec(`UPDATE principals SET role = \$1`).
			WithArgs("MANAGER", user.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		rec := doRequest(t, router, admin, "PUT", "/users/3/role", map[string]string{"role": "MANAGER"})
		require.Equal(t, http.StatusOK, rec.Code)

		var got auth.Principal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, auth.RoleManager, got.Role)
	})

	t.Run("bogus role rejected with field", func(t *testing.T) {
		router, _ := setupHandlers(t)
		rec := doRequest(t, router, admin, "PUT", "/users/3/role", map[string]string{"role": "SUPERUSER"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp struct {
			Field string `json:"field"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "role", resp.Field)
	})
}

func TestProfileEndpoints(t *testing.T) {
	router, mock := setupHandlers(t)

	expectGet(mock, user.ID, "ana", auth.RoleUser)
	rec := doRequest(t, router, user, "GET", "/profile", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	expectGet(mock, user.ID, "ana", auth.RoleUser)
	mock.ExpectExec(`UPDATE principals SET first_name = \$1`).
		WithArgs("Ana", "Gomez", "555-0101", user.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec = doRequest(t, router, user, "PUT", "/profile", map[string]string{
		"first_name": "Ana",
		"last_name":  "Gomez",
		"phone":      "555-0101",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got auth.Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Ana", got.FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserEndpoint(t *testing.T) {
	router, mock := setupHandlers(t)

	expectGet(mock, user.ID, "ana", auth.RoleUser)
	mock.ExpectExec(`DELETE FROM principals`).
		WithArgs(user.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := doRequest(t, router, admin, "DELETE", "/users/3", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
