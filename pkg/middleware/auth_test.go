package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyhq/canopy/pkg/auth"
)

func newAuthMiddleware(t *testing.T, optional bool) (*AuthMiddleware, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewAuthMiddleware(auth.NewTokenStore(db), optional), mock
}

func identityCapturingHandler(captured **auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	t.Run("optional mode passes through as anonymous", func(t *testing.T) {
		m, _ := newAuthMiddleware(t, true)
		var captured *auth.Identity

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		rec := httptest.NewRecorder()
		m.Handler(identityCapturingHandler(&captured)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, captured)
	})

	t.Run("required mode rejects", func(t *testing.T) {
		m, _ := newAuthMiddleware(t, false)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
		rec := httptest.NewRecorder()
		m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	m, _ := newAuthMiddleware(t, true)

	for _, header := range []string{"Basic abc", "Bearer", "canopy_token_without_scheme"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	m, mock := newAuthMiddleware(t, true)
	var captured *auth.Identity

	mock.ExpectQuery(`SELECT t.user_id, u.username, t.expires_at, t.revoked_at`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "expires_at", "revoked_at"}).
			AddRow("22222222-2222-2222-2222-222222222222", "ada", nil, nil))
	mock.ExpectExec(`UPDATE api_tokens SET last_used_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+auth.TokenPrefix+strings.Repeat("a", auth.TokenLength))
	rec := httptest.NewRecorder()
	m.Handler(identityCapturingHandler(&captured)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "ada", captured.Username)
}

func TestAuthMiddleware_InvalidTokenRejectedEvenWhenOptional(t *testing.T) {
	m, mock := newAuthMiddleware(t, true)

	mock.ExpectQuery(`SELECT t.user_id, u.username, t.expires_at, t.revoked_at`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "expires_at", "revoked_at"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+auth.TokenPrefix+strings.Repeat("b", auth.TokenLength))
	rec := httptest.NewRecorder()
	m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
	rec := httptest.NewRecorder()

	RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
