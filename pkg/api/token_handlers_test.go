package api

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyhq/canopy/pkg/auth"
)

func TestCreateToken(t *testing.T) {
	ts := newTestServer(t)

	t.Run("authenticated create returns plaintext once", func(t *testing.T) {
		rec := ts.request(t, "POST", "/api/v1/tokens", CreateTokenRequest{Name: "ci"}, ts.owner)
		mustStatus(t, rec, http.StatusCreated)

		var resp CreateTokenResponse
		decodeBody(t, rec, &resp)
		assert.True(t, strings.HasPrefix(resp.Token, auth.TokenPrefix))
		require.NotNil(t, resp.APIToken)
		assert.Equal(t, ts.owner.UserID, resp.APIToken.UserID)

		// The hash never appears in API responses
		assert.NotContains(t, rec.Body.String(), "token_hash")
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		rec := ts.request(t, "POST", "/api/v1/tokens", CreateTokenRequest{Name: "ci"}, nil)
		mustStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("past expiry is rejected", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		rec := ts.request(t, "POST", "/api/v1/tokens", CreateTokenRequest{Name: "ci", ExpiresAt: &past}, ts.owner)
		mustStatus(t, rec, http.StatusBadRequest)
	})
}

func TestListAndRevokeTokens(t *testing.T) {
	ts := newTestServer(t)

	created := ts.request(t, "POST", "/api/v1/tokens", CreateTokenRequest{Name: "laptop"}, ts.owner)
	mustStatus(t, created, http.StatusCreated)
	var resp CreateTokenResponse
	decodeBody(t, created, &resp)
	tokenID := strconv.FormatInt(resp.APIToken.ID, 10)

	t.Run("owner lists their tokens", func(t *testing.T) {
		rec := ts.request(t, "GET", "/api/v1/tokens", nil, ts.owner)
		mustStatus(t, rec, http.StatusOK)

		var tokens []*auth.APIToken
		decodeBody(t, rec, &tokens)
		require.Len(t, tokens, 1)
		assert.Equal(t, "laptop", tokens[0].Name)
	})

	t.Run("another user cannot revoke it", func(t *testing.T) {
		rec := ts.request(t, "DELETE", "/api/v1/tokens/"+tokenID, nil, ts.stranger)
		mustStatus(t, rec, http.StatusNotFound)
	})

	t.Run("owner revokes it", func(t *testing.T) {
		rec := ts.request(t, "DELETE", "/api/v1/tokens/"+tokenID, nil, ts.owner)
		mustStatus(t, rec, http.StatusNoContent)
	})

	t.Run("revoking twice 404s", func(t *testing.T) {
		rec := ts.request(t, "DELETE", "/api/v1/tokens/"+tokenID, nil, ts.owner)
		mustStatus(t, rec, http.StatusNotFound)
	})

	t.Run("invalid id is a bad request", func(t *testing.T) {
		rec := ts.request(t, "DELETE", "/api/v1/tokens/abc", nil, ts.owner)
		mustStatus(t, rec, http.StatusBadRequest)
	})
}
