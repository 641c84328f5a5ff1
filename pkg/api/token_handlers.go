package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/canopyhq/canopy/pkg/async"
	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/httputil"
)

// createToken issues a new API token. The plaintext token appears in the
// response exactly once and is never stored.
func (s *Server) createToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req CreateTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at must be in the future")
		return
	}

	apiToken, plaintext, err := s.tokens.CreateToken(r.Context(), caller.UserID, req.Name, req.ExpiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	actorID := caller.UserID
	tokenID := strconv.FormatInt(apiToken.ID, 10)
	logger := s.audit
	async.SafeGo(auditTimeout, "audit.token_create", func(ctx context.Context) error {
		return logger.LogMutation(ctx, audit.EventTypeAuthTokenCreate, actorID, audit.ResourceTypeToken, tokenID, "")
	})

	httputil.WriteCreated(w, CreateTokenResponse{Token: plaintext, APIToken: apiToken})
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	tokens, err := s.tokens.ListTokens(r.Context(), caller.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, tokens)
}

func (s *Server) revokeToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	tokenID, err := strconv.ParseInt(mux.Vars(r)["tokenId"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid token id")
		return
	}

	// Tokens are scoped to their owner: verify the id belongs to the caller
	// before revoking so one user cannot revoke another's token.
	owned, err := s.tokens.ListTokens(r.Context(), caller.UserID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	var found bool
	for _, t := range owned {
		if t.ID == tokenID {
			found = true
			break
		}
	}
	if !found {
		httputil.WriteNotFoundError(w, "token not found")
		return
	}

	if err := s.tokens.RevokeToken(r.Context(), tokenID, "revoked by owner"); err != nil {
		httputil.WriteNotFoundError(w, "token not found")
		return
	}

	actorID := caller.UserID
	logger := s.audit
	async.SafeGo(auditTimeout, "audit.token_revoke", func(ctx context.Context) error {
		return logger.LogMutation(ctx, audit.EventTypeAuthTokenRevoke, actorID, audit.ResourceTypeToken, strconv.FormatInt(tokenID, 10), "")
	})

	httputil.WriteNoContent(w)
}
