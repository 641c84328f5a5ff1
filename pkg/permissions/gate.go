package permissions

import (
	"errors"
	"net/http"

	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/httputil"
	"github.com/canopyhq/canopy/pkg/observability"
)

// Gate translates access decisions into HTTP responses for handlers.
//
// A read-denied private resource produces the same 404 as a missing one,
// so responses never confirm existence to unauthorized callers. 403 is
// reserved for callers who can already read the resource but asked for a
// write they do not have.
type Gate struct {
	service *Service
	metrics *observability.Metrics
}

// NewGate creates a gate over the permission service
func NewGate(service *Service, metrics *observability.Metrics) *Gate {
	return &Gate{service: service, metrics: metrics}
}

// Service exposes the underlying permission service for non-HTTP callers
func (g *Gate) Service() *Service {
	return g.service
}

type checkFunc func(r *http.Request, caller *auth.Identity) (AccessDecision, error)

// RequireProjectRead gates a read on a project identified by raw id or slug
func (g *Gate) RequireProjectRead(w http.ResponseWriter, r *http.Request, raw string) (AccessDecision, bool) {
	return g.requireRead(w, r, "project", func(r *http.Request, caller *auth.Identity) (AccessDecision, error) {
		return g.service.CheckProjectAccess(r.Context(), raw, caller)
	})
}

// RequireProjectWrite gates a mutation on a project
func (g *Gate) RequireProjectWrite(w http.ResponseWriter, r *http.Request, raw string) (AccessDecision, bool) {
	return g.requireWrite(w, r, "project", func(r *http.Request, caller *auth.Identity) (AccessDecision, error) {
		return g.service.CheckProjectAccess(r.Context(), raw, caller)
	})
}

// RequireTreeRead gates a read on a tree
func (g *Gate) RequireTreeRead(w http.ResponseWriter, r *http.Request, treeID string) (AccessDecision, bool) {
	return g.requireRead(w, r, "tree", func(r *http.Request, caller *auth.Identity) (AccessDecision, error) {
		return g.service.CheckTreeAccess(r.Context(), treeID, caller)
	})
}

// RequireTreeWrite gates a mutation on a tree
func (g *Gate) RequireTreeWrite(w http.ResponseWriter, r *http.Request, treeID string) (AccessDecision, bool) {
	return g.requireWrite(w, r, "tree", func(r *http.Request, caller *auth.Identity) (AccessDecision, error) {
		return g.service.CheckTreeAccess(r.Context(), treeID, caller)
	})
}

// RequireNodeRead gates a read on a node
func (g *Gate) RequireNodeRead(w http.ResponseWriter, r *http.Request, nodeID string) (AccessDecision, bool) {
	return g.requireRead(w, r, "node", func(r *http.Request, caller *auth.Identity) (AccessDecision, error) {
		return g.service.CheckNodeAccess(r.Context(), nodeID, caller)
	})
}

// RequireNodeWrite gates a mutation on a node
func (g *Gate) RequireNodeWrite(w http.ResponseWriter, r *http.Request, nodeID string) (AccessDecision, bool) {
	return g.requireWrite(w, r, "node", func(r *http.Request, caller *auth.Identity) (AccessDecision, error) {
		return g.service.CheckNodeAccess(r.Context(), nodeID, caller)
	})
}

// RequireMemberManagement gates add/remove-member operations. The caller
// must already hold read access on the project; deny is a plain 403 here
// because membership of a readable project is not a secret.
func (g *Gate) RequireMemberManagement(w http.ResponseWriter, r *http.Request, projectID string) bool {
	caller := auth.IdentityFromContext(r.Context())
	if caller == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return false
	}

	allowed, err := g.service.CanManageMembers(r.Context(), projectID, caller)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return false
	}
	if !allowed {
		g.countDenied("project", "manage_members")
		httputil.WriteForbidden(w, "requires owner or maintainer role")
		return false
	}

	return true
}

func (g *Gate) requireRead(w http.ResponseWriter, r *http.Request, resource string, check checkFunc) (AccessDecision, bool) {
	caller := auth.IdentityFromContext(r.Context())

	decision, err := check(r, caller)
	if err != nil {
		g.writeCheckError(w, err)
		return AccessDecision{}, false
	}

	if !decision.CanRead {
		// Same response as a missing resource
		g.countDenied(resource, "read")
		httputil.WriteNotFoundError(w, "resource not found")
		return AccessDecision{}, false
	}

	return decision, true
}

func (g *Gate) requireWrite(w http.ResponseWriter, r *http.Request, resource string, check checkFunc) (AccessDecision, bool) {
	decision, ok := g.requireRead(w, r, resource, check)
	if !ok {
		return AccessDecision{}, false
	}

	if !decision.CanWrite {
		g.countDenied(resource, "write")
		httputil.WriteForbidden(w, "write access requires project membership")
		return AccessDecision{}, false
	}

	return decision, true
}

func (g *Gate) writeCheckError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "resource not found")
		return
	}
	httputil.WriteInternalError(w, err)
}

func (g *Gate) countDenied(resource, capability string) {
	if g.metrics == nil {
		return
	}
	g.metrics.AccessDeniedTotal.WithLabelValues(resource, capability).Inc()
}
