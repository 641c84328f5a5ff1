package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canopyhq/canopy/pkg/async"
	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/httputil"
	"github.com/canopyhq/canopy/pkg/permissions"
	"github.com/canopyhq/canopy/pkg/projects"
)

// auditMemberChange records a ledger mutation off the request path
func (s *Server) auditMemberChange(eventType audit.EventType, actorID, projectID, targetUserID, role string) {
	logger := s.audit
	async.SafeGo(auditTimeout, "audit."+string(eventType), func(ctx context.Context) error {
		return logger.LogMemberChange(ctx, eventType, actorID, projectID, targetUserID, role)
	})
}

// resolveProjectForManagement resolves the path identifier and checks the
// caller can manage members. Read access is checked first so a non-member
// probing a private project still sees a 404.
func (s *Server) resolveProjectForManagement(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectRead(w, r, raw)
	if !ok {
		return "", false
	}
	if !s.gate.RequireMemberManagement(w, r, decision.ProjectID) {
		return "", false
	}
	return decision.ProjectID, true
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.resolveProjectForManagement(w, r)
	if !ok {
		return
	}

	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !permissions.ClassifyID(req.UserID).IsCanonical() {
		httputil.WriteBadRequest(w, "user_id must be a canonical user id")
		return
	}
	role := projects.Role(req.Role)
	if !role.Valid() {
		httputil.WriteBadRequest(w, "role must be owner, maintainer, or contributor")
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	membership, err := s.projects.AddMember(r.Context(), projectID, req.UserID, role, caller.UserID)
	if err != nil {
		if errors.Is(err, projects.ErrConflict) {
			httputil.WriteConflict(w, "member was added concurrently")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMemberChange(audit.EventTypeMemberAdd, caller.UserID, projectID, req.UserID, string(membership.Role))
	httputil.WriteCreated(w, membership)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectRead(w, r, raw)
	if !ok {
		return
	}

	members, err := s.projects.ListMembers(r.Context(), decision.ProjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if members == nil {
		members = []projects.Membership{}
	}
	httputil.WriteSuccess(w, members)
}

// memberHistory returns every ledger row for the project, including departed
// members. The full history is visible only to owners and maintainers.
func (s *Server) memberHistory(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.resolveProjectForManagement(w, r)
	if !ok {
		return
	}

	history, err := s.projects.MemberHistory(r.Context(), projectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if history == nil {
		history = []projects.Membership{}
	}
	httputil.WriteSuccess(w, history)
}

func (s *Server) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	projectID, ok := s.resolveProjectForManagement(w, r)
	if !ok {
		return
	}
	targetUserID := mux.Vars(r)["userId"]
	// A value that cannot be a user id cannot have an active membership
	if !permissions.ClassifyID(targetUserID).IsCanonical() {
		httputil.WriteNotFoundError(w, "no active membership for user")
		return
	}

	var req UpdateMemberRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role := projects.Role(req.Role)
	if !role.Valid() {
		httputil.WriteBadRequest(w, "role must be owner, maintainer, or contributor")
		return
	}

	if err := s.projects.UpdateMemberRole(r.Context(), projectID, targetUserID, role); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			httputil.WriteNotFoundError(w, "no active membership for user")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMemberChange(audit.EventTypeMemberRoleChange, caller.UserID, projectID, targetUserID, string(role))
	httputil.WriteNoContent(w)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	targetUserID := mux.Vars(r)["userId"]

	raw := mux.Vars(r)["project"]
	decision, readable := s.gate.RequireProjectRead(w, r, raw)
	if !readable {
		return
	}
	// Members may always remove themselves; removing anyone else requires
	// the manage capability.
	if targetUserID != caller.UserID {
		if !s.gate.RequireMemberManagement(w, r, decision.ProjectID) {
			return
		}
	}

	// Removing a user with no active row is a no-op, like leaving twice.
	// A malformed target id can match nothing, so it is the same no-op.
	if !permissions.ClassifyID(targetUserID).IsCanonical() {
		httputil.WriteNoContent(w)
		return
	}
	if err := s.projects.RemoveMember(r.Context(), decision.ProjectID, targetUserID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMemberChange(audit.EventTypeMemberRemove, caller.UserID, decision.ProjectID, targetUserID, "")
	httputil.WriteNoContent(w)
}
