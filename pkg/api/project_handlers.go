package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/canopyhq/canopy/pkg/async"
	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/httputil"
	"github.com/canopyhq/canopy/pkg/projects"
)

const auditTimeout = 5 * time.Second

// requireCaller returns the authenticated identity or writes a 401
func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	caller := auth.IdentityFromContext(r.Context())
	if caller == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return caller, true
}

// auditMutation records a data mutation off the request path
func (s *Server) auditMutation(eventType audit.EventType, actorID string, resourceType audit.ResourceType, resourceID, projectID string) {
	logger := s.audit
	async.SafeGo(auditTimeout, "audit."+string(eventType), func(ctx context.Context) error {
		return logger.LogMutation(ctx, eventType, actorID, resourceType, resourceID, projectID)
	})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}

	var req CreateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Slug == "" || req.Name == "" {
		httputil.WriteBadRequest(w, "slug and name are required")
		return
	}
	if !projects.ValidSlug(req.Slug) {
		httputil.WriteBadRequest(w, "slug must be lowercase alphanumeric with hyphens and not UUID-shaped")
		return
	}
	visibility := projects.Visibility(req.Visibility)
	if !visibility.Valid() {
		httputil.WriteBadRequest(w, "visibility must be public or private")
		return
	}

	project := &projects.Project{
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  visibility,
		OwnerID:     caller.UserID,
	}
	if err := s.projects.CreateProject(r.Context(), project); err != nil {
		if errors.Is(err, projects.ErrConflict) {
			httputil.WriteConflict(w, "project slug already exists")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(audit.EventTypeProjectCreate, caller.UserID, audit.ResourceTypeProject, project.ID, project.ID)
	httputil.WriteCreated(w, project)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	var (
		list []projects.Project
		err  error
	)
	if caller := auth.IdentityFromContext(r.Context()); caller != nil {
		list, err = s.projects.ListProjectsForUser(r.Context(), caller.UserID)
	} else {
		list, err = s.projects.ListPublicProjects(r.Context())
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if list == nil {
		list = []projects.Project{}
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectRead(w, r, raw)
	if !ok {
		return
	}

	project, err := s.projects.GetProject(r.Context(), decision.ProjectID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectWrite(w, r, raw)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	visibility := projects.Visibility(req.Visibility)
	if !visibility.Valid() {
		httputil.WriteBadRequest(w, "visibility must be public or private")
		return
	}

	project := &projects.Project{
		ID:          decision.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  visibility,
	}
	if err := s.projects.UpdateProject(r.Context(), project); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeProjectUpdate, caller.UserID, audit.ResourceTypeProject, decision.ProjectID, decision.ProjectID)

	updated, err := s.projects.GetProject(r.Context(), decision.ProjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectRead(w, r, raw)
	if !ok {
		return
	}
	// Deleting a project is restricted to owners and maintainers
	if !s.gate.RequireMemberManagement(w, r, decision.ProjectID) {
		return
	}

	project, err := s.projects.GetProject(r.Context(), decision.ProjectID)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if err := s.projects.DeleteProject(r.Context(), decision.ProjectID); err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	// The slug is free for reuse once the row is gone, so any cached
	// resolution must go with it
	if project.Slug != "" {
		s.gate.Service().ForgetSlug(project.Slug)
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeProjectDelete, caller.UserID, audit.ResourceTypeProject, decision.ProjectID, decision.ProjectID)
	httputil.WriteNoContent(w)
}

// getProjectAccess reports the caller's capabilities on a project. A project
// the caller cannot read yields the same 404 as a missing one.
func (s *Server) getProjectAccess(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectRead(w, r, raw)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, decision)
}
