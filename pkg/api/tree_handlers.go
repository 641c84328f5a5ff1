package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/httputil"
	"github.com/canopyhq/canopy/pkg/trees"
)

func (s *Server) createTree(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectWrite(w, r, raw)
	if !ok {
		return
	}

	var req CreateTreeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	tree := &trees.ExperimentTree{
		ProjectID:   decision.ProjectID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.trees.CreateTree(r.Context(), tree); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeTreeCreate, caller.UserID, audit.ResourceTypeTree, tree.ID, decision.ProjectID)
	httputil.WriteCreated(w, tree)
}

func (s *Server) listTrees(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["project"]
	decision, ok := s.gate.RequireProjectRead(w, r, raw)
	if !ok {
		return
	}

	list, err := s.trees.ListTrees(r.Context(), decision.ProjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if list == nil {
		list = []trees.ExperimentTree{}
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) getTree(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	if _, ok := s.gate.RequireTreeRead(w, r, treeID); !ok {
		return
	}

	tree, err := s.trees.GetTree(r.Context(), treeID)
	if err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, tree)
}

func (s *Server) updateTree(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	decision, ok := s.gate.RequireTreeWrite(w, r, treeID)
	if !ok {
		return
	}

	var req UpdateTreeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	status := trees.TreeStatus(req.Status)
	if req.Status == "" {
		status = trees.TreeStatusActive
	}
	if status != trees.TreeStatusActive && status != trees.TreeStatusArchived {
		httputil.WriteBadRequest(w, "status must be active or archived")
		return
	}

	tree := &trees.ExperimentTree{
		ID:          treeID,
		Name:        req.Name,
		Description: req.Description,
		Status:      status,
	}
	if err := s.trees.UpdateTree(r.Context(), tree); err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeTreeUpdate, caller.UserID, audit.ResourceTypeTree, treeID, decision.ProjectID)

	updated, err := s.trees.GetTree(r.Context(), treeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteTree(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	decision, ok := s.gate.RequireTreeWrite(w, r, treeID)
	if !ok {
		return
	}

	if err := s.trees.DeleteTree(r.Context(), treeID); err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeTreeDelete, caller.UserID, audit.ResourceTypeTree, treeID, decision.ProjectID)
	httputil.WriteNoContent(w)
}

func (s *Server) getTreeAccess(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	decision, ok := s.gate.RequireTreeRead(w, r, treeID)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, decision)
}

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	if _, ok := s.gate.RequireTreeWrite(w, r, treeID); !ok {
		return
	}

	var req CreateBlockRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	block := &trees.TreeBlock{
		TreeID:    treeID,
		Name:      req.Name,
		Position:  req.Position,
		BlockType: req.BlockType,
	}
	if err := s.trees.CreateBlock(r.Context(), block); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, block)
}

func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	if _, ok := s.gate.RequireTreeRead(w, r, treeID); !ok {
		return
	}

	blocks, err := s.trees.ListBlocks(r.Context(), treeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if blocks == nil {
		blocks = []trees.TreeBlock{}
	}
	httputil.WriteSuccess(w, blocks)
}
