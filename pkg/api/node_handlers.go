package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/httputil"
	"github.com/canopyhq/canopy/pkg/permissions"
	"github.com/canopyhq/canopy/pkg/storage/postgres"
	"github.com/canopyhq/canopy/pkg/trees"
)

// maxAttachmentSize caps uploaded attachment payloads at 32 MiB
const maxAttachmentSize = 32 << 20

func validNodeStatus(s trees.NodeStatus) bool {
	switch s {
	case trees.NodeStatusProposed, trees.NodeStatusActive, trees.NodeStatusValidated, trees.NodeStatusRejected:
		return true
	}
	return false
}

func validDependencyType(t trees.DependencyType) bool {
	switch t {
	case trees.DependencyBlocks, trees.DependencyInforms, trees.DependencySupports:
		return true
	}
	return false
}

func (s *Server) createNode(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	decision, ok := s.gate.RequireTreeWrite(w, r, treeID)
	if !ok {
		return
	}

	var req CreateNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.Status != "" && !validNodeStatus(trees.NodeStatus(req.Status)) {
		httputil.WriteBadRequest(w, "invalid node status")
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		httputil.WriteBadRequest(w, "confidence must be between 0 and 1")
		return
	}

	node := &trees.TreeNode{
		TreeID:     treeID,
		BlockID:    req.BlockID,
		Name:       req.Name,
		NodeType:   req.NodeType,
		Position:   req.Position,
		Status:     trees.NodeStatus(req.Status),
		Confidence: req.Confidence,
		Content:    req.Content,
	}
	if err := s.trees.CreateNode(r.Context(), node); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeNodeCreate, caller.UserID, audit.ResourceTypeNode, node.ID, decision.ProjectID)
	httputil.WriteCreated(w, node)
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	treeID := mux.Vars(r)["treeId"]
	if _, ok := s.gate.RequireTreeRead(w, r, treeID); !ok {
		return
	}

	nodes, err := s.trees.ListNodes(r.Context(), treeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if nodes == nil {
		nodes = []trees.TreeNode{}
	}
	httputil.WriteSuccess(w, nodes)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeRead(w, r, nodeID); !ok {
		return
	}

	node, err := s.trees.GetNode(r.Context(), nodeID)
	if err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, node)
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	decision, ok := s.gate.RequireNodeWrite(w, r, nodeID)
	if !ok {
		return
	}

	var req UpdateNodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	status := trees.NodeStatus(req.Status)
	if req.Status == "" {
		status = trees.NodeStatusProposed
	}
	if !validNodeStatus(status) {
		httputil.WriteBadRequest(w, "invalid node status")
		return
	}
	if req.Confidence != nil && (*req.Confidence < 0 || *req.Confidence > 1) {
		httputil.WriteBadRequest(w, "confidence must be between 0 and 1")
		return
	}

	node := &trees.TreeNode{
		ID:         nodeID,
		BlockID:    req.BlockID,
		Name:       req.Name,
		Position:   req.Position,
		Status:     status,
		Confidence: req.Confidence,
		Content:    req.Content,
	}
	if err := s.trees.UpdateNode(r.Context(), node); err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeNodeUpdate, caller.UserID, audit.ResourceTypeNode, nodeID, decision.ProjectID)

	updated, err := s.trees.GetNode(r.Context(), nodeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	decision, ok := s.gate.RequireNodeWrite(w, r, nodeID)
	if !ok {
		return
	}

	if err := s.trees.DeleteNode(r.Context(), nodeID); err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	s.auditMutation(audit.EventTypeNodeDelete, caller.UserID, audit.ResourceTypeNode, nodeID, decision.ProjectID)
	httputil.WriteNoContent(w)
}

func (s *Server) getNodeAccess(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	decision, ok := s.gate.RequireNodeRead(w, r, nodeID)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, decision)
}

// uploadAttachment stores the payload content-addressed in object storage
// and records the metadata row. Identical payloads share one object.
func (s *Server) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	decision, ok := s.gate.RequireNodeWrite(w, r, nodeID)
	if !ok {
		return
	}
	if s.blobs == nil {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, "attachment storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteBadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize+1))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if len(data) > maxAttachmentSize {
		httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "attachment exceeds size limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	key := postgres.AttachmentKey(checksum)

	if _, err := s.blobs.Put(r.Context(), key, bytes.NewReader(data), contentType); err != nil {
		httputil.WriteInternalError(w, fmt.Errorf("failed to store attachment: %w", err))
		return
	}

	caller := auth.IdentityFromContext(r.Context())
	attachment := &trees.NodeAttachment{
		NodeID:      nodeID,
		FileName:    header.Filename,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		StorageKey:  key,
		Checksum:    checksum,
		UploadedBy:  caller.UserID,
	}
	if err := s.trees.CreateAttachment(r.Context(), attachment); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.auditMutation(audit.EventTypeFileUpload, caller.UserID, audit.ResourceTypeAttachment, attachment.ID, decision.ProjectID)
	httputil.WriteCreated(w, attachment)
}

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeRead(w, r, nodeID); !ok {
		return
	}

	attachments, err := s.trees.ListAttachments(r.Context(), nodeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if attachments == nil {
		attachments = []trees.NodeAttachment{}
	}
	httputil.WriteSuccess(w, attachments)
}

// downloadAttachment streams the payload. The permission check runs against
// the attachment's node, so an attachment on an unreadable node 404s.
func (s *Server) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	attachmentID := mux.Vars(r)["attachmentId"]
	if !permissions.ClassifyID(attachmentID).IsCanonical() {
		httputil.WriteNotFoundError(w, "resource not found")
		return
	}

	attachment, err := s.trees.GetAttachment(r.Context(), attachmentID)
	if err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			httputil.WriteNotFoundError(w, "resource not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	if _, ok := s.gate.RequireNodeRead(w, r, attachment.NodeID); !ok {
		return
	}
	if s.blobs == nil {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, "attachment storage is not configured")
		return
	}

	body, err := s.blobs.Get(r.Context(), attachment.StorageKey)
	if err != nil {
		httputil.WriteInternalError(w, fmt.Errorf("failed to fetch attachment: %w", err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

func (s *Server) createLink(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeWrite(w, r, nodeID); !ok {
		return
	}

	var req CreateLinkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.URL == "" {
		httputil.WriteBadRequest(w, "url is required")
		return
	}

	link := &trees.NodeLink{
		NodeID: nodeID,
		Title:  req.Title,
		URL:    req.URL,
	}
	if err := s.trees.CreateLink(r.Context(), link); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, link)
}

func (s *Server) listLinks(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeRead(w, r, nodeID); !ok {
		return
	}

	links, err := s.trees.ListLinks(r.Context(), nodeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if links == nil {
		links = []trees.NodeLink{}
	}
	httputil.WriteSuccess(w, links)
}

func (s *Server) createDependency(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeWrite(w, r, nodeID); !ok {
		return
	}

	var req CreateDependencyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.FromNodeID == "" {
		req.FromNodeID = nodeID
	}
	if req.FromNodeID != nodeID && req.ToNodeID != nodeID {
		httputil.WriteBadRequest(w, "dependency must involve this node")
		return
	}
	if req.ToNodeID == "" || req.FromNodeID == req.ToNodeID {
		httputil.WriteBadRequest(w, "from_node_id and to_node_id must be distinct")
		return
	}
	depType := trees.DependencyType(req.Type)
	if !validDependencyType(depType) {
		httputil.WriteBadRequest(w, "type must be blocks, informs, or supports")
		return
	}

	dependency := &trees.NodeDependency{
		FromNodeID: req.FromNodeID,
		ToNodeID:   req.ToNodeID,
		Type:       depType,
		Evidence:   req.Evidence,
	}
	if err := s.trees.CreateDependency(r.Context(), dependency); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, dependency)
}

func (s *Server) listDependencies(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeRead(w, r, nodeID); !ok {
		return
	}

	dependencies, err := s.trees.ListDependencies(r.Context(), nodeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if dependencies == nil {
		dependencies = []trees.NodeDependency{}
	}
	httputil.WriteSuccess(w, dependencies)
}

// addReference records a pointer from a node to another tree. The caller
// needs write access to the node only; readability of the referenced tree
// is deliberately not checked, and the pointer grants no access to it.
func (s *Server) addReference(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeWrite(w, r, nodeID); !ok {
		return
	}

	var req AddReferenceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !permissions.ClassifyID(req.ReferencedTreeID).IsCanonical() {
		httputil.WriteBadRequest(w, "referenced_tree_id must be a canonical tree id")
		return
	}

	if err := s.trees.AddReference(r.Context(), nodeID, req.ReferencedTreeID); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, ReferenceListResponse{NodeID: nodeID, ReferencedTreeIDs: []string{req.ReferencedTreeID}})
}

func (s *Server) listReferences(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	if _, ok := s.gate.RequireNodeRead(w, r, nodeID); !ok {
		return
	}

	ids, err := s.trees.ReferencedTreeIDs(r.Context(), nodeID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteSuccess(w, ReferenceListResponse{NodeID: nodeID, ReferencedTreeIDs: ids})
}

func (s *Server) removeReference(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	nodeID := vars["nodeId"]
	if _, ok := s.gate.RequireNodeWrite(w, r, nodeID); !ok {
		return
	}

	// A malformed tree id can match nothing; removal of nothing succeeds
	if !permissions.ClassifyID(vars["treeId"]).IsCanonical() {
		httputil.WriteNoContent(w)
		return
	}

	if err := s.trees.RemoveReference(r.Context(), nodeID, vars["treeId"]); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
