package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/httputil"
	"github.com/canopyhq/canopy/pkg/middleware"
	"github.com/canopyhq/canopy/pkg/observability"
	"github.com/canopyhq/canopy/pkg/permissions"
	"github.com/canopyhq/canopy/pkg/storage"
)

// Server wires the HTTP routes to the stores behind the permission gate
type Server struct {
	router *mux.Router

	gate     *permissions.Gate
	projects ProjectStore
	trees    TreeStore
	tokens   TokenStore
	audit    audit.Logger
	blobs    storage.BlobStore

	logger  *observability.Logger
	metrics *observability.Metrics
}

// ServerOptions carries the dependencies for NewServer
type ServerOptions struct {
	Gate     *permissions.Gate
	Projects ProjectStore
	Trees    TreeStore
	Tokens   TokenStore
	Audit    audit.Logger
	Blobs    storage.BlobStore

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Auth resolves bearer tokens; nil disables authentication entirely
	// (tests only). It runs in optional mode so anonymous callers can
	// still read public resources.
	Auth *middleware.AuthMiddleware

	// RateLimit is applied to all API routes when non-nil
	RateLimit *middleware.RateLimitMiddleware
}

// NewServer creates the API server and sets up all routes
func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		gate:     opts.Gate,
		projects: opts.Projects,
		trees:    opts.Trees,
		tokens:   opts.Tokens,
		audit:    opts.Audit,
		blobs:    opts.Blobs,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if s.audit == nil {
		s.audit = audit.NewNopLogger()
	}

	s.setupRoutes(opts)
	return s
}

// Router returns the fully configured handler
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes(opts ServerOptions) {
	if s.logger != nil {
		s.router.Use(httputil.RequestIDMiddleware)
		s.router.Use(httputil.LoggingMiddleware(s.logger))
		s.router.Use(httputil.RecoveryMiddleware(s.logger))
	}
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}
	if opts.RateLimit != nil {
		s.router.Use(opts.RateLimit.Handler)
	}
	if opts.Auth != nil {
		s.router.Use(opts.Auth.Handler)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Projects
	v1.HandleFunc("/projects", s.createProject).Methods("POST")
	v1.HandleFunc("/projects", s.listProjects).Methods("GET")
	v1.HandleFunc("/projects/{project}", s.getProject).Methods("GET")
	v1.HandleFunc("/projects/{project}", s.updateProject).Methods("PUT")
	v1.HandleFunc("/projects/{project}", s.deleteProject).Methods("DELETE")
	v1.HandleFunc("/projects/{project}/access", s.getProjectAccess).Methods("GET")

	// Membership ledger
	v1.HandleFunc("/projects/{project}/members", s.addMember).Methods("POST")
	v1.HandleFunc("/projects/{project}/members", s.listMembers).Methods("GET")
	v1.HandleFunc("/projects/{project}/members/history", s.memberHistory).Methods("GET")
	v1.HandleFunc("/projects/{project}/members/{userId}", s.updateMemberRole).Methods("PUT")
	v1.HandleFunc("/projects/{project}/members/{userId}", s.removeMember).Methods("DELETE")

	// Experiment trees
	v1.HandleFunc("/projects/{project}/trees", s.createTree).Methods("POST")
	v1.HandleFunc("/projects/{project}/trees", s.listTrees).Methods("GET")
	v1.HandleFunc("/trees/{treeId}", s.getTree).Methods("GET")
	v1.HandleFunc("/trees/{treeId}", s.updateTree).Methods("PUT")
	v1.HandleFunc("/trees/{treeId}", s.deleteTree).Methods("DELETE")
	v1.HandleFunc("/trees/{treeId}/access", s.getTreeAccess).Methods("GET")
	v1.HandleFunc("/trees/{treeId}/blocks", s.createBlock).Methods("POST")
	v1.HandleFunc("/trees/{treeId}/blocks", s.listBlocks).Methods("GET")

	// Nodes
	v1.HandleFunc("/trees/{treeId}/nodes", s.createNode).Methods("POST")
	v1.HandleFunc("/trees/{treeId}/nodes", s.listNodes).Methods("GET")
	v1.HandleFunc("/nodes/{nodeId}", s.getNode).Methods("GET")
	v1.HandleFunc("/nodes/{nodeId}", s.updateNode).Methods("PUT")
	v1.HandleFunc("/nodes/{nodeId}", s.deleteNode).Methods("DELETE")
	v1.HandleFunc("/nodes/{nodeId}/access", s.getNodeAccess).Methods("GET")

	// Node attachments, links, dependencies, references
	v1.HandleFunc("/nodes/{nodeId}/attachments", s.uploadAttachment).Methods("POST")
	v1.HandleFunc("/nodes/{nodeId}/attachments", s.listAttachments).Methods("GET")
	v1.HandleFunc("/attachments/{attachmentId}/download", s.downloadAttachment).Methods("GET")
	v1.HandleFunc("/nodes/{nodeId}/links", s.createLink).Methods("POST")
	v1.HandleFunc("/nodes/{nodeId}/links", s.listLinks).Methods("GET")
	v1.HandleFunc("/nodes/{nodeId}/dependencies", s.createDependency).Methods("POST")
	v1.HandleFunc("/nodes/{nodeId}/dependencies", s.listDependencies).Methods("GET")
	v1.HandleFunc("/nodes/{nodeId}/references", s.addReference).Methods("POST")
	v1.HandleFunc("/nodes/{nodeId}/references", s.listReferences).Methods("GET")
	v1.HandleFunc("/nodes/{nodeId}/references/{treeId}", s.removeReference).Methods("DELETE")

	// API tokens
	v1.HandleFunc("/tokens", s.createToken).Methods("POST")
	v1.HandleFunc("/tokens", s.listTokens).Methods("GET")
	v1.HandleFunc("/tokens/{tokenId}", s.revokeToken).Methods("DELETE")
}
