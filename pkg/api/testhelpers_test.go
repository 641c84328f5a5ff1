package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/canopyhq/canopy/pkg/audit"
	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/contextkeys"
	"github.com/canopyhq/canopy/pkg/permissions"
	"github.com/canopyhq/canopy/pkg/projects"
	"github.com/canopyhq/canopy/pkg/trees"
)

// fakeStore is an in-memory backend satisfying every store interface the
// server and the permission service depend on.
type fakeStore struct {
	mu sync.Mutex

	projectsByID map[string]*projects.Project
	slugToID     map[string]string
	ledger       map[string][]projects.Membership

	treesByID       map[string]*trees.ExperimentTree
	nodesByID       map[string]*trees.TreeNode
	blocksByTree    map[string][]trees.TreeBlock
	attachmentsByID map[string]*trees.NodeAttachment
	linksByNode     map[string][]trees.NodeLink
	depsByNode      map[string][]trees.NodeDependency
	refsByNode      map[string][]string

	tokensByID   map[int64]*auth.APIToken
	nextTokenID  int64
	nextLedgerID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projectsByID:    map[string]*projects.Project{},
		slugToID:        map[string]string{},
		ledger:          map[string][]projects.Membership{},
		treesByID:       map[string]*trees.ExperimentTree{},
		nodesByID:       map[string]*trees.TreeNode{},
		blocksByTree:    map[string][]trees.TreeBlock{},
		attachmentsByID: map[string]*trees.NodeAttachment{},
		linksByNode:     map[string][]trees.NodeLink{},
		depsByNode:      map[string][]trees.NodeDependency{},
		refsByNode:      map[string][]string{},
		tokensByID:      map[int64]*auth.APIToken{},
	}
}

// --- permission service interfaces ---

func (f *fakeStore) VisibilityOf(_ context.Context, projectID string) (projects.Visibility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projectsByID[projectID]
	if !ok {
		return "", fmt.Errorf("project: %w", projects.ErrNotFound)
	}
	return p.Visibility, nil
}

func (f *fakeStore) ResolveSlug(_ context.Context, slug string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.slugToID[slug]
	if !ok {
		return "", fmt.Errorf("project: %w", projects.ErrNotFound)
	}
	return id, nil
}

func (f *fakeStore) ActiveRole(_ context.Context, projectID, userID string) (projects.Role, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.ledger[projectID] {
		if m.UserID == userID && m.LeftAt == nil {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeStore) ProjectIDOfTree(_ context.Context, treeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.treesByID[treeID]
	if !ok {
		return "", fmt.Errorf("tree: %w", trees.ErrNotFound)
	}
	return t.ProjectID, nil
}

func (f *fakeStore) TreeIDOfNode(_ context.Context, nodeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodesByID[nodeID]
	if !ok {
		return "", fmt.Errorf("node: %w", trees.ErrNotFound)
	}
	return n.TreeID, nil
}

// --- ProjectStore ---

func (f *fakeStore) CreateProject(_ context.Context, project *projects.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.slugToID[project.Slug]; exists {
		return fmt.Errorf("project: %w", projects.ErrConflict)
	}
	project.ID = uuid.NewString()
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	f.projectsByID[project.ID] = project
	f.slugToID[project.Slug] = project.ID
	f.nextLedgerID++
	f.ledger[project.ID] = append(f.ledger[project.ID], projects.Membership{
		ID:        f.nextLedgerID,
		ProjectID: project.ID,
		UserID:    project.OwnerID,
		Role:      projects.RoleOwner,
		JoinedAt:  project.CreatedAt,
	})
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID string) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projectsByID[projectID]
	if !ok {
		return nil, fmt.Errorf("project: %w", projects.ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, project *projects.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.projectsByID[project.ID]
	if !ok {
		return fmt.Errorf("project: %w", projects.ErrNotFound)
	}
	existing.Name = project.Name
	existing.Description = project.Description
	existing.Visibility = project.Visibility
	existing.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projectsByID[projectID]
	if !ok {
		return fmt.Errorf("project: %w", projects.ErrNotFound)
	}
	delete(f.slugToID, p.Slug)
	delete(f.projectsByID, projectID)
	return nil
}

func (f *fakeStore) ListProjectsForUser(_ context.Context, userID string) ([]projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []projects.Project
	for projectID, rows := range f.ledger {
		for _, m := range rows {
			if m.UserID == userID && m.LeftAt == nil {
				if p, ok := f.projectsByID[projectID]; ok {
					out = append(out, *p)
				}
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListPublicProjects(_ context.Context) ([]projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []projects.Project
	for _, p := range f.projectsByID {
		if p.Visibility == projects.VisibilityPublic {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) AddMember(_ context.Context, projectID, userID string, role projects.Role, addedBy string) (*projects.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ledger[projectID] {
		m := &f.ledger[projectID][i]
		if m.UserID == userID && m.LeftAt == nil {
			clone := *m
			return &clone, nil
		}
	}
	f.nextLedgerID++
	m := projects.Membership{
		ID:        f.nextLedgerID,
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		AddedBy:   &addedBy,
		JoinedAt:  time.Now(),
	}
	f.ledger[projectID] = append(f.ledger[projectID], m)
	return &m, nil
}

func (f *fakeStore) RemoveMember(_ context.Context, projectID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ledger[projectID] {
		m := &f.ledger[projectID][i]
		if m.UserID == userID && m.LeftAt == nil {
			now := time.Now()
			m.LeftAt = &now
			return nil
		}
	}
	return nil
}

func (f *fakeStore) UpdateMemberRole(_ context.Context, projectID, userID string, role projects.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.ledger[projectID] {
		m := &f.ledger[projectID][i]
		if m.UserID == userID && m.LeftAt == nil {
			m.Role = role
			return nil
		}
	}
	return fmt.Errorf("membership: %w", projects.ErrNotFound)
}

func (f *fakeStore) ListMembers(_ context.Context, projectID string) ([]projects.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []projects.Membership
	for _, m := range f.ledger[projectID] {
		if m.LeftAt == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) MemberHistory(_ context.Context, projectID string) ([]projects.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]projects.Membership(nil), f.ledger[projectID]...), nil
}

// --- TreeStore ---

func (f *fakeStore) CreateTree(_ context.Context, tree *trees.ExperimentTree) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tree.ID = uuid.NewString()
	if tree.Status == "" {
		tree.Status = trees.TreeStatusActive
	}
	tree.CreatedAt = time.Now()
	tree.UpdatedAt = tree.CreatedAt
	f.treesByID[tree.ID] = tree
	return nil
}

func (f *fakeStore) GetTree(_ context.Context, treeID string) (*trees.ExperimentTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.treesByID[treeID]
	if !ok {
		return nil, fmt.Errorf("tree: %w", trees.ErrNotFound)
	}
	clone := *t
	for _, n := range f.nodesByID {
		if n.TreeID == treeID {
			clone.NodeCount++
		}
	}
	return &clone, nil
}

func (f *fakeStore) UpdateTree(_ context.Context, tree *trees.ExperimentTree) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.treesByID[tree.ID]
	if !ok {
		return fmt.Errorf("tree: %w", trees.ErrNotFound)
	}
	existing.Name = tree.Name
	existing.Description = tree.Description
	existing.Status = tree.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) DeleteTree(_ context.Context, treeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.treesByID[treeID]; !ok {
		return fmt.Errorf("tree: %w", trees.ErrNotFound)
	}
	delete(f.treesByID, treeID)
	return nil
}

func (f *fakeStore) ListTrees(_ context.Context, projectID string) ([]trees.ExperimentTree, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trees.ExperimentTree
	for _, t := range f.treesByID {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateBlock(_ context.Context, block *trees.TreeBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	block.ID = uuid.NewString()
	block.CreatedAt = time.Now()
	f.blocksByTree[block.TreeID] = append(f.blocksByTree[block.TreeID], *block)
	return nil
}

func (f *fakeStore) ListBlocks(_ context.Context, treeID string) ([]trees.TreeBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trees.TreeBlock(nil), f.blocksByTree[treeID]...), nil
}

func (f *fakeStore) CreateNode(_ context.Context, node *trees.TreeNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	node.ID = uuid.NewString()
	if node.Status == "" {
		node.Status = trees.NodeStatusProposed
	}
	node.CreatedAt = time.Now()
	node.UpdatedAt = node.CreatedAt
	f.nodesByID[node.ID] = node
	return nil
}

func (f *fakeStore) GetNode(_ context.Context, nodeID string) (*trees.TreeNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodesByID[nodeID]
	if !ok {
		return nil, fmt.Errorf("node: %w", trees.ErrNotFound)
	}
	clone := *n
	return &clone, nil
}

func (f *fakeStore) UpdateNode(_ context.Context, node *trees.TreeNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.nodesByID[node.ID]
	if !ok {
		return fmt.Errorf("node: %w", trees.ErrNotFound)
	}
	existing.BlockID = node.BlockID
	existing.Name = node.Name
	existing.Position = node.Position
	existing.Status = node.Status
	existing.Confidence = node.Confidence
	existing.Content = node.Content
	existing.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) DeleteNode(_ context.Context, nodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodesByID[nodeID]; !ok {
		return fmt.Errorf("node: %w", trees.ErrNotFound)
	}
	delete(f.nodesByID, nodeID)
	return nil
}

func (f *fakeStore) ListNodes(_ context.Context, treeID string) ([]trees.TreeNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trees.TreeNode
	for _, n := range f.nodesByID {
		if n.TreeID == treeID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateAttachment(_ context.Context, attachment *trees.NodeAttachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = time.Now()
	f.attachmentsByID[attachment.ID] = attachment
	return nil
}

func (f *fakeStore) GetAttachment(_ context.Context, attachmentID string) (*trees.NodeAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachmentsByID[attachmentID]
	if !ok {
		return nil, fmt.Errorf("attachment: %w", trees.ErrNotFound)
	}
	clone := *a
	return &clone, nil
}

func (f *fakeStore) ListAttachments(_ context.Context, nodeID string) ([]trees.NodeAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trees.NodeAttachment
	for _, a := range f.attachmentsByID {
		if a.NodeID == nodeID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateLink(_ context.Context, link *trees.NodeLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	link.ID = uuid.NewString()
	link.CreatedAt = time.Now()
	f.linksByNode[link.NodeID] = append(f.linksByNode[link.NodeID], *link)
	return nil
}

func (f *fakeStore) ListLinks(_ context.Context, nodeID string) ([]trees.NodeLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trees.NodeLink(nil), f.linksByNode[nodeID]...), nil
}

func (f *fakeStore) CreateDependency(_ context.Context, dependency *trees.NodeDependency) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	dependency.ID = uuid.NewString()
	dependency.CreatedAt = time.Now()
	f.depsByNode[dependency.FromNodeID] = append(f.depsByNode[dependency.FromNodeID], *dependency)
	return nil
}

func (f *fakeStore) ListDependencies(_ context.Context, nodeID string) ([]trees.NodeDependency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trees.NodeDependency(nil), f.depsByNode[nodeID]...), nil
}

func (f *fakeStore) AddReference(_ context.Context, nodeID, referencedTreeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.refsByNode[nodeID] {
		if id == referencedTreeID {
			return nil
		}
	}
	f.refsByNode[nodeID] = append(f.refsByNode[nodeID], referencedTreeID)
	return nil
}

func (f *fakeStore) RemoveReference(_ context.Context, nodeID, referencedTreeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := f.refsByNode[nodeID]
	for i, id := range refs {
		if id == referencedTreeID {
			f.refsByNode[nodeID] = append(refs[:i], refs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) ReferencedTreeIDs(_ context.Context, nodeID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refsByNode[nodeID]...), nil
}

// --- TokenStore ---

func (f *fakeStore) CreateToken(_ context.Context, userID, name string, expiresAt *time.Time) (*auth.APIToken, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTokenID++
	t := &auth.APIToken{
		ID:          f.nextTokenID,
		UserID:      userID,
		TokenPrefix: auth.TokenPrefix + "testtoke",
		Name:        name,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}
	f.tokensByID[t.ID] = t
	plaintext := fmt.Sprintf("%stoken-%d", auth.TokenPrefix, t.ID)
	return t, plaintext, nil
}

func (f *fakeStore) ListTokens(_ context.Context, userID string) ([]*auth.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.APIToken
	for _, t := range f.tokensByID {
		if t.UserID == userID {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) RevokeToken(_ context.Context, tokenID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokensByID[tokenID]
	if !ok || t.RevokedAt != nil {
		return fmt.Errorf("token not found or already revoked")
	}
	now := time.Now()
	t.RevokedAt = &now
	t.RevokeReason = reason
	return nil
}

// fakeBlobs is an in-memory BlobStore
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (b *fakeBlobs) Put(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return key, nil
}

func (b *fakeBlobs) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

// testServer bundles the server with its in-memory backend and fixtures
type testServer struct {
	server *Server
	store  *fakeStore
	blobs  *fakeBlobs

	owner       *auth.Identity
	maintainer  *auth.Identity
	contributor *auth.Identity
	stranger    *auth.Identity

	privateProjectID string
	privateSlug      string
	publicProjectID  string
	publicSlug       string
	privateTreeID    string
	privateNodeID    string
	publicTreeID     string
	publicNodeID     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := newFakeStore()
	blobs := newFakeBlobs()

	locator, err := permissions.NewLocator(store)
	require.NoError(t, err)
	service := permissions.NewService(locator, permissions.NewOwnershipResolver(store), store, store, nil, nil)
	gate := permissions.NewGate(service, nil)

	server := NewServer(ServerOptions{
		Gate:     gate,
		Projects: store,
		Trees:    store,
		Tokens:   store,
		Audit:    audit.NewNopLogger(),
		Blobs:    blobs,
	})

	ts := &testServer{
		server:      server,
		store:       store,
		blobs:       blobs,
		owner:       &auth.Identity{UserID: uuid.NewString(), Username: "amara"},
		maintainer:  &auth.Identity{UserID: uuid.NewString(), Username: "jun"},
		contributor: &auth.Identity{UserID: uuid.NewString(), Username: "priya"},
		stranger:    &auth.Identity{UserID: uuid.NewString(), Username: "outsider"},
	}

	ctx := context.Background()

	private := &projects.Project{
		Slug:       "genome-atlas",
		Name:       "Genome Atlas",
		Visibility: projects.VisibilityPrivate,
		OwnerID:    ts.owner.UserID,
	}
	require.NoError(t, store.CreateProject(ctx, private))
	ts.privateProjectID = private.ID
	ts.privateSlug = private.Slug

	public := &projects.Project{
		Slug:       "open-lab",
		Name:       "Open Lab",
		Visibility: projects.VisibilityPublic,
		OwnerID:    ts.owner.UserID,
	}
	require.NoError(t, store.CreateProject(ctx, public))
	ts.publicProjectID = public.ID
	ts.publicSlug = public.Slug

	for _, projectID := range []string{ts.privateProjectID, ts.publicProjectID} {
		_, err := store.AddMember(ctx, projectID, ts.maintainer.UserID, projects.RoleMaintainer, ts.owner.UserID)
		require.NoError(t, err)
		_, err = store.AddMember(ctx, projectID, ts.contributor.UserID, projects.RoleContributor, ts.owner.UserID)
		require.NoError(t, err)
	}

	privateTree := &trees.ExperimentTree{ProjectID: ts.privateProjectID, Name: "CRISPR screens"}
	require.NoError(t, store.CreateTree(ctx, privateTree))
	ts.privateTreeID = privateTree.ID

	privateNode := &trees.TreeNode{TreeID: ts.privateTreeID, Name: "Guide RNA design"}
	require.NoError(t, store.CreateNode(ctx, privateNode))
	ts.privateNodeID = privateNode.ID

	publicTree := &trees.ExperimentTree{ProjectID: ts.publicProjectID, Name: "Replication study"}
	require.NoError(t, store.CreateTree(ctx, publicTree))
	ts.publicTreeID = publicTree.ID

	publicNode := &trees.TreeNode{TreeID: ts.publicTreeID, Name: "Baseline"}
	require.NoError(t, store.CreateNode(ctx, publicNode))
	ts.publicNodeID = publicNode.ID

	return ts
}

// request performs an HTTP request against the router as the given caller.
// A nil caller is anonymous.
func (ts *testServer) request(t *testing.T, method, path string, body interface{}, caller *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != nil {
		req = req.WithContext(contextkeys.WithIdentity(req.Context(), caller))
	}

	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), "body: %s", rec.Body.String())
}

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

var _ http.Handler = (*Server)(nil)
