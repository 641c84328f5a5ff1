package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyhq/canopy/pkg/trees"
)

func TestGetTree_AccessFollowsOwningProject(t *testing.T) {
	ts := newTestServer(t)

	t.Run("member reads a private tree", func(t *testing.T) {
		rec := ts.request(t, "GET", "/api/v1/trees/"+ts.privateTreeID, nil, ts.contributor)
		mustStatus(t, rec, http.StatusOK)

		var tree trees.ExperimentTree
		decodeBody(t, rec, &tree)
		assert.Equal(t, ts.privateProjectID, tree.ProjectID)
		assert.Equal(t, 1, tree.NodeCount)
	})

	t.Run("stranger sees the same 404 as a missing tree", func(t *testing.T) {
		hidden := ts.request(t, "GET", "/api/v1/trees/"+ts.privateTreeID, nil, ts.stranger)
		missing := ts.request(t, "GET", "/api/v1/trees/"+uuid.NewString(), nil, ts.stranger)

		mustStatus(t, hidden, http.StatusNotFound)
		mustStatus(t, missing, http.StatusNotFound)
		assert.Equal(t, missing.Body.String(), hidden.Body.String())
	})

	t.Run("anonymous reads a public tree", func(t *testing.T) {
		rec := ts.request(t, "GET", "/api/v1/trees/"+ts.publicTreeID, nil, nil)
		mustStatus(t, rec, http.StatusOK)
	})
}

func TestCreateTree(t *testing.T) {
	ts := newTestServer(t)

	t.Run("member creates a tree", func(t *testing.T) {
		rec := ts.request(t, "POST", "/api/v1/projects/"+ts.privateProjectID+"/trees", CreateTreeRequest{
			Name: "Dosage response",
		}, ts.contributor)
		mustStatus(t, rec, http.StatusCreated)

		var tree trees.ExperimentTree
		decodeBody(t, rec, &tree)
		assert.Equal(t, ts.privateProjectID, tree.ProjectID)
		assert.Equal(t, trees.TreeStatusActive, tree.Status)
	})

	t.Run("by slug", func(t *testing.T) {
		rec := ts.request(t, "POST", "/api/v1/projects/"+ts.privateSlug+"/trees", CreateTreeRequest{
			Name: "Follow-up",
		}, ts.contributor)
		mustStatus(t, rec, http.StatusCreated)

		var tree trees.ExperimentTree
		decodeBody(t, rec, &tree)
		assert.Equal(t, ts.privateProjectID, tree.ProjectID)
	})

	t.Run("anonymous cannot create in a public project", func(t *testing.T) {
		rec := ts.request(t, "POST", "/api/v1/projects/"+ts.publicProjectID+"/trees", CreateTreeRequest{
			Name: "Nope",
		}, nil)
		mustStatus(t, rec, http.StatusForbidden)
	})
}

func TestUpdateAndDeleteTree(t *testing.T) {
	ts := newTestServer(t)

	t.Run("member archives a tree", func(t *testing.T) {
		rec := ts.request(t, "PUT", "/api/v1/trees/"+ts.privateTreeID, UpdateTreeRequest{
			Name:   "CRISPR screens",
			Status: "archived",
		}, ts.maintainer)
		mustStatus(t, rec, http.StatusOK)

		var tree trees.ExperimentTree
		decodeBody(t, rec, &tree)
		assert.Equal(t, trees.TreeStatusArchived, tree.Status)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		rec := ts.request(t, "PUT", "/api/v1/trees/"+ts.privateTreeID, UpdateTreeRequest{
			Name:   "CRISPR screens",
			Status: "paused",
		}, ts.maintainer)
		mustStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("stranger cannot delete", func(t *testing.T) {
		rec := ts.request(t, "DELETE", "/api/v1/trees/"+ts.privateTreeID, nil, ts.stranger)
		mustStatus(t, rec, http.StatusNotFound)
	})

	t.Run("member deletes", func(t *testing.T) {
		rec := ts.request(t, "DELETE", "/api/v1/trees/"+ts.privateTreeID, nil, ts.owner)
		mustStatus(t, rec, http.StatusNoContent)
	})
}

func TestListTrees(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, "GET", "/api/v1/projects/"+ts.privateProjectID+"/trees", nil, ts.contributor)
	mustStatus(t, rec, http.StatusOK)

	var list []trees.ExperimentTree
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, ts.privateTreeID, list[0].ID)
}

func TestBlocks(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, "POST", "/api/v1/trees/"+ts.privateTreeID+"/blocks", CreateBlockRequest{
		Name:     "Hypotheses",
		Position: 0,
	}, ts.contributor)
	mustStatus(t, rec, http.StatusCreated)

	list := ts.request(t, "GET", "/api/v1/trees/"+ts.privateTreeID+"/blocks", nil, ts.contributor)
	mustStatus(t, list, http.StatusOK)

	var blocks []trees.TreeBlock
	decodeBody(t, list, &blocks)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Hypotheses", blocks[0].Name)

	denied := ts.request(t, "GET", "/api/v1/trees/"+ts.privateTreeID+"/blocks", nil, ts.stranger)
	mustStatus(t, denied, http.StatusNotFound)
}

func TestMalformedIdentifiersAreNotFound(t *testing.T) {
	ts := newTestServer(t)

	// Path ids that cannot be canonical get the standard 404 body, the
	// same one a missing or hidden resource produces
	missing := ts.request(t, "GET", "/api/v1/trees/"+uuid.NewString(), nil, ts.contributor)
	mustStatus(t, missing, http.StatusNotFound)

	for _, path := range []string{
		"/api/v1/trees/garbage",
		"/api/v1/nodes/garbage",
		"/api/v1/trees/not%20a%20uuid/nodes",
		"/api/v1/attachments/garbage/download",
	} {
		rec := ts.request(t, "GET", path, nil, ts.contributor)
		mustStatus(t, rec, http.StatusNotFound)
		assert.Equal(t, missing.Body.String(), rec.Body.String(), "path %s", path)
	}
}
