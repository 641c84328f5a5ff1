package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/observability"
	"github.com/canopyhq/canopy/pkg/projects"
)

// VisibilityResolver returns a project's visibility class
type VisibilityResolver interface {
	VisibilityOf(ctx context.Context, projectID string) (projects.Visibility, error)
}

// MembershipLedger answers active-membership questions against the ledger
type MembershipLedger interface {
	ActiveRole(ctx context.Context, projectID, userID string) (projects.Role, bool, error)
}

// Service composes identifier resolution, the ownership walk, visibility,
// and the membership ledger into the three decision queries handlers call.
type Service struct {
	locator    *Locator
	ownership  *OwnershipResolver
	visibility VisibilityResolver
	ledger     MembershipLedger
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewService creates the permission service. metrics may be nil in tests.
func NewService(
	locator *Locator,
	ownership *OwnershipResolver,
	visibility VisibilityResolver,
	ledger MembershipLedger,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Service {
	return &Service{
		locator:    locator,
		ownership:  ownership,
		visibility: visibility,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger,
	}
}

// CheckProjectAccess computes the caller's capabilities on a project. The
// raw identifier may be a canonical id or a slug.
func (s *Service) CheckProjectAccess(ctx context.Context, raw string, caller *auth.Identity) (AccessDecision, error) {
	start := time.Now()

	projectID, err := s.locator.ResolveProject(ctx, raw)
	if err != nil {
		s.observe("project", outcomeOf(AccessDecision{}, err), start)
		return AccessDecision{}, err
	}

	decision, err := s.decide(ctx, projectID, caller)
	s.observe("project", outcomeOf(decision, err), start)
	return decision, err
}

// CheckTreeAccess computes the caller's capabilities on a tree by
// resolving its owning project first. The decision carries the resolved
// project id so callers need not re-resolve.
func (s *Service) CheckTreeAccess(ctx context.Context, treeID string, caller *auth.Identity) (AccessDecision, error) {
	start := time.Now()

	// Trees have no slugs. A raw value that is not a canonical id cannot
	// resolve, so it never reaches storage.
	if !ClassifyID(treeID).IsCanonical() {
		err := fmt.Errorf("tree %q: %w", treeID, ErrNotFound)
		s.observe("tree", outcomeOf(AccessDecision{}, err), start)
		return AccessDecision{}, err
	}

	projectID, err := s.ownership.ProjectOfTree(ctx, treeID)
	if err != nil {
		s.observe("tree", outcomeOf(AccessDecision{}, err), start)
		return AccessDecision{}, err
	}

	decision, err := s.decide(ctx, projectID, caller)
	s.observe("tree", outcomeOf(decision, err), start)
	return decision, err
}

// CheckNodeAccess computes the caller's capabilities on a node via the
// two-hop node -> tree -> project walk.
func (s *Service) CheckNodeAccess(ctx context.Context, nodeID string, caller *auth.Identity) (AccessDecision, error) {
	start := time.Now()

	if !ClassifyID(nodeID).IsCanonical() {
		err := fmt.Errorf("node %q: %w", nodeID, ErrNotFound)
		s.observe("node", outcomeOf(AccessDecision{}, err), start)
		return AccessDecision{}, err
	}

	projectID, err := s.ownership.ProjectOfNode(ctx, nodeID)
	if err != nil {
		s.observe("node", outcomeOf(AccessDecision{}, err), start)
		return AccessDecision{}, err
	}

	decision, err := s.decide(ctx, projectID, caller)
	s.observe("node", outcomeOf(decision, err), start)
	return decision, err
}

// ForgetSlug evicts a slug from the locator's cache. Must be called when
// a project is deleted so a later project can claim the slug.
func (s *Service) ForgetSlug(slug string) {
	s.locator.Forget(slug)
}

// CanManageMembers reports whether the caller may add or remove project
// members. Stricter than the generic write capability: only owner and
// maintainer qualify, and only on an active row.
func (s *Service) CanManageMembers(ctx context.Context, projectID string, caller *auth.Identity) (bool, error) {
	if caller == nil {
		return false, nil
	}

	role, active, err := s.ledger.ActiveRole(ctx, projectID, caller.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to check member management: %w", err)
	}

	return active && role.CanManageMembers(), nil
}

// decide classifies the caller's relationship to a canonical project id.
// Visibility and membership are independent reads and run concurrently;
// a NotFound on the visibility side aborts the whole decision.
func (s *Service) decide(ctx context.Context, projectID string, caller *auth.Identity) (AccessDecision, error) {
	var (
		visibility projects.Visibility
		role       projects.Role
		member     bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := s.visibility.VisibilityOf(gctx, projectID)
		if err != nil {
			if errors.Is(err, projects.ErrNotFound) {
				return fmt.Errorf("project %q: %w", projectID, ErrNotFound)
			}
			return fmt.Errorf("failed to resolve visibility: %w", err)
		}
		visibility = v
		return nil
	})

	if caller != nil {
		userID := caller.UserID
		g.Go(func() error {
			r, active, err := s.ledger.ActiveRole(gctx, projectID, userID)
			if err != nil {
				return fmt.Errorf("failed to check membership: %w", err)
			}
			role = r
			member = active
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return AccessDecision{}, err
	}

	decision := AccessDecision{
		IsMember:  member,
		CanRead:   member || visibility == projects.VisibilityPublic,
		CanWrite:  member && role.CanWrite(),
		ProjectID: projectID,
	}
	if member {
		decision.Role = role
	}

	return decision, nil
}

func (s *Service) observe(resource, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveAccessCheck(resource, outcome, time.Since(start))
	if outcome == "not_found" {
		s.metrics.ResolveNotFoundTotal.WithLabelValues(resource).Inc()
	}
}

func outcomeOf(decision AccessDecision, err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case err != nil:
		return "error"
	case decision.CanRead:
		return "readable"
	default:
		return "denied"
	}
}
