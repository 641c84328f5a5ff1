package auth

import (
	"context"

	"github.com/canopyhq/canopy/pkg/contextkeys"
)

// IdentityFromContext returns the authenticated caller stored on the
// request context, or nil for anonymous callers.
func IdentityFromContext(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity); ok {
		return identity
	}
	return nil
}
