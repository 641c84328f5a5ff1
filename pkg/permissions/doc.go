// Package permissions is the hierarchical access-control engine.
//
// Every capability question in the product reduces to one decision:
// resolve the raw identifier to a canonical project id (walking the
// node -> tree -> project ownership chain when needed), classify the
// caller's relationship to that project from its visibility and the
// membership ledger, and return an AccessDecision with the capability
// bits. Handlers gate every read and mutation on that decision.
//
// The engine is a stateless read path. Decisions are computed fresh on
// every call and never cached: a stale "is member" answer is a grant
// that should not exist. The only cached state is the slug -> id mapping,
// which is immutable once a slug is published.
//
// Denial is not an error. A check either fails with ErrNotFound when an
// identifier does not resolve, or returns a well-formed decision whose
// booleans the caller inspects. Handlers map read-denied private
// resources to the same not-found response as missing ones, so an
// unauthorized caller cannot probe for existence.
package permissions
