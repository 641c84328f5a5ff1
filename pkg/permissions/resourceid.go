package permissions

import (
	"github.com/google/uuid"
)

// IDKind distinguishes canonical identifiers from slug aliases
type IDKind int

const (
	// KindCanonical is a permanent internally-generated id
	KindCanonical IDKind = iota
	// KindAlias is a human-readable slug that resolves to a canonical id
	KindAlias
)

// ResourceID is a raw path identifier classified exactly once at the
// boundary. Downstream components only ever see canonical ids.
type ResourceID struct {
	kind  IDKind
	value string
}

// ClassifyID determines whether raw is a canonical identifier or a slug
// alias. Canonical shape is a lowercase hyphenated UUID; anything that
// parses but renders differently (uppercase, braces, urn prefix) is
// treated as an alias so that lookups stay exact.
func ClassifyID(raw string) ResourceID {
	if u, err := uuid.Parse(raw); err == nil && u.String() == raw {
		return ResourceID{kind: KindCanonical, value: raw}
	}
	return ResourceID{kind: KindAlias, value: raw}
}

// Kind returns the classification
func (r ResourceID) Kind() IDKind {
	return r.kind
}

// IsCanonical reports whether the identifier is already canonical
func (r ResourceID) IsCanonical() bool {
	return r.kind == KindCanonical
}

// String returns the raw identifier value
func (r ResourceID) String() string {
	return r.value
}
