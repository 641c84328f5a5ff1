// Package auth defines the caller identity model and API token lifecycle.
//
// Authentication itself (OAuth exchange, session cookies) is handled by an
// external collaborator; this package only validates bearer tokens that
// collaborator has issued and resolves them to an Identity. An absent
// (nil) Identity means the caller is anonymous, which is a legal state:
// anonymous callers can still read public projects.
package auth
