// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
//
// Visibility-sensitive reads deliberately reuse WriteNotFoundError for both
// "does not exist" and "exists but the caller cannot see it" so responses
// never confirm the existence of private resources.
package httputil
