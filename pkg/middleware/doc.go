// Package middleware provides HTTP middleware for authentication and
// rate limiting.
//
// Authentication is deliberately optional on read routes: anonymous
// callers still reach the handlers, where the permission gate decides
// what a caller without an identity may see. Requiring a token at the
// middleware layer would break public-project reads.
package middleware
