// Package api exposes the HTTP surface of the permission service: project,
// tree, and node CRUD behind access-control gates, the membership ledger,
// and API token management.
//
// Every resource read or mutation passes through permissions.Gate before any
// row is returned. A private resource the caller cannot read produces the
// same 404 as a resource that does not exist, so the API never confirms the
// existence of something the caller is not allowed to see.
package api
