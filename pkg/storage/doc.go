// Package storage holds shared storage configuration and the blob-store
// interface used for node attachment payloads.
//
// Row data (projects, membership ledger, trees, nodes) lives in PostgreSQL
// via pkg/storage/postgres; attachment payloads live in S3-compatible
// object storage; Redis backs the distributed rate limiter. None of these
// layers cache permission decisions: every access check reads the current
// ledger and visibility rows.
package storage
