// Package async provides panic-safe goroutine helpers for fire-and-forget
// work such as audit-log writes and blob cleanup after handler responses.
package async
