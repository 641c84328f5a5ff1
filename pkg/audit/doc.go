// Package audit records security-relevant events: membership changes,
// project and tree mutations, token lifecycle, and denied access
// attempts. Events are appended to an audit_logs table and never updated,
// matching the append-only character of the membership ledger they often
// describe.
package audit
