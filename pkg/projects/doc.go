// Package projects manages research projects and their membership ledger.
//
// A project is the root of the ownership chain: every experiment tree
// belongs to exactly one project, and every node belongs to exactly one
// tree. Access to trees and nodes is always decided at the project level.
//
// Membership is an append-only ledger rather than a mutable row set.
// Adding a member inserts a row with joined_at set; removing a member
// stamps left_at on the active row instead of deleting it. A user is an
// active member iff they have a row with left_at IS NULL, and a partial
// unique index guarantees at most one such row per (project, user) pair.
// The full history stays queryable for provenance audits.
//
// Roles are owner, maintainer, and contributor. All three can write
// project content; only owner and maintainer can manage members.
package projects
