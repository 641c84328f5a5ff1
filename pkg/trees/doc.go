// Package trees manages experiment trees and their nodes.
//
// Every tree belongs to exactly one project and every node belongs to
// exactly one tree. Nothing at this level carries permissions: access to
// a tree or node is decided by resolving the ownership chain up to the
// project and checking visibility and membership there.
//
// A tree may also reference other trees it does not own, for cross-project
// comparisons. References are navigational only and never enter the
// ownership chain, so access to a referencing tree grants nothing on the
// referenced ones.
package trees
