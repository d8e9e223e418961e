// Package plans is the immutable plan version store. Every save creates a new
// numbered version under the plan's directory; versions are never rewritten.
// The store supports structural diffs between versions and rollback, which is
// itself recorded as a new version.
package plans
