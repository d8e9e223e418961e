// Package storage persists execution history behind a pluggable Backend.
//
// Three backends exist: an embedded sqlite database (the default), a
// date-partitioned file tree, and an S3 object store. All of them share
// the same record shape and the same list/filter semantics, so callers
// never branch on the backend in use.
package storage
