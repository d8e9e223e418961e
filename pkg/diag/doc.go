// Package diag defines the shared diagnostic model for the brain control
// plane: a unified error-code space (E1xxx validation through E6xxx
// generation), a structured error type carrying JSON pointers and
// suggestions, and the execution limits the validator enforces.
//
// The code space is shared with the external executor so reports and
// diagnostics from both sides can be correlated:
//
//	E1xxx  validation / parsing
//	E2xxx  HTTP / network (executor side)
//	E3xxx  assertions (executor side)
//	E4xxx  configuration / environment
//	E5xxx  internal
//	E6xxx  generation / control plane
package diag
