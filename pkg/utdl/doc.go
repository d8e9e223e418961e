// Package utdl defines the typed model for UTDL v0.1 test plans: the plan
// root, its metadata and config, steps with dependencies, assertions,
// extractions, and recovery policies.
//
// The model is the per-field validation boundary. Construction helpers and
// struct tags enforce value constraints (types, ranges, enums); cross-step
// constraints such as reference integrity and DAG acyclicity live in the
// validator package.
package utdl
