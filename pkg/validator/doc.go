// Package validator performs structural and semantic validation of UTDL
// plans: spec version, step ID uniqueness, dependency reference integrity,
// DAG acyclicity, action sanity, and executor limit enforcement.
//
// Three strictness modes are supported. Default mode blocks on errors and
// surfaces warnings. Strict mode promotes every warning to an error.
// Lenient mode demotes a small whitelist of non-critical conditions
// (unknown dependencies, non-standard actions, empty plans) to warnings.
package validator
