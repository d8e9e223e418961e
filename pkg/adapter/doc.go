// Package adapter normalizes "almost UTDL" documents into canonical UTDL
// before validation: alias keys are mapped to their canonical names,
// missing meta and config sections are synthesized, and legacy assertion
// and extraction shapes are rewritten. Normalization is idempotent.
package adapter
