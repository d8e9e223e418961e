// Package generator turns requirement text into validated UTDL plans. It
// renders prompt templates, calls the configured language-model provider,
// extracts JSON from the reply, normalizes it through the format adapter,
// validates it, and on validation failure feeds the diagnostics back to the
// model inside a bounded correction loop. Successful plans are stored in the
// content-addressed cache keyed by requirement, base URL, provider and model.
package generator
