// Package ingest parses OpenAPI v2/v3 documents into a flattened endpoint
// view, renders requirement text for plan generation, and derives extra test
// material from the spec: negative cases from body schemas, robustness cases
// for non-GET endpoints, latency assertions, and authentication steps from
// the declared security schemes.
package ingest
