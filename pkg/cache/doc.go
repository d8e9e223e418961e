// Package cache is the content-addressed plan cache. Entries are keyed by a
// fingerprint of the generation inputs (requirement text, base URL, provider,
// model) and stored gzip-compressed on disk next to a JSON index. Entries
// expire after a configurable TTL.
package cache
