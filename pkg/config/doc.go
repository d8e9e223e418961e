// Package config holds the control-plane configuration and the on-disk
// workspace layout.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file, and BRAIN_*/AQA_* environment variables. Environment values win.
// The workspace lives under ~/.aqa (or AQA_HOME) and holds the plan cache,
// the plan version store and the execution history database.
package config
