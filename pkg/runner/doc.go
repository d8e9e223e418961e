// Package runner dispatches validated plans to the external executor binary
// and turns its report into typed results. The executor is a one-shot
// process invoked as "aqa-runner execute --file <plan> --output <report>";
// both files are fresh temporaries removed on every outcome. For the live
// control channel the runner synthesizes per-step events while walking the
// parsed report, so consumers see the same event stream a future streaming
// executor would emit.
package runner
