package ingest

import (
	"regexp"

	"github.com/aqakit/brain/pkg/utdl"
)

// slaRule maps endpoint paths to a latency budget in milliseconds. Rules are
// evaluated top to bottom; the first match wins.
type slaRule struct {
	pattern *regexp.Regexp
	// budget per method class; zero falls through to the defaults.
	readMs  int
	writeMs int
}

var slaRules = []slaRule{
	// Auth flows hash passwords and mint tokens, so they get headroom.
	{regexp.MustCompile(`(?i)(login|logout|auth|token|oauth|signin|signup|register)`), 1500, 1500},
	{regexp.MustCompile(`(?i)(search|query|filter|report|export|aggregate)`), 1000, 2000},
	{regexp.MustCompile(`(?i)(upload|import|batch|bulk)`), 2000, 5000},
	{regexp.MustCompile(`(?i)(health|ping|status|ready|live)`), 200, 200},
}

// Fallback budgets when no rule matches. Reads are expected to return well
// before writes.
const (
	defaultReadSLAMs  = 500
	defaultWriteSLAMs = 1000
)

// LatencySLAMs returns the latency budget for one endpoint.
func LatencySLAMs(method, path string) int {
	read := method == "GET" || method == "HEAD"
	for _, rule := range slaRules {
		if !rule.pattern.MatchString(path) {
			continue
		}
		if read && rule.readMs > 0 {
			return rule.readMs
		}
		if !read && rule.writeMs > 0 {
			return rule.writeMs
		}
	}
	if read {
		return defaultReadSLAMs
	}
	return defaultWriteSLAMs
}

// InjectLatencyAssertions adds a "latency lt <ms>" assertion to every HTTP
// step that does not already carry one. Steps are modified in place; the
// return value counts injections. Re-running the pass changes nothing.
func InjectLatencyAssertions(steps []utdl.Step) int {
	injected := 0
	for i := range steps {
		step := &steps[i]
		if step.Action != utdl.ActionHTTPRequest || hasLatencyAssertion(step) {
			continue
		}
		method, _ := step.Params["method"].(string)
		path, _ := step.Params["path"].(string)
		if method == "" || path == "" {
			continue
		}
		step.Assertions = append(step.Assertions, utdl.Assertion{
			Type:     utdl.AssertLatency,
			Operator: utdl.OpLt,
			Value:    LatencySLAMs(method, path),
		})
		injected++
	}
	return injected
}

func hasLatencyAssertion(step *utdl.Step) bool {
	for _, a := range step.Assertions {
		if a.Type == utdl.AssertLatency {
			return true
		}
	}
	return false
}
