package generator

import (
	"encoding/json"
	"time"

	"github.com/aqakit/brain/pkg/utdl"
)

// Thin nil-safe wrappers so a Generator without telemetry stays silent.

func (g *Generator) publishGenerationStarted(fingerprint string) {
	if g.tel == nil || g.tel.Events == nil {
		return
	}
	_ = g.tel.Events.PublishGenerationStarted(fingerprint, g.provider.Name())
}

func (g *Generator) finish(fingerprint string, plan *utdl.Plan, cached bool, start time.Time) {
	if g.tel == nil || g.tel.Events == nil {
		return
	}
	planID := ""
	if plan != nil {
		planID = plan.Meta.ID
	}
	_ = g.tel.Events.PublishGenerationFinished(fingerprint, planID, cached, time.Since(start))
}

func (g *Generator) recordGeneration(provider, status string, cached bool, elapsed time.Duration) {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordGeneration(provider, status, cached, elapsed)
}

func (g *Generator) recordCorrectionAttempt() {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordCorrectionAttempt(g.provider.Name())
}

func (g *Generator) recordLLMCall(status string, elapsed time.Duration) {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordLLMCall(g.provider.Name(), g.cacheModel, status, elapsed)
}

func (g *Generator) recordTokens(total int) {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordLLMTokens(g.provider.Name(), 0, total)
}

func (g *Generator) recordCacheHit() {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordCacheHit()
}

func (g *Generator) recordCacheMiss() {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordCacheMiss()
}

func (g *Generator) recordCacheStore() {
	if g.tel == nil || g.tel.Metrics == nil {
		return
	}
	g.tel.Metrics.RecordCacheStore()
}

func marshal(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
