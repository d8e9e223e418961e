package llm

import (
	"os"

	"github.com/aqakit/brain/pkg/config"
	"github.com/aqakit/brain/pkg/diag"
)

// Provider modes.
const (
	ModeMock = "mock"
	ModeReal = "real"
	ModeAuto = "auto"
)

// New builds a provider. Mode resolution order: the explicit mode argument,
// the AQA_LLM_MODE environment variable, the configured mode, then auto.
// Auto selects real when any back-end API key is present, mock otherwise.
func New(mode string, cfg config.LLMConfig) (Provider, error) {
	if mode == "" {
		mode = os.Getenv("AQA_LLM_MODE")
	}
	if mode == "" {
		mode = cfg.Mode
	}
	if mode == "" || mode == ModeAuto {
		if anyKeyConfigured() {
			mode = ModeReal
		} else {
			mode = ModeMock
		}
	}

	switch mode {
	case ModeMock:
		return NewMock(), nil
	case ModeReal:
		return NewReal(RealConfig{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			Fallback: cfg.Fallback,
		})
	}
	return nil, diag.Newf(diag.CodeMissingAPIKey, "unknown LLM mode %q", mode)
}

func anyKeyConfigured() bool {
	for _, env := range keyEnvVars {
		if os.Getenv(env) != "" {
			return true
		}
	}
	return false
}
