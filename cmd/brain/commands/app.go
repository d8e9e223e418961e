package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aqakit/brain/pkg/cache"
	"github.com/aqakit/brain/pkg/config"
	"github.com/aqakit/brain/pkg/generator"
	"github.com/aqakit/brain/pkg/llm"
	"github.com/aqakit/brain/pkg/plans"
	"github.com/aqakit/brain/pkg/runner"
	"github.com/aqakit/brain/pkg/storage"
	"github.com/aqakit/brain/pkg/telemetry"
	"github.com/aqakit/brain/pkg/validator"
)

// app resolves configuration once and hands out wired components to the
// individual commands.
type app struct {
	cfg *config.Config
	ws  *config.Workspace
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	ws, err := config.NewWorkspace()
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, ws: ws}, nil
}

func (a *app) telemetry(version string, metrics bool) (*telemetry.Telemetry, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Logging.Level = a.cfg.LogLevel()
	tcfg.Metrics.Enabled = metrics
	return telemetry.NewTelemetry(tcfg)
}

func (a *app) provider() (llm.Provider, error) {
	return llm.New("", a.cfg.LLM)
}

func (a *app) cache() (*cache.Cache, error) {
	if !a.cfg.Cache.Enabled {
		return nil, nil
	}
	dir := a.cfg.Cache.Dir
	if dir == "" {
		dir = a.ws.CacheDir()
	}
	return cache.New(dir, cache.WithTTLDays(a.cfg.Cache.TTLDays))
}

func (a *app) generator(provider llm.Provider, tel *telemetry.Telemetry) (*generator.Generator, error) {
	opts := []generator.Option{
		generator.WithMaxAttempts(a.cfg.Generator.MaxRetries),
		generator.WithTemperature(a.cfg.Generator.Temperature),
	}
	if a.cfg.Generator.StrictValidation {
		opts = append(opts, generator.WithValidator(
			validator.New(validator.WithMode(validator.ModeStrict))))
	}
	if tel != nil {
		opts = append(opts, generator.WithTelemetry(tel))
	}
	planCache, err := a.cache()
	if err != nil {
		return nil, err
	}
	if planCache != nil {
		opts = append(opts, generator.WithCache(planCache, provider.Name(), a.cfg.LLM.Model))
	}
	return generator.New(provider, opts...), nil
}

func (a *app) planStore() (*plans.Store, error) {
	return plans.NewStore(a.ws.PlansDir())
}

func (a *app) history(ctx context.Context) (storage.Backend, error) {
	return storage.Open(ctx, a.cfg.Storage, a.ws)
}

func (a *app) runner(override string, tel *telemetry.Telemetry) (*runner.Runner, error) {
	path := override
	if path == "" {
		path = a.cfg.Runner.Path
	}
	binary, err := runner.FindBinary(path)
	if err != nil {
		return nil, err
	}
	opts := []runner.Option{}
	if a.cfg.Runner.TimeoutSecs > 0 {
		opts = append(opts, runner.WithTimeout(time.Duration(a.cfg.Runner.TimeoutSecs)*time.Second))
	}
	if tel != nil {
		opts = append(opts,
			runner.WithLogger(tel.Logger.NewComponentLogger("runner")),
			runner.WithMetrics(tel.Metrics),
			runner.WithEvents(tel.Events))
	}
	return runner.New(binary, opts...), nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes payload to path, or stdout when path is empty.
func writeOutput(path string, payload []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(append(payload, '\n'))
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
