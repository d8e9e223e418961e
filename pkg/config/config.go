package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	playground "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full control-plane configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Generator GeneratorConfig `yaml:"generator"`
	Cache     CacheConfig     `yaml:"cache"`
	Runner    RunnerConfig    `yaml:"runner"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`

	// Verbose enables debug logging; Silent suppresses everything below error.
	Verbose bool `yaml:"verbose"`
	Silent  bool `yaml:"silent"`
}

// LLMConfig selects and tunes the language model layer.
type LLMConfig struct {
	// Mode selects the provider implementation: mock, real, or auto.
	// Auto picks real when an API key is present, mock otherwise.
	Mode string `yaml:"mode" validate:"omitempty,oneof=mock real auto"`

	// Provider is the preferred real back-end tried first.
	Provider string `yaml:"provider" validate:"omitempty,oneof=openai xai anthropic"`

	// Model overrides the back-end default model.
	Model string `yaml:"model"`

	// Fallback enables trying the remaining back-ends when the preferred
	// one fails.
	Fallback bool `yaml:"fallback"`
}

// GeneratorConfig tunes the generation loop.
type GeneratorConfig struct {
	// MaxRetries bounds the self-correction loop.
	MaxRetries int `yaml:"max_retries" validate:"omitempty,gte=1,lte=10"`

	// Temperature is passed to the model.
	Temperature float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`

	// ForceSchema embeds the full plan schema in the system prompt.
	ForceSchema bool `yaml:"force_schema"`

	// StrictValidation validates generated plans in strict mode.
	StrictValidation bool `yaml:"strict_validation"`
}

// CacheConfig tunes the content-addressed plan cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`

	// TTLDays ages out cache entries; zero disables expiry.
	TTLDays int `yaml:"ttl_days" validate:"omitempty,gte=0"`
}

// RunnerConfig locates and bounds the external executor.
type RunnerConfig struct {
	// Path overrides executor binary discovery.
	Path string `yaml:"path"`

	// TimeoutSecs bounds a single execution.
	TimeoutSecs int `yaml:"timeout_secs" validate:"omitempty,gte=1"`
}

// StorageConfig selects the execution history backend.
type StorageConfig struct {
	// Backend is sqlite, file, or s3. Empty means auto-detect.
	Backend string `yaml:"backend" validate:"omitempty,oneof=sqlite file s3"`

	// Path is the sqlite database file or the file-tree root.
	Path string `yaml:"path"`

	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

// ServerConfig tunes the REST API server.
type ServerConfig struct {
	ListenAddress string   `yaml:"listen_address"`
	CORSOrigins   []string `yaml:"cors_origins"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Mode:     "auto",
			Fallback: true,
		},
		Generator: GeneratorConfig{
			MaxRetries:  3,
			Temperature: 0.2,
			ForceSchema: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTLDays: 30,
		},
		Runner: RunnerConfig{
			TimeoutSecs: 300,
		},
		Server: ServerConfig{
			ListenAddress: ":8000",
			CORSOrigins:   []string{"*"},
		},
	}
}

// Load resolves the configuration from defaults, an optional YAML file and
// the environment. Pass an empty path to skip the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays BRAIN_* and AQA_* environment variables.
func (c *Config) applyEnv() {
	setString(&c.LLM.Mode, "AQA_LLM_MODE")
	setString(&c.LLM.Provider, "BRAIN_LLM_PROVIDER")
	setString(&c.LLM.Model, "BRAIN_MODEL")
	setBool(&c.LLM.Fallback, "BRAIN_LLM_FALLBACK")

	setInt(&c.Generator.MaxRetries, "BRAIN_MAX_RETRIES")
	setFloat(&c.Generator.Temperature, "BRAIN_TEMPERATURE")
	setBool(&c.Generator.ForceSchema, "BRAIN_FORCE_SCHEMA")
	setBool(&c.Generator.StrictValidation, "BRAIN_STRICT_VALIDATION")

	setBool(&c.Cache.Enabled, "BRAIN_CACHE_ENABLED")
	setString(&c.Cache.Dir, "BRAIN_CACHE_DIR")

	setString(&c.Runner.Path, "AQA_RUNNER_PATH")

	setString(&c.Storage.Backend, "AQA_STORAGE_BACKEND")
	setString(&c.Storage.Path, "AQA_STORAGE_PATH")
	setString(&c.Storage.S3Bucket, "AQA_S3_BUCKET")
	setString(&c.Storage.S3Prefix, "AQA_S3_PREFIX")
	setString(&c.Storage.S3Region, "AQA_S3_REGION")

	setBool(&c.Verbose, "BRAIN_VERBOSE")
	setBool(&c.Silent, "BRAIN_SILENT")
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := playground.New().Struct(c); err != nil {
		var verrs playground.ValidationErrors
		if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config value for %s (%s)", strings.ToLower(fe.Namespace()), fe.Tag())
		}
		return err
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("storage backend s3 requires a bucket")
	}
	if c.Verbose && c.Silent {
		return fmt.Errorf("verbose and silent are mutually exclusive")
	}
	return nil
}

// LogLevel maps the verbosity flags to a telemetry log level.
func (c *Config) LogLevel() string {
	switch {
	case c.Silent:
		return "error"
	case c.Verbose:
		return "debug"
	default:
		return "info"
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}
