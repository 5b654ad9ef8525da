// Package config provides application settings.
//
// Settings are created via Load() which handles:
// - Embedded defaults (prompts, per-step models, summary schema, samples)
// - An optional YAML file merged over the defaults
// - Environment variable overrides with validation
// - Provider API key lookup

package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/aecheck/llm"
	"github.com/richinex/aecheck/workflow"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Transport names.
const (
	TransportGateway = "gateway"
	TransportDirect  = "direct"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Settings holds all application configuration.
type Settings struct {
	Server   ServerConfig          `yaml:"server"`
	Gateway  GatewayConfig         `yaml:"gateway"`
	LLM      LLMConfig             `yaml:"llm"`
	Workflow WorkflowConfig        `yaml:"workflow"`
	Storage  StorageConfig         `yaml:"storage"`
	Models   []llm.ModelDescriptor `yaml:"models"`
	Steps    map[string]StepConfig `yaml:"steps"`
	Schema   string                `yaml:"schema"`
	Samples  []string              `yaml:"samples"`
}

// ServerConfig holds web server configuration.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxBodyKB   int      `yaml:"max_body_kb"`
}

// GatewayConfig holds LLM gateway configuration.
type GatewayConfig struct {
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	TokenURL string `yaml:"token_url"`
	LoginURL string `yaml:"login_url"`
}

// LLMConfig holds generation settings shared by every step.
type LLMConfig struct {
	Transport   string   `yaml:"transport"`
	MaxTokens   uint32   `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// WorkflowConfig holds executor and rendering timing.
type WorkflowConfig struct {
	StepTimeout    time.Duration `yaml:"step_timeout"`
	RenderInterval time.Duration `yaml:"render_interval"`
	SlowDownDelay  time.Duration `yaml:"slow_down_delay"`
}

// StorageConfig selects where form state is persisted.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// StepConfig is the default model and system prompt of one step.
type StepConfig struct {
	Model  string `yaml:"model"`
	Prompt string `yaml:"prompt"`
}

// Default returns the embedded defaults with environment overrides applied.
func Default() (*Settings, error) {
	return Load("")
}

// Load resolves settings from defaults, then a YAML file, then the environment.
// With an empty path the user file (~/.aecheck/config.yaml) and the project
// file (aecheck.yaml) are merged when present.
func Load(path string) (*Settings, error) {
	s := &Settings{}
	if err := yaml.Unmarshal(defaultsYAML, s); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}

	if path != "" {
		if err := mergeFile(s, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	} else {
		for _, candidate := range searchPaths() {
			if err := mergeFile(s, candidate); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("loading config %s: %w", candidate, err)
			}
		}
	}

	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustLoad loads settings and panics on error.
// Use this only when configuration errors should be fatal.
func MustLoad(path string) *Settings {
	s, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return s
}

func searchPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".aecheck", "config.yaml"))
	}
	return append(paths, "aecheck.yaml")
}

// mergeFile decodes a YAML file over dst. Maps merge by key; lists and
// scalars present in the file replace the defaults.
func mergeFile(dst *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, dst)
}

func (s *Settings) applyEnv() error {
	if v := os.Getenv("AECHECK_ADDR"); v != "" {
		s.Server.Addr = v
	}
	if v := os.Getenv("LLMFOUNDRY_URL"); v != "" {
		s.Gateway.BaseURL = v
	}
	if v := os.Getenv("LLMFOUNDRY_TOKEN"); v != "" {
		s.Gateway.Token = v
	}
	if v := os.Getenv("AECHECK_TRANSPORT"); v != "" {
		s.LLM.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("AECHECK_DB"); v != "" {
		s.Storage.Driver = StorageSQLite
		s.Storage.Path = v
	}

	var err error
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", s.LLM.MaxTokens); err != nil {
		return err
	}
	if os.Getenv("LLM_TEMPERATURE") != "" {
		temp, err := getEnvFloat64("LLM_TEMPERATURE", 0)
		if err != nil {
			return err
		}
		s.LLM.Temperature = &temp
	}
	if s.Server.MaxBodyKB, err = getEnvInt("AECHECK_MAX_BODY_KB", s.Server.MaxBodyKB); err != nil {
		return err
	}
	if s.Workflow.StepTimeout, err = getEnvDuration("AECHECK_STEP_TIMEOUT", s.Workflow.StepTimeout); err != nil {
		return err
	}
	if s.Workflow.RenderInterval, err = getEnvDuration("AECHECK_RENDER_INTERVAL", s.Workflow.RenderInterval); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	switch s.LLM.Transport {
	case TransportGateway, TransportDirect:
	default:
		return fmt.Errorf("llm.transport must be %q or %q, got %q", TransportGateway, TransportDirect, s.LLM.Transport)
	}
	switch s.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if s.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", s.Storage.Driver)
	}
	if s.Schema != "" && !json.Valid([]byte(s.Schema)) {
		return fmt.Errorf("schema is not valid JSON")
	}

	catalog := s.Catalog()
	for title, step := range s.Steps {
		if step.Model == "" {
			continue
		}
		if _, ok := catalog.IndexOf(step.Model); !ok {
			return fmt.Errorf("step %q: model %q is not in the catalog", title, step.Model)
		}
	}
	return nil
}

// Catalog returns the configured models, or the built-in catalog.
func (s *Settings) Catalog() *llm.Catalog {
	if len(s.Models) == 0 {
		return llm.DefaultCatalog()
	}
	return llm.NewCatalog(s.Models)
}

// WorkflowDefaults returns the per-step prompts, model selections and schema
// as a workflow configuration. Model ids are resolved against the catalog.
func (s *Settings) WorkflowDefaults(catalog *llm.Catalog) (workflow.Config, error) {
	cfg := workflow.Config{
		Prompts: make(map[string]string, len(s.Steps)),
		Models:  make(map[string]int, len(s.Steps)),
		Schema:  s.Schema,
	}
	for title, step := range s.Steps {
		cfg.Prompts[title] = strings.TrimSpace(step.Prompt)
		if step.Model == "" {
			continue
		}
		i, ok := catalog.IndexOf(step.Model)
		if !ok {
			return workflow.Config{}, fmt.Errorf("step %q: model %q is not in the catalog", title, step.Model)
		}
		cfg.Models[title] = i
	}
	return cfg, nil
}

// AdapterOptions returns the generation settings for gateway adapters.
func (s *Settings) AdapterOptions() llm.AdapterOptions {
	opts := llm.AdapterOptions{MaxTokens: s.LLM.MaxTokens}
	if s.LLM.Temperature != nil {
		t := float32(*s.LLM.Temperature)
		opts.Temperature = &t
	}
	return opts
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(p.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", p.EnvVar())
	}
	return key, nil
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
