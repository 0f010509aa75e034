// Package config loads service settings from .env, an optional YAML file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"assemblyline/internal/llm"
	"assemblyline/internal/storage"
)

type Config struct {
	Server      ServerConfig   `yaml:"server"`
	DatabaseURL string         `yaml:"database_url"`
	Storage     storage.Config `yaml:"storage"`
	LLM         LLMConfig      `yaml:"llm"`
	Engine      EngineConfig   `yaml:"engine"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	Env         string   `yaml:"env"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

type EngineConfig struct {
	DataDir             string        `yaml:"data_dir"`
	DefaultStack        string        `yaml:"default_stack"`
	SkipToolchain       bool          `yaml:"skip_toolchain"`
	MaxValidationPasses int           `yaml:"max_validation_passes"`
	MaxFixAttempts      int           `yaml:"max_fix_attempts"`
	MaxCompileAttempts  int           `yaml:"max_compile_attempts"`
	SynthTimeout        time.Duration `yaml:"synth_timeout"`
	ToolchainTimeout    time.Duration `yaml:"toolchain_timeout"`
	PreviewTTL          time.Duration `yaml:"preview_ttl"`
	SynthBatchSize      int           `yaml:"synth_batch_size"`
	SynthConcurrency    int           `yaml:"synth_concurrency"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: ":8081", Env: "local"},
		Storage: storage.Config{
			Cache: storage.DefaultCacheConfig(),
			S3:    storage.S3Config{Region: "us-east-1", Bucket: "assembly-files"},
		},
		LLM: LLMConfig{RPS: 1, Burst: 1, MaxRetries: 3, Timeout: 2 * time.Minute},
		Engine: EngineConfig{
			DataDir:          filepath.Join("tmp", "assembly"),
			SynthTimeout:     3 * time.Minute,
			ToolchainTimeout: 5 * time.Minute,
			PreviewTTL:       time.Hour,
		},
	}
}

// Load reads .env (when present), then path (when non-empty and present), then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	applyEnv(cfg, os.Getenv)
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if port := env("PORT"); port != "" {
		if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
			port = ":" + port
		}
		cfg.Server.Port = port
	}
	if v := env("APP_ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := env("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := env("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	if v := env("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	s3 := &cfg.Storage.S3
	s3.Endpoint = firstNonEmpty(env("ARTIFACT_S3_ENDPOINT"), s3.Endpoint)
	s3.Region = firstNonEmpty(env("ARTIFACT_S3_REGION"), s3.Region)
	s3.AccessKey = firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER"), s3.AccessKey)
	s3.SecretKey = firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD"), s3.SecretKey)
	s3.Bucket = firstNonEmpty(env("ARTIFACT_S3_BUCKET"), s3.Bucket)
	if v, ok := parseBool(env("ARTIFACT_S3_USE_SSL")); ok {
		s3.UseSSL = v
	}

	l := &cfg.LLM
	l.Provider = firstNonEmpty(env("LLM_PROVIDER"), l.Provider)
	l.Model = firstNonEmpty(env("LLM_MODEL"), l.Model)
	switch strings.ToLower(l.Provider) {
	case llm.ProviderGemini:
		l.APIKey = firstNonEmpty(env("GEMINI_API_KEY"), l.APIKey)
	case llm.ProviderGroq:
		l.APIKey = firstNonEmpty(env("GROQ_API_KEY"), l.APIKey)
	case llm.ProviderOllama:
		l.BaseURL = firstNonEmpty(env("OLLAMA_HOST"), l.BaseURL)
	case "":
		switch {
		case env("GEMINI_API_KEY") != "":
			l.Provider, l.APIKey = llm.ProviderGemini, env("GEMINI_API_KEY")
		case env("GROQ_API_KEY") != "":
			l.Provider, l.APIKey = llm.ProviderGroq, env("GROQ_API_KEY")
		case env("OLLAMA_HOST") != "":
			l.Provider, l.BaseURL = llm.ProviderOllama, env("OLLAMA_HOST")
		}
	}
	if v, err := strconv.ParseFloat(env("LLM_RPS"), 64); err == nil {
		l.RPS = v
	}
	if v, err := strconv.Atoi(env("LLM_BURST")); err == nil {
		l.Burst = v
	}

	e := &cfg.Engine
	e.DataDir = firstNonEmpty(env("ASSEMBLY_DATA_DIR"), e.DataDir)
	e.DefaultStack = firstNonEmpty(env("ASSEMBLY_DEFAULT_STACK"), e.DefaultStack)
	if v, ok := parseBool(env("ASSEMBLY_SKIP_TOOLCHAIN")); ok {
		e.SkipToolchain = v
	}
}

// fillDerived points unset storage settings at the shared database and data dir.
func (c *Config) fillDerived() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = c.DatabaseURL
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = c.FilesDir()
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = llm.ProviderFake
	}
}

func (c *Config) WorkspaceDir() string { return filepath.Join(c.Engine.DataDir, "workspace") }
func (c *Config) RunsDir() string      { return filepath.Join(c.Engine.DataDir, "runs") }
func (c *Config) FilesDir() string     { return filepath.Join(c.Engine.DataDir, "files") }
func (c *Config) TraceDir() string     { return filepath.Join(c.Engine.DataDir, "run_logs") }

// ClientConfig converts the LLM section for llm.New.
func (c LLMConfig) ClientConfig() llm.Config {
	return llm.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		RPS:        c.RPS,
		Burst:      c.Burst,
		MaxRetries: c.MaxRetries,
		Timeout:    c.Timeout,
	}
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server port is empty"))
	}
	switch b := c.Storage.Resolve(); b {
	case storage.BackendMemory, storage.BackendDisk, storage.BackendPostgres:
	case storage.BackendS3:
		if !c.Storage.S3.Complete() {
			errs = append(errs, errors.New("s3 storage needs endpoint, access key, secret key and bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", b))
	}
	if c.Storage.Resolve() == storage.BackendPostgres && c.Storage.DatabaseURL == "" {
		errs = append(errs, errors.New("postgres storage needs DATABASE_URL"))
	}
	switch p := strings.ToLower(c.LLM.Provider); p {
	case llm.ProviderGemini, llm.ProviderGroq:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm provider %s needs an api key", p))
		}
	case llm.ProviderOllama, llm.ProviderFake, "":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.RPS < 0 || c.LLM.Burst < 0 {
		errs = append(errs, errors.New("llm rps and burst must not be negative"))
	}
	if strings.TrimSpace(c.Engine.DataDir) == "" {
		errs = append(errs, errors.New("engine data dir is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(raw string) (bool, bool) {
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
