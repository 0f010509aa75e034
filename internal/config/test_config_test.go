package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"assemblyline/internal/llm"
	"assemblyline/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()
	applyEnv(cfg, envMap(map[string]string{
		"PORT":                    "9090",
		"APP_ENV":                 "prod",
		"DATABASE_URL":            "postgres://x",
		"MINIO_ROOT_USER":         "minio",
		"MINIO_ROOT_PASSWORD":     "secret",
		"ARTIFACT_S3_ENDPOINT":    "minio:9000",
		"ARTIFACT_S3_USE_SSL":     "false",
		"GROQ_API_KEY":            "gk",
		"LLM_RPS":                 "2.5",
		"LLM_BURST":               "4",
		"ASSEMBLY_DEFAULT_STACK":  "go",
		"ASSEMBLY_SKIP_TOOLCHAIN": "true",
		"CORS_ALLOWED_ORIGINS":    "http://a, http://b",
	}))
	cfg.fillDerived()

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "prod", cfg.Server.Env)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres://x", cfg.Storage.DatabaseURL)
	assert.Equal(t, "minio", cfg.Storage.S3.AccessKey)
	assert.Equal(t, "secret", cfg.Storage.S3.SecretKey)
	assert.Equal(t, storage.BackendS3, cfg.Storage.Resolve())
	assert.Equal(t, llm.ProviderGroq, cfg.LLM.Provider)
	assert.Equal(t, "gk", cfg.LLM.APIKey)
	assert.Equal(t, 2.5, cfg.LLM.RPS)
	assert.Equal(t, 4, cfg.LLM.Burst)
	assert.Equal(t, "go", cfg.Engine.DefaultStack)
	assert.True(t, cfg.Engine.SkipToolchain)
	require.NoError(t, cfg.Validate())
}

func TestDefaultsFallBackToDiskAndFake(t *testing.T) {
	cfg := Default()
	applyEnv(cfg, envMap(nil))
	cfg.fillDerived()
	assert.Equal(t, storage.BackendDisk, cfg.Storage.Resolve())
	assert.Equal(t, llm.ProviderFake, cfg.LLM.Provider)
	assert.Equal(t, filepath.Join("tmp", "assembly", "workspace"), cfg.WorkspaceDir())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileExpandsEnv(t *testing.T) {
	t.Setenv("TEST_ASSEMBLY_MODEL", "gemini-2.5-flash")
	path := filepath.Join(t.TempDir(), "assembler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: ":7000"
llm:
  provider: gemini
  api_key: k
  model: ${TEST_ASSEMBLY_MODEL}
engine:
  synth_timeout: 45s
  max_fix_attempts: 5
storage:
  backend: memory
`), 0o644))

	cfg := Default()
	require.NoError(t, loadFromFile(cfg, path))
	assert.Equal(t, ":7000", cfg.Server.Port)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.Engine.SynthTimeout)
	assert.Equal(t, 5, cfg.Engine.MaxFixAttempts)
	assert.Equal(t, storage.BackendMemory, cfg.Storage.Resolve())
	assert.Equal(t, 5*time.Minute, cfg.Storage.Cache.FileTTL, "defaults survive partial files")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":  func(c *Config) { c.Storage.Backend = "ftp" },
		"unknown provider": func(c *Config) { c.LLM.Provider = "markov" },
		"gemini no key":    func(c *Config) { c.LLM.Provider = llm.ProviderGemini },
		"s3 incomplete":    func(c *Config) { c.Storage.Backend = storage.BackendS3; c.Storage.S3.Endpoint = "" },
		"postgres no dsn":  func(c *Config) { c.Storage.Backend = storage.BackendPostgres },
		"empty port":       func(c *Config) { c.Server.Port = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.fillDerived()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
