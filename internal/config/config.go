// Package config reads process configuration from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
	SeedOnStart bool
	SeedFile    string

	Store    StoreConfig
	LLM      LLMConfig
	Registry RegistryConfig
	Archive  ArchiveConfig
}

type StoreConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

type LLMConfig struct {
	// Provider is ollama, gemini or fake.
	Provider       string
	OllamaBaseURL  string
	OllamaModel    string
	GeminiAPIKey   string
	GeminiModel    string
	Timeout        time.Duration
	NumPredict     int
	MaxConcurrency int
	RPS            float64
	Burst          int
	MaxAttempts    int
	RetryBackoff   time.Duration
	// FakeClassification is what the fake provider answers to
	// classification prompts.
	FakeClassification string
}

type RegistryConfig struct {
	Version  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether the archive has everything an S3 client needs.
func (a ArchiveConfig) CanUseS3() bool {
	return a.Enabled && a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != "" && a.Bucket != ""
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Invalid numbers and
// durations are errors.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := envReader{get: getenv}

	env := firstNonEmpty(e.str("APP_ENV"), "local")
	cfg := &Config{
		Port:        normalizePort(firstNonEmpty(e.str("PORT"), ":8000")),
		Env:         env,
		LogLevel:    firstNonEmpty(e.str("LOG_LEVEL"), "info"),
		LogFormat:   firstNonEmpty(e.str("LOG_FORMAT"), defaultLogFormat(env)),
		CORSOrigins: splitList(e.str("CORS_ALLOW_ORIGINS")),
		SeedOnStart: e.boolean("SEED_ON_START", false),
		SeedFile:    e.str("SEED_FILE"),
	}

	cfg.Store = StoreConfig{
		DatabaseURL: e.str("DATABASE_URL"),
		SQLitePath:  firstNonEmpty(e.str("SQLITE_PATH"), "reports.db"),
	}
	cfg.Store.Driver = resolveStoreDriver(e.str("STORE_DRIVER"), cfg.Store.DatabaseURL)

	cfg.LLM = LLMConfig{
		Provider:           strings.ToLower(firstNonEmpty(e.str("LLM_PROVIDER"), "ollama")),
		OllamaBaseURL:      firstNonEmpty(e.str("OLLAMA_BASE_URL"), "http://ollama:11434"),
		OllamaModel:        firstNonEmpty(e.str("OLLAMA_MODEL"), "gemma:2b"),
		GeminiAPIKey:       firstNonEmpty(e.str("GEMINI_API_KEY"), e.str("GOOGLE_API_KEY")),
		GeminiModel:        e.str("GEMINI_MODEL"),
		FakeClassification: e.str("LLM_FAKE_CLASSIFICATION"),
	}
	cfg.Registry = RegistryConfig{
		Version: firstNonEmpty(e.str("PROMPT_VERSION"), "v1"),
	}
	cfg.Archive = loadArchiveConfig(&e, env)

	cfg.LLM.Timeout = e.duration("LLM_TIMEOUT", 120*time.Second)
	cfg.LLM.NumPredict = e.integer("LLM_NUM_PREDICT", -1)
	cfg.LLM.MaxConcurrency = e.integer("LLM_MAX_CONCURRENCY", 1)
	cfg.LLM.RPS = e.float("LLM_RPS", 0)
	cfg.LLM.Burst = e.integer("LLM_BURST", 0)
	cfg.LLM.MaxAttempts = e.integer("LLM_MAX_ATTEMPTS", 1)
	cfg.LLM.RetryBackoff = e.duration("LLM_RETRY_BACKOFF", time.Second)
	cfg.Registry.Timeout = e.duration("REGISTRY_TIMEOUT", 5*time.Second)
	cfg.Registry.CacheTTL = e.duration("REGISTRY_CACHE_TTL", 30*time.Second)

	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

func loadArchiveConfig(e *envReader, env string) ArchiveConfig {
	endpoint := e.str("ARCHIVE_S3_ENDPOINT")
	useSSL := e.boolean("ARCHIVE_S3_USE_SSL", true)
	if isLocal(env) {
		endpoint = firstNonEmpty(e.str("ARTIFACT_MINIO_ENDPOINT"), endpoint)
		useSSL = false
	}
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(e.str("ARCHIVE_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(e.str("ARCHIVE_S3_ACCESS_KEY"), e.str("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(e.str("ARCHIVE_S3_SECRET_KEY"), e.str("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(e.str("ARCHIVE_S3_BUCKET"), "incident-reports"),
		UseSSL:    useSSL,
	}
}

func resolveStoreDriver(driver, dsn string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver != "" {
		return driver
	}
	if dsn != "" {
		return "postgres"
	}
	return "memory"
}

func isLocal(env string) bool {
	return strings.EqualFold(strings.TrimSpace(env), "local")
}

func defaultLogFormat(env string) string {
	if isLocal(env) {
		return "console"
	}
	return "json"
}

func normalizePort(p string) string {
	if strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

// envReader collects the first parse error so Load can report it once.
type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(key string) string {
	return strings.TrimSpace(e.get(key))
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(err, key)
		return def
	}
	return d
}

func (e *envReader) integer(key string, def int) int {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(err, key)
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail(err, key)
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	raw := e.str(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(err, key)
		return def
	}
	return v
}

func (e *envReader) fail(err error, key string) {
	if e.err == nil {
		e.err = eris.Wrapf(err, "config: invalid %s", key)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
