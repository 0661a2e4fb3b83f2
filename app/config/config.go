package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GeneratorLLM      = "llm"
	GeneratorTemplate = "template"
)

type Config struct {
	Server     HTTPServerConfig `json:"server"`
	Generation GenerationConfig `json:"generation"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Reuse      ReuseConfig      `json:"reuse"`
	LLM        LLMConfig        `json:"llm"`
	Mongo      MongoConfig      `json:"mongo"`
	FileRepo   FileRepoConfig   `json:"file_repo"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics"`
	CORS       CORSConfig       `json:"cors"`
	LogLevel   slog.Level       `json:"log_level"`
}

type HTTPServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type GenerationConfig struct {
	Generator         string        `json:"generator"`
	GeneratorTimeout  time.Duration `json:"generator_timeout"`
	JobTimeout        time.Duration `json:"job_timeout"`
	DefaultMaxRetries int           `json:"default_max_retries"`
	MaxRetriesCap     int           `json:"max_retries_cap"`
}

type RateLimitConfig struct {
	Window      time.Duration `json:"window"`
	MaxRequests int           `json:"max_requests"`
}

type ReuseConfig struct {
	Threshold   float64 `json:"threshold"`
	LoadLimit   int     `json:"load_limit"`
	RecentShown int     `json:"recent_shown"`
}

type LLMConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// MongoConfig enables the Mongo history and file mirror when URI is set.
type MongoConfig struct {
	URI            string        `json:"uri"`
	Database       string        `json:"database"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

type FileRepoConfig struct {
	OutputDir string `json:"output_dir"`
}

// NATSConfig enables job notifications when URL is set.
type NATSConfig struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// Load reads the configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Server: HTTPServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Generation: GenerationConfig{
			Generator:         strings.ToLower(getEnv("GENERATOR", GeneratorLLM)),
			GeneratorTimeout:  getEnvDuration("GENERATOR_TIMEOUT", 45*time.Second),
			JobTimeout:        getEnvDuration("JOB_TIMEOUT", 15*time.Minute),
			DefaultMaxRetries: getEnvInt("DEFAULT_MAX_RETRIES", 2),
			MaxRetriesCap:     getEnvInt("MAX_RETRIES_CAP", 5),
		},
		RateLimit: RateLimitConfig{
			Window:      getEnvDuration("RATE_LIMIT_WINDOW", 300*time.Second),
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 2),
		},
		Reuse: ReuseConfig{
			Threshold:   getEnvFloat("REUSE_SIMILARITY_THRESHOLD", 0.6),
			LoadLimit:   getEnvInt("REUSE_LOAD_LIMIT", 500),
			RecentShown: getEnvInt("REUSE_RECENT_SHOWN", 5),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", ""),
			BaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1/chat/completions"),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGO_URI", ""),
			Database:       getEnv("MONGO_DB", "appgen"),
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		FileRepo: FileRepoConfig{
			OutputDir: getEnv("OUTPUT_DIR", "./generated"),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "generation"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":2112"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		LogLevel: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_REQUESTS must be positive"))
	}
	if c.Generation.GeneratorTimeout <= 0 || c.Generation.JobTimeout <= 0 {
		errs = append(errs, errors.New("GENERATOR_TIMEOUT and JOB_TIMEOUT must be positive"))
	}
	if c.Generation.DefaultMaxRetries < 0 || c.Generation.MaxRetriesCap <= 0 {
		errs = append(errs, errors.New("DEFAULT_MAX_RETRIES must be >= 0 and MAX_RETRIES_CAP positive"))
	}
	if c.Reuse.Threshold <= 0 || c.Reuse.Threshold > 1 {
		errs = append(errs, fmt.Errorf("REUSE_SIMILARITY_THRESHOLD must be in (0,1], got %v", c.Reuse.Threshold))
	}
	switch c.Generation.Generator {
	case GeneratorLLM:
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("LLM_API_KEY env variable is required when GENERATOR=llm"))
		}
	case GeneratorTemplate:
	default:
		errs = append(errs, fmt.Errorf("GENERATOR must be %q or %q, got %q", GeneratorLLM, GeneratorTemplate, c.Generation.Generator))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return defaultValue
	}
	return lvl
}
