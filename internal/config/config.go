// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port       int           `yaml:"port"`
	AdminToken string        `yaml:"admin_token"` // bearer token for the operator API; empty disables the guard
	Timeout    time.Duration `yaml:"timeout"`
	// SubmitLimit caps job submissions per client per minute; 0 disables it.
	SubmitLimit int `yaml:"submit_limit"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // per-job executor lock
}

type QueueConfig struct {
	Name          string        `yaml:"name"`
	Concurrency   int           `yaml:"concurrency"`
	Attempts      int           `yaml:"attempts"` // total attempts, first run included
	Backoff       time.Duration `yaml:"backoff"`  // base delay, doubled per attempt
	PollInterval  time.Duration `yaml:"poll_interval"`
	KeepCompleted int           `yaml:"keep_completed"`
	KeepFailed    int           `yaml:"keep_failed"`
}

type AIConfig struct {
	AnthropicKey     string        `yaml:"anthropic_key"`
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	ClaudeModel      string        `yaml:"claude_model"`
	GPTModel         string        `yaml:"gpt_model"`
	GeminiModel      string        `yaml:"gemini_model"`
	ConcurrentLimit  int           `yaml:"concurrent_limit"` // max concurrent AI calls per provider
	Timeout          time.Duration `yaml:"timeout"`
	CommentaryModels []string      `yaml:"commentary_models"`
}

type ResearchConfig struct {
	Primary       string `yaml:"primary"` // perplexity|exa|brave
	PerplexityKey string `yaml:"perplexity_key"`
	ExaKey        string `yaml:"exa_key"`
	BraveKey      string `yaml:"brave_key"`
}

type MediaConfig struct {
	ElevenLabsKey     string `yaml:"elevenlabs_key"`
	ElevenLabsBaseURL string `yaml:"elevenlabs_base_url"`
	FFmpegPath        string `yaml:"ffmpeg_path"`
	DalleModel        string `yaml:"dalle_model"`
	PoetryDBURL       string `yaml:"poetrydb_url"`
}

type VerifyConfig struct {
	Enabled       bool `yaml:"enabled"`
	FailOpen      bool `yaml:"fail_open"`
	ExemptCatalog bool `yaml:"exempt_catalog"`
}

type PipelineConfig struct {
	Verify             VerifyConfig `yaml:"verify"`
	GlossModels        []string     `yaml:"gloss_models"`
	ComparisonModel    string       `yaml:"comparison_model"`
	IllustrationModel  string       `yaml:"illustration_model"`
	DefaultSourceModel string       `yaml:"default_source_model"`
	DefaultThemes      []string     `yaml:"default_themes"`
}

type SchedulerConfig struct {
	AutoGenerateCron string `yaml:"auto_generate_cron"`
	Enabled          bool   `yaml:"enabled"`
	MaxBacklog       int    `yaml:"max_backlog"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	AI        AIConfig        `yaml:"ai"`
	Research  ResearchConfig  `yaml:"research"`
	Media     MediaConfig     `yaml:"media"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads path, expands ${ENV} references, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	cfg := Config{
		// bool defaults must be set before unmarshal
		Pipeline: PipelineConfig{Verify: VerifyConfig{Enabled: true, FailOpen: true, ExemptCatalog: true}},
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.AI.AnthropicKey == "" && cfg.AI.OpenAIKey == "" && cfg.AI.GeminiKey == "" {
		return nil, errors.New("at least one of ai.anthropic_key, ai.openai_key, ai.gemini_key is required")
	}
	switch cfg.Research.Primary {
	case "perplexity", "exa", "brave":
	default:
		return nil, fmt.Errorf("research.primary %q is not one of perplexity|exa|brave", cfg.Research.Primary)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.Timeout <= 0 {
		cfg.HTTP.Timeout = 30 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "poem-generation"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = 1
	}
	if cfg.Queue.Attempts <= 0 {
		cfg.Queue.Attempts = 3
	}
	if cfg.Queue.Backoff <= 0 {
		cfg.Queue.Backoff = 5 * time.Second
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.KeepCompleted <= 0 {
		cfg.Queue.KeepCompleted = 100
	}
	if cfg.Queue.KeepFailed <= 0 {
		cfg.Queue.KeepFailed = 200
	}

	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 3 * time.Minute
	}
	if cfg.AI.ClaudeModel == "" {
		cfg.AI.ClaudeModel = "claude-opus-4-5-20251101"
	}
	if cfg.AI.GPTModel == "" {
		cfg.AI.GPTModel = "gpt-4o"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-3-flash-preview"
	}
	if len(cfg.AI.CommentaryModels) == 0 {
		cfg.AI.CommentaryModels = []string{"claude-opus-4-5", "gpt-4o", "gemini-3-flash"}
	}

	if cfg.Research.Primary == "" {
		cfg.Research.Primary = "perplexity"
	}

	if cfg.Media.ElevenLabsBaseURL == "" {
		cfg.Media.ElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	}
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.DalleModel == "" {
		cfg.Media.DalleModel = "dall-e-3"
	}
	if cfg.Media.PoetryDBURL == "" {
		cfg.Media.PoetryDBURL = "https://poetrydb.org"
	}

	if len(cfg.Pipeline.GlossModels) == 0 {
		cfg.Pipeline.GlossModels = []string{"gemini-3-flash", "claude-opus-4-5"}
	}
	if cfg.Pipeline.ComparisonModel == "" {
		cfg.Pipeline.ComparisonModel = "claude-opus-4-5"
	}
	if cfg.Pipeline.IllustrationModel == "" {
		cfg.Pipeline.IllustrationModel = "claude-opus-4-5"
	}
	if cfg.Pipeline.DefaultSourceModel == "" {
		cfg.Pipeline.DefaultSourceModel = "claude-opus-4-5"
	}
	if len(cfg.Pipeline.DefaultThemes) == 0 {
		cfg.Pipeline.DefaultThemes = []string{"reflection", "beauty"}
	}

	if cfg.Scheduler.AutoGenerateCron == "" {
		cfg.Scheduler.AutoGenerateCron = "0 */6 * * *"
	}
	if cfg.Scheduler.MaxBacklog <= 0 {
		cfg.Scheduler.MaxBacklog = 3
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Minute
	}
	return d
}
