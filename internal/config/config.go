// Package config loads the orchestrator's configuration document: a TOML
// file with sensible defaults, an optional .env file for local development,
// and environment variables for secrets.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all orchestrator configuration.
type Config struct {
	Models  ModelsConfig  `toml:"models"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Limits  LimitsConfig  `toml:"limits"`
	Features FeaturesConfig `toml:"features"`
	Web     WebConfig     `toml:"web"`
}

// ModelsConfig lists the default query and judge models.
type ModelsConfig struct {
	QueryModels []string `toml:"query_models"`
	JudgeModel  string   `toml:"judge_model"`
	ImageModel  string   `toml:"image_model"`
}

// TimeoutsConfig holds the per-call timeout budgets for each stage of the
// pipeline.
type TimeoutsConfig struct {
	PerModelMs      int `toml:"per_model_timeout_ms"`
	JudgeMs         int `toml:"judge_timeout_ms"`
	DebateMs        int `toml:"debate_timeout_ms"`
	JudgeFeedbackMs int `toml:"judge_feedback_timeout_ms"`
	ResearchModelMs int `toml:"research_model_timeout_ms"`
}

// PerModel returns the per-model call timeout as a time.Duration.
func (t TimeoutsConfig) PerModel() time.Duration { return time.Duration(t.PerModelMs) * time.Millisecond }

// Judge returns the judge call timeout as a time.Duration.
func (t TimeoutsConfig) Judge() time.Duration { return time.Duration(t.JudgeMs) * time.Millisecond }

// Debate returns the debate refinement call timeout as a time.Duration.
func (t TimeoutsConfig) Debate() time.Duration { return time.Duration(t.DebateMs) * time.Millisecond }

// JudgeFeedback returns the debate judge-feedback call timeout.
func (t TimeoutsConfig) JudgeFeedback() time.Duration {
	return time.Duration(t.JudgeFeedbackMs) * time.Millisecond
}

// ResearchModel returns the extended timeout used for researched-answer calls.
func (t TimeoutsConfig) ResearchModel() time.Duration {
	return time.Duration(t.ResearchModelMs) * time.Millisecond
}

// LimitsConfig holds the numeric caps on prompt size, fan-out width, and
// retry counts.
type LimitsConfig struct {
	MaxPromptLength        int `toml:"max_prompt_length"`
	MinModelsForJudge      int `toml:"min_models_for_judge"`
	MaxAnswerLengthForJudge int `toml:"max_answer_length_for_judge"`
	MaxDebateRounds        int `toml:"max_debate_rounds"`
	MaxRetries             int `toml:"max_retries"`
	MaxSearchResults       int `toml:"max_search_results"`
}

// FeaturesConfig holds the boolean flags that toggle optional pipeline
// behavior.
type FeaturesConfig struct {
	EnableEarlyJudge bool `toml:"enable_early_judge"`
	EnableDebate     bool `toml:"enable_debate"`
}

// WebConfig holds the HTTP listener settings.
type WebConfig struct {
	Port          int    `toml:"port"`
	Host          string `toml:"host"`
	FrontendOrigin string `toml:"frontend_origin"`
}

// Secrets holds the values loaded from the environment (never from a config
// file).
type Secrets struct {
	OpenRouterAPIKey string
	TavilyAPIKey     string
	NodeEnv          string
}

// Default returns a Config populated with sensible out-of-the-box values.
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			QueryModels: []string{"openai/gpt-4o-mini", "anthropic/claude-3-haiku", "google/gemini-flash-1.5"},
			JudgeModel:  "openai/gpt-4o",
			ImageModel:  "google/gemini-2.5-flash-image-preview",
		},
		Timeouts: TimeoutsConfig{
			PerModelMs:      30_000,
			JudgeMs:         30_000,
			DebateMs:        30_000,
			JudgeFeedbackMs: 15_000,
			ResearchModelMs: 45_000,
		},
		Limits: LimitsConfig{
			MaxPromptLength:         8_000,
			MinModelsForJudge:       2,
			MaxAnswerLengthForJudge: 4_000,
			MaxDebateRounds:         2,
			MaxRetries:              2,
			MaxSearchResults:        8,
		},
		Features: FeaturesConfig{
			EnableEarlyJudge: true,
			EnableDebate:     true,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults when
// the file does not exist, then layers environment overrides for the web
// listener (PORT, FRONTEND_ORIGIN).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		if n, err := parsePort(port); err == nil {
			cfg.Web.Port = n
		}
	}
	if origin := os.Getenv("FRONTEND_ORIGIN"); origin != "" {
		cfg.Web.FrontendOrigin = origin
	}

	return cfg, nil
}

// LoadSecrets reads the required and optional environment-provided
// credentials. An empty TavilyAPIKey is not an error: it forces the
// Research Pipeline into its no-sources branch.
func LoadSecrets() Secrets {
	return Secrets{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		TavilyAPIKey:     os.Getenv("TAVILY_API_KEY"),
		NodeEnv:          os.Getenv("NODE_ENV"),
	}
}

// LoadDotEnv loads a .env file into the process environment if present.
// Missing files are not an error — this mirrors local-development tooling,
// not a required deployment step.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func parsePort(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, &InvalidPortError{Value: s}
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// InvalidPortError is returned when the PORT environment variable is not
// a base-10 integer.
type InvalidPortError struct {
	Value string
}

func (e *InvalidPortError) Error() string {
	return "invalid PORT value: " + e.Value
}
