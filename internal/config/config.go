package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	LLM      LLMConfig
	Ollama   OllamaConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Matching MatchingConfig
	Mail     MailConfig
	SMTP     SMTPConfig
}

type ServerConfig struct {
	Port           int
	BaseURL        string
	APIToken       string
	MaxConnections int
	CORSOrigins    string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type LLMConfig struct {
	Provider      string
	Timeout       time.Duration
	RatePerSecond float64
	MaxTokens     int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type GeminiConfig struct {
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type MatchingConfig struct {
	Threshold     float64
	MinScore      float64
	Budget        int
	Debounce      time.Duration
	SweepInterval time.Duration
}

type MailConfig struct {
	From         string
	ResendAPIKey string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4000,
			BaseURL:        "http://localhost:4000",
			MaxConnections: 256,
			CORSOrigins:    "*",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		LLM: LLMConfig{
			Timeout:       45 * time.Second,
			RatePerSecond: 2,
			MaxTokens:     1200,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			ChatModel:  "gpt-5-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Gemini: GeminiConfig{
			ChatModel:  "gemini-2.5-flash",
			EmbedModel: "text-embedding-004",
		},
		Matching: MatchingConfig{
			Threshold:     0.18,
			MinScore:      0.55,
			Budget:        6,
			Debounce:      250 * time.Millisecond,
			SweepInterval: 2 * time.Minute,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
	}
}

// Load reads configuration from the JSON config file, a .env file in the
// working directory, and environment variables, in increasing precedence.
//
// The config file lives at $XDG_CONFIG_HOME/agentmesh/config.json. Secrets
// are never read from it; they come from the environment or .env only.
// Values already present in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	switch c.LLM.Provider {
	case "", "ollama", "openai", "gemini":
	default:
		problems = append(problems, fmt.Sprintf("llm.provider %q is not one of ollama, openai, gemini", c.LLM.Provider))
	}
	if c.Matching.Budget < 1 {
		problems = append(problems, "matching.budget must be at least 1")
	}
	if c.Matching.Threshold < -1 || c.Matching.Threshold > 1 {
		problems = append(problems, "matching.threshold must be within [-1, 1]")
	}
	if c.Matching.MinScore < 0 || c.Matching.MinScore > 1 {
		problems = append(problems, "matching.min_score must be within [0, 1]")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
