// Package config loads orchestrator configuration from the environment
// (with .env support) and an optional .agent/config.yaml overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved orchestrator configuration.
type Config struct {
	// Ticket store identity. Required for any command touching the backlog.
	GitHubToken string
	GitHubOwner string
	GitHubRepo  string

	// Provider credentials. A provider without credentials (or, for claude,
	// without the CLI on PATH) is simply absent from the registry.
	OpenAIKey string
	GeminiKey string

	DryRun bool

	// Idea-generation knobs.
	IdeasPerRun      int
	MaxPromotionsRun int

	// Workspace layout, all rooted at BaseDir.
	BaseDir string

	File FileConfig
}

// FileConfig is the optional .agent/config.yaml overlay: tuning that does
// not belong in the environment.
type FileConfig struct {
	RequiredScore float64        `yaml:"required_score"`
	StageLimits   map[string]int `yaml:"stage_limits"`
	Models        struct {
		Claude ModelChain `yaml:"claude"`
		OpenAI ModelChain `yaml:"openai"`
		Gemini ModelChain `yaml:"gemini"`
	} `yaml:"models"`
	Loop struct {
		MaxSteps     int `yaml:"max_steps"`
		DelaySeconds int `yaml:"delay_seconds"`
	} `yaml:"loop"`
}

// ModelChain names a provider's primary model and its fallbacks.
type ModelChain struct {
	Primary   string   `yaml:"primary"`
	Fallbacks []string `yaml:"fallbacks"`
}

// Load resolves configuration for a workspace rooted at dir. A .env file in
// dir is loaded first when present; real environment variables win over it.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	// godotenv never overrides variables already set, which is the
	// precedence we want.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := &Config{
		GitHubToken:      os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:      os.Getenv("GITHUB_OWNER"),
		GitHubRepo:       os.Getenv("GITHUB_REPO"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiKey:        os.Getenv("GEMINI_API_KEY"),
		DryRun:           boolEnv("DRY_RUN"),
		IdeasPerRun:      intEnv("IDEAS_PER_RUN", 3),
		MaxPromotionsRun: intEnv("MAX_PROMOTIONS_PER_RUN", 0),
		BaseDir:          dir,
	}

	if err := loadFileConfig(filepath.Join(dir, ".agent", "config.yaml"), &cfg.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFileConfig(path string, out *FileConfig) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// RequireTicketStore validates the fields every backlog command needs.
func (c *Config) RequireTicketStore() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.GitHubOwner == "" {
		missing = append(missing, "GITHUB_OWNER")
	}
	if c.GitHubRepo == "" {
		missing = append(missing, "GITHUB_REPO")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}

// Paths rooted at BaseDir.

func (c *Config) AgentDir() string     { return filepath.Join(c.BaseDir, ".agent") }
func (c *Config) StateDBPath() string  { return filepath.Join(c.AgentDir(), "orchestrator.db") }
func (c *Config) AlertsDir() string    { return filepath.Join(c.AgentDir(), "alerts") }
func (c *Config) LockPath() string     { return filepath.Join(c.AgentDir(), "run.lock") }
func (c *Config) ScaffoldsDir() string { return filepath.Join(c.BaseDir, "scaffolds") }

func boolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
