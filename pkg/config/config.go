// Package config provides configuration loading, validation, and management
// for the parliament service.
//
// KEY PRINCIPLES:
//
//  1. GLOBAL SINGLETON: a single Config instance is kept in memory behind a
//     mutex. LoadConfig is idempotent; repeated calls reuse the loaded
//     instance instead of re-reading the file.
//
//  2. VALUE-BASED ACCESS: GetConfig() returns the config BY VALUE to prevent
//     external mutation. Updates go through the Update* functions, which
//     validate and persist atomically.
//
//  3. SEPARATION OF CONCERNS: per-project settings live in
//     .parliament/config.json; secrets never appear in the config file
//     (see secrets.go); session state never appears in config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"parliament/pkg/logx"
)

// Provider identifiers for model routing.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Secret names looked up via GetSecret.
const (
	SecretAnthropicAPIKey = "ANTHROPIC_API_KEY"
	SecretOpenAIAPIKey    = "OPENAI_API_KEY"
	SecretGeminiAPIKey    = "GEMINI_API_KEY"
)

const (
	configDirName  = ".parliament"
	configFileName = "config.json"

	// CurrentSchemaVersion must be bumped on any breaking config change.
	CurrentSchemaVersion = 1
)

// Global config instance with mutex protection. projectDir is set once
// during LoadConfig and never changes.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...interface{}) {
	getLogger().Info(format, args...)
}

// ModelInfo contains static information about a known LLM model.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels contains pricing and provider information for common models.
// Unknown models fall back to ProviderPatterns inference.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-1": {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.60,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"o4-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern maps a model-name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model
// names, so new models work without code changes.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// GetModelProvider returns the API provider for a model, checking
// KnownModels first and then prefix patterns.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model and whether it was found
// in KnownModels. Unknown models get conservative defaults with an
// inferred provider.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}

	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// ModelsConfig assigns a model to each role in the pipeline.
type ModelsConfig struct {
	Expert      string `json:"expert"`      // per-persona proposal and analysis calls
	Synthesizer string `json:"synthesizer"` // question synthesis
	Chair       string `json:"chair"`       // final structured recommendation
}

// ParliamentConfig holds tunables for the conversation pipeline.
type ParliamentConfig struct {
	MaxExplorationRounds int `json:"max_exploration_rounds"` // rounds before deep analysis
	CallTimeoutSeconds   int `json:"call_timeout_seconds"`   // per model call
	RecentMessageLimit   int `json:"recent_message_limit"`   // history window for prompts
}

// WebUIConfig holds the HTTP server settings.
type WebUIConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"` // basic auth; empty disables auth
}

// ArchiveConfig holds the sqlite archive settings.
type ArchiveConfig struct {
	Path string `json:"path"` // relative to project dir unless absolute
}

// OllamaConfig points at a local inference server.
type OllamaConfig struct {
	BaseURL string `json:"base_url"`
}

// Config is the root configuration aggregate persisted to
// .parliament/config.json.
type Config struct {
	SchemaVersion int              `json:"schema_version"`
	Models        ModelsConfig     `json:"models"`
	Parliament    ParliamentConfig `json:"parliament"`
	WebUI         *WebUIConfig     `json:"webui,omitempty"`
	Archive       ArchiveConfig    `json:"archive"`
	Ollama        *OllamaConfig    `json:"ollama,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		Models: ModelsConfig{
			Expert:      "gpt-4o-mini",
			Synthesizer: "gpt-4o",
			Chair:       "gpt-4o",
		},
		Parliament: ParliamentConfig{
			MaxExplorationRounds: 3,
			CallTimeoutSeconds:   45,
			RecentMessageLimit:   20,
		},
		WebUI: &WebUIConfig{
			Addr: ":8321",
		},
		Archive: ArchiveConfig{
			Path: filepath.Join(configDirName, "archive.db"),
		},
	}
}

// Validate checks config invariants before persistence.
func (c *Config) Validate() error {
	if c.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported config schema version %d (want %d)", c.SchemaVersion, CurrentSchemaVersion)
	}
	for role, model := range map[string]string{
		"expert":      c.Models.Expert,
		"synthesizer": c.Models.Synthesizer,
		"chair":       c.Models.Chair,
	} {
		if model == "" {
			return fmt.Errorf("models.%s must not be empty", role)
		}
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("models.%s: %w", role, err)
		}
	}
	if c.Parliament.MaxExplorationRounds < 1 {
		return fmt.Errorf("parliament.max_exploration_rounds must be >= 1, got %d", c.Parliament.MaxExplorationRounds)
	}
	if c.Parliament.CallTimeoutSeconds < 1 {
		return fmt.Errorf("parliament.call_timeout_seconds must be >= 1, got %d", c.Parliament.CallTimeoutSeconds)
	}
	if c.Parliament.RecentMessageLimit < 1 {
		return fmt.Errorf("parliament.recent_message_limit must be >= 1, got %d", c.Parliament.RecentMessageLimit)
	}
	if c.Archive.Path == "" {
		return fmt.Errorf("archive.path must not be empty")
	}
	return nil
}

// ConfigPath returns the config file path for a project directory.
func ConfigPath(dir string) string {
	return filepath.Join(dir, configDirName, configFileName)
}

// LoadConfig loads .parliament/config.json from the project directory,
// creating it with defaults when absent. Idempotent: a second call with
// the same directory reuses the already-loaded instance.
func LoadConfig(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	if config != nil && projectDir == dir {
		return nil
	}

	path := ConfigPath(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := saveLocked(dir, cfg); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
		config = cfg
		projectDir = dir
		getLogger().Info("Created default config at %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	config = &cfg
	projectDir = dir
	return nil
}

// GetConfig returns a copy of the loaded config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()

	if config == nil {
		return Config{}, fmt.Errorf("config not loaded: call LoadConfig first")
	}
	return *config, nil
}

// GetProjectDir returns the directory LoadConfig was called with.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// UpdateModels atomically validates, applies, and persists a models change.
func UpdateModels(models *ModelsConfig) error {
	return updateSection(func(c *Config) { c.Models = *models })
}

// UpdateWebUI atomically validates, applies, and persists a web UI change.
func UpdateWebUI(webui *WebUIConfig) error {
	return updateSection(func(c *Config) { c.WebUI = webui })
}

func updateSection(apply func(*Config)) error {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		return fmt.Errorf("config not loaded: call LoadConfig first")
	}

	candidate := *config
	apply(&candidate)
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("rejected config update: %w", err)
	}
	if err := saveLocked(projectDir, &candidate); err != nil {
		return fmt.Errorf("failed to persist config update: %w", err)
	}
	config = &candidate
	return nil
}

func saveLocked(dir string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, configDirName), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", configDirName, err)
	}

	// Write-then-rename keeps a crash from truncating the config.
	path := ConfigPath(dir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// ResetForTest clears the singleton so tests can load fresh configs.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	config = nil
	projectDir = ""
}
