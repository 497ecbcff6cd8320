package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	LLM     LLMConfig
	Shell   ShellConfig
	History HistoryConfig
	UI      UIConfig
	Log     LogConfig
}

// LLMConfig holds provider settings.
type LLMConfig struct {
	Provider       string
	Endpoint       string
	APIKeyEnv      string
	APIKey         string
	Model          string
	SystemPrompt   string
	TimeoutSeconds int
}

// ShellConfig holds guarded command execution settings.
type ShellConfig struct {
	TimeoutSeconds int
}

// HistoryConfig holds sqlite transcript settings.
type HistoryConfig struct {
	Path string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	TickMS    int
	AltScreen bool
}

// LogConfig holds session log settings.
type LogConfig struct {
	Dir string
}

const defaultSystemPrompt = "You are a helpful assistant running inside a terminal chat client. " +
	"When a shell command would answer the question, emit it in a ```bash fenced block."

// Load reads configuration from file and env. Env var overrides use prefix CHATFUSE_.
func Load() (Config, error) {
	v := viper.New()

	home := os.Getenv("HOME")
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.system_prompt", defaultSystemPrompt)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("shell.timeout_seconds", 30)
	v.SetDefault("history.path", filepath.Join(home, ".local", "share", "chatfuse", "chatfuse.db"))
	v.SetDefault("ui.tick_ms", 100)
	v.SetDefault("ui.alt_screen", true)
	v.SetDefault("log.dir", filepath.Join(home, ".local", "share", "chatfuse", "logs"))

	v.SetConfigType("toml")

	cfgPath := os.Getenv("CHATFUSE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "chatfuse"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CHATFUSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if
// needed. The API key field is plain text; env vars or the encrypted key
// store are preferred for secrets.
func Save(cfg Config) error {
	path := os.Getenv("CHATFUSE_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "chatfuse", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("llm.provider", cfg.LLM.Provider)
	v.Set("llm.endpoint", cfg.LLM.Endpoint)
	v.Set("llm.api_key_env", cfg.LLM.APIKeyEnv)
	v.Set("llm.api_key", cfg.LLM.APIKey)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.system_prompt", cfg.LLM.SystemPrompt)
	v.Set("llm.timeout_seconds", cfg.LLM.TimeoutSeconds)
	v.Set("shell.timeout_seconds", cfg.Shell.TimeoutSeconds)
	v.Set("history.path", cfg.History.Path)
	v.Set("ui.tick_ms", cfg.UI.TickMS)
	v.Set("ui.alt_screen", cfg.UI.AltScreen)
	v.Set("log.dir", cfg.Log.Dir)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
