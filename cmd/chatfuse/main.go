package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/chatfuse/internal/config"
	"github.com/jask/chatfuse/internal/database"
	"github.com/jask/chatfuse/internal/history"
	"github.com/jask/chatfuse/internal/llm"
	"github.com/jask/chatfuse/internal/logging"
	"github.com/jask/chatfuse/internal/secrets"
	"github.com/jask/chatfuse/internal/tui"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closeLog, err := logging.Open(cfg.Log.Dir)
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer closeLog()

	var store *history.Store
	if cfg.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o755); err != nil {
			log.Fatalf("mkdir db dir: %v", err)
		}
		db, err := database.Open(cfg.History.Path)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		if err := database.RunMigrations(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		store = history.NewStore(db)
	}

	apiKey := resolveAPIKey(cfg)
	client, err := llm.ClientFor(cfg.LLM.Provider, cfg.LLM.Endpoint, apiKey, cfg.LLM.Model)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	app := tui.New(ctx, cfg, client, store, logger)
	opts := []tea.ProgramOption{}
	if cfg.UI.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	logger.Printf("starting with %s/%s", cfg.LLM.Provider, cfg.LLM.Model)
	if _, err := tea.NewProgram(app, opts...).Run(); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func resolveAPIKey(cfg config.Config) string {
	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if provider == "ollama" {
		return ""
	}
	if env := strings.TrimSpace(cfg.LLM.APIKeyEnv); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	if k, err := secrets.FetchProviderKey(provider); err == nil {
		return k
	}
	return strings.TrimSpace(cfg.LLM.APIKey)
}
