// Package runtimeconfig loads optional JSON configuration for the agent
// runtime. Environment variables override file values at the call site.
package runtimeconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Model          string   `json:"model"`
	SystemPrompt   string   `json:"systemPrompt"`
	ProtectedTools []string `json:"protectedTools"`
	AutoApprove    bool     `json:"autoApprove"`
	StateBackend   string   `json:"stateBackend"` // memory, sqlite, redis
	DBPath         string   `json:"dbPath"`
	CRMPath        string   `json:"crmPath"`
	RedisAddr      string   `json:"redisAddr"`
}

func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, fmt.Errorf("config path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %q: %w", absPath, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config file %q as JSON: %w", absPath, err)
	}

	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.SystemPrompt = strings.TrimSpace(cfg.SystemPrompt)
	cfg.StateBackend = strings.ToLower(strings.TrimSpace(cfg.StateBackend))
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	cfg.CRMPath = strings.TrimSpace(cfg.CRMPath)
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cleanTools := make([]string, 0, len(cfg.ProtectedTools))
	for _, t := range cfg.ProtectedTools {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		cleanTools = append(cleanTools, t)
	}
	cfg.ProtectedTools = cleanTools

	switch cfg.StateBackend {
	case "", "memory", "sqlite", "redis":
	default:
		return Config{}, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
	return cfg, nil
}
