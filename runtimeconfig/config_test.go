package runtimeconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"model": " gemini-2.5-flash ",
		"systemPrompt": "be helpful",
		"protectedTools": ["send_campaign_email", " ", "create_campaign"],
		"autoApprove": true,
		"stateBackend": "SQLite",
		"dbPath": "state.db"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if len(cfg.ProtectedTools) != 2 {
		t.Fatalf("protectedTools = %v", cfg.ProtectedTools)
	}
	if !cfg.AutoApprove {
		t.Fatal("autoApprove not set")
	}
	if cfg.StateBackend != "sqlite" {
		t.Fatalf("stateBackend = %q", cfg.StateBackend)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `{"stateBackend": "dynamo"}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown backend error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}
