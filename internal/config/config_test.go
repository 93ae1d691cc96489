package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte("api:\n  base_url: http://localhost:8080\n  timeout_seconds: 5\nproject:\n  id: 7\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" || cfg.APITimeout() != 5*time.Second || cfg.Project.ID != 7 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidateRejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"api:\n  base_url: \"\"\n", "api:\n  base_url: ftp://x\n"} {
		if _, err := FromYAML([]byte(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Project.ID = 12
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fileName)); err != nil {
		t.Fatalf("stat: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Project.ID != 12 {
		t.Fatalf("project id = %d", got.Project.ID)
	}
}
