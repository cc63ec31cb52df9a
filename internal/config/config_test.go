package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("poll interval: %v", cfg.PollInterval)
	}
	if !cfg.Headless || cfg.Browser != "chromium" {
		t.Fatalf("browser defaults: %+v", cfg)
	}
	if cfg.Portal.HeaderPhrase != "注文ID" || cfg.Portal.Labels.OrderID != "注文ID" {
		t.Fatalf("portal defaults: %+v", cfg.Portal)
	}
	if cfg.Portal.AbsentOrderID != "なし" {
		t.Fatalf("absent-id sentinel: %q", cfg.Portal.AbsentOrderID)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
poll_interval = "30s"
nav_timeout = "45s"
headless = false

[portal]
order_list_url = "https://example.test/orders"
total_label = "お会計"

[portal.labels]
order_id = "Order No."
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ORDERWATCH_CONFIG", path)
	t.Setenv("ORDERWATCH_DATA_DIR", "")
	t.Setenv("ORDERWATCH_POLL_INTERVAL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 30*time.Second || cfg.NavTimeout != 45*time.Second {
		t.Fatalf("durations: %v %v", cfg.PollInterval, cfg.NavTimeout)
	}
	if cfg.Headless {
		t.Fatalf("expected headless disabled by file")
	}
	if cfg.Portal.OrderListURL != "https://example.test/orders" {
		t.Fatalf("order list url: %q", cfg.Portal.OrderListURL)
	}
	if cfg.Portal.TotalLabel != "お会計" {
		t.Fatalf("total label: %q", cfg.Portal.TotalLabel)
	}
	if cfg.Portal.Labels.OrderID != "Order No." {
		t.Fatalf("order id label: %q", cfg.Portal.Labels.OrderID)
	}
	// untouched keys keep their defaults
	if cfg.Portal.LoginURL != Default().Portal.LoginURL {
		t.Fatalf("login url changed: %q", cfg.Portal.LoginURL)
	}
}

func TestLoadOverridePrecedence(t *testing.T) {
	t.Setenv("ORDERWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ORDERWATCH_DATA_DIR", "/tmp/from-env")
	t.Setenv("ORDERWATCH_POLL_INTERVAL", "7s")

	cfg, err := Load("/tmp/from-flag")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/from-flag" {
		t.Fatalf("expected flag override to win, got %q", cfg.DataDir)
	}
	if cfg.PollInterval != 7*time.Second {
		t.Fatalf("poll interval from env: %v", cfg.PollInterval)
	}
}
