package app

import (
	"testing"
	"time"

	"github.com/patrickjm/orderwatch/internal/config"
)

func TestApplyFlagsHeadlessConflict(t *testing.T) {
	cfg := config.Default()
	err := applyFlags(&cfg, GlobalFlags{Headless: true, Headed: true})
	if err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestApplyFlagsOverrides(t *testing.T) {
	cfg := config.Default()
	flags := GlobalFlags{
		Browser:  "firefox",
		Channel:  "chrome",
		Headed:   true,
		Interval: "10s",
		Timeout:  "45s",
	}
	if err := applyFlags(&cfg, flags); err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if cfg.Browser != "firefox" || cfg.Channel != "chrome" {
		t.Fatalf("browser flags not applied: %+v", cfg)
	}
	if cfg.Headless {
		t.Fatalf("expected headed mode")
	}
	if cfg.PollInterval != 10*time.Second || cfg.NavTimeout != 45*time.Second {
		t.Fatalf("durations not applied: %v %v", cfg.PollInterval, cfg.NavTimeout)
	}
}

func TestApplyFlagsBadDuration(t *testing.T) {
	cfg := config.Default()
	if err := applyFlags(&cfg, GlobalFlags{Interval: "fast"}); err == nil {
		t.Fatalf("expected invalid interval error")
	}
	if err := applyFlags(&cfg, GlobalFlags{Timeout: "later"}); err == nil {
		t.Fatalf("expected invalid timeout error")
	}
}

func TestCredentialsFromFlag(t *testing.T) {
	creds, err := credentials(GlobalFlags{Password: "hunter2"}, "shop@example.com")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.Email != "shop@example.com" || creds.Password != "hunter2" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("ORDERWATCH_PASSWORD", "secret")
	creds, err := credentials(GlobalFlags{}, "shop@example.com")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if creds.Password != "secret" {
		t.Fatalf("expected env password, got %q", creds.Password)
	}
}

func TestCredentialsMissing(t *testing.T) {
	t.Setenv("ORDERWATCH_PASSWORD", "")
	if _, err := credentials(GlobalFlags{}, "shop@example.com"); err == nil {
		t.Fatalf("expected missing password error")
	}
	if _, err := credentials(GlobalFlags{Password: "pw"}, ""); err == nil {
		t.Fatalf("expected missing email error")
	}
}
