package portal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
)

// LoginError is a portal-rejected login: bad credentials or an error banner
// after submit. It is fatal to a monitoring start, unlike transient
// navigation failures.
type LoginError struct {
	Banner string
}

func (e *LoginError) Error() string {
	if e.Banner != "" {
		return "portal login failed: " + e.Banner
	}
	return "portal login failed"
}

// Controller drives login and session-expiry recovery on the shared page. It
// never creates pages or contexts of its own.
type Controller struct {
	Page      browser.Page
	Cfg       config.Portal
	TimeoutMs int
}

// Login walks the portal's login UI: open the login page, switch to
// email/password mode, fill, submit, wait for the navigation to settle, then
// check for the locale-specific failure banner.
func (c Controller) Login(creds Credentials) error {
	if err := c.Page.Goto(c.Cfg.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if c.Cfg.EmailLoginButton != "" {
		// some portal revisions land directly on the form
		_ = c.Page.Click(c.Cfg.EmailLoginButton)
	}
	if err := c.Page.Fill(c.Cfg.EmailField, creds.Email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if err := c.Page.Fill(c.Cfg.PasswordField, creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := c.Page.Click(c.Cfg.SubmitButton); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := c.Page.WaitForLoad(c.TimeoutMs); err != nil {
		return fmt.Errorf("login navigation: %w", err)
	}
	banner, err := c.errorBanner()
	if err != nil {
		return fmt.Errorf("check login result: %w", err)
	}
	if banner != "" {
		return &LoginError{Banner: banner}
	}
	return nil
}

// EnsureSession cheaply checks whether the authenticated UI has reverted to
// the login affordance and replays Login if so.
func (c Controller) EnsureSession(creds Credentials) error {
	visible, err := c.loginEntryVisible()
	if err != nil {
		return fmt.Errorf("session check: %w", err)
	}
	if !visible {
		return nil
	}
	return c.Login(creds)
}

const loginBannerJS = `(opts) => {
  const needle = opts.errorText || "";
  if (!needle) return { banner: "" };
  for (const el of Array.from(document.querySelectorAll("p,div,span,li"))) {
    if (el.children.length > 0) continue;
    const t = (el.innerText || "").trim();
    if (t && t.includes(needle)) return { banner: t };
  }
  return { banner: (document.body.innerText || "").includes(needle) ? needle : "" };
}`

const loginEntryJS = `(opts) => {
  const needle = opts.entryText || "";
  if (!needle) return { loginVisible: false };
  const els = Array.from(document.querySelectorAll("a,button,[role=button]"));
  return { loginVisible: els.some(el => (el.innerText || "").includes(needle)) };
}`

func (c Controller) errorBanner() (string, error) {
	raw, err := c.Page.Eval(scriptWithArgs(loginBannerJS, map[string]any{
		"errorText": c.Cfg.LoginErrorText,
	}))
	if err != nil {
		return "", err
	}
	var res struct {
		Banner string `json:"banner"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Banner), nil
}

func (c Controller) loginEntryVisible() (bool, error) {
	raw, err := c.Page.Eval(scriptWithArgs(loginEntryJS, map[string]any{
		"entryText": c.Cfg.LoginEntryText,
	}))
	if err != nil {
		return false, err
	}
	var res struct {
		LoginVisible bool `json:"loginVisible"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, err
	}
	return res.LoginVisible, nil
}
