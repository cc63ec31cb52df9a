package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightEngine struct{}

func (p PlaywrightEngine) Start(opts StartOptions) (Session, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	bt, err := browserType(pw, opts.Browser)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	browser, err := bt.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.StorageIn != "" {
		if _, err := os.Stat(opts.StorageIn); err == nil {
			ctxOpts.StorageStatePath = playwright.String(opts.StorageIn)
		}
	}
	ctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, err
	}
	return &playwrightSession{pw: pw, browser: browser, ctx: ctx}, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	ctx     playwright.BrowserContext
}

func (s *playwrightSession) NewPage() (Page, error) {
	page, err := s.ctx.NewPage()
	if err != nil {
		return nil, err
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Connected() bool {
	if s.browser == nil {
		return false
	}
	return s.browser.IsConnected()
}

func (s *playwrightSession) StorageState(path string) error {
	_, err := s.ctx.StorageState(path)
	return err
}

func (s *playwrightSession) Close() error {
	if s.ctx != nil {
		_ = s.ctx.Close()
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
	return nil
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(url string) error {
	_, err := p.page.Goto(url)
	return err
}

func (p *playwrightPage) Reload() error {
	_, err := p.page.Reload()
	return err
}

func (p *playwrightPage) Click(selector string) error {
	if strings.HasPrefix(selector, "text=") {
		return p.clickByText(strings.TrimPrefix(selector, "text="))
	}
	return p.page.Click(selector)
}

func (p *playwrightPage) Fill(selector string, value string) error {
	return p.page.Fill(selector, value)
}

func (p *playwrightPage) WaitForSelector(selector string, timeoutMs int) error {
	opts := playwright.PageWaitForSelectorOptions{
		State: playwright.WaitForSelectorStateVisible,
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(float64(timeoutMs))
	}
	_, err := p.page.WaitForSelector(selector, opts)
	return err
}

func (p *playwrightPage) WaitForLoad(timeoutMs int) error {
	opts := playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateLoad,
	}
	if timeoutMs > 0 {
		opts.Timeout = playwright.Float(float64(timeoutMs))
	}
	return p.page.WaitForLoadState(opts)
}

func (p *playwrightPage) Eval(js string) (json.RawMessage, error) {
	v, err := p.page.Evaluate(js)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (p *playwrightPage) BringToFront() error {
	return p.page.BringToFront()
}

func (p *playwrightPage) IsClosed() bool {
	return p.page.IsClosed()
}

func (p *playwrightPage) URL() (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) SetTimeout(ms int) error {
	if ms <= 0 {
		return nil
	}
	p.page.SetDefaultTimeout(float64(ms))
	return nil
}

func (p *playwrightPage) Close() error {
	return p.page.Close()
}

func (p *playwrightPage) clickByText(text string) error {
	if err := p.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)}).Click(); err == nil {
		return nil
	}
	if err := p.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(false)}).Click(); err == nil {
		return nil
	}
	escaped := strings.ReplaceAll(text, "\"", "\\\"")
	selectors := []string{
		fmt.Sprintf("a:has-text(\"%s\")", escaped),
		fmt.Sprintf("button:has-text(\"%s\")", escaped),
		fmt.Sprintf("[role=button]:has-text(\"%s\")", escaped),
		fmt.Sprintf("label:has-text(\"%s\")", escaped),
	}
	for _, sel := range selectors {
		if err := p.page.Locator(sel).First().Click(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no match for text=%q", text)
}

func browserType(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case "chromium", "":
		return pw.Chromium, nil
	case "firefox":
		return pw.Firefox, nil
	case "webkit":
		return pw.WebKit, nil
	default:
		return nil, errors.New("unknown browser: " + name)
	}
}
