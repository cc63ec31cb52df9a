package browser

import (
	"encoding/json"
	"errors"
	"sync"
)

// FakeEngine and friends let tests script browser behavior without a real
// browser. Every Page method records its call and then delegates to the
// matching hook func when one is set. Methods are safe to call from the
// monitoring goroutine while a test pokes at the same fake.
type FakeEngine struct {
	mu          sync.Mutex
	Sessions    []*FakeSession
	NextSession func() *FakeSession
	StartErr    error
}

func (f *FakeEngine) Start(opts StartOptions) (Session, error) {
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	var s *FakeSession
	if f.NextSession != nil {
		s = f.NextSession()
	} else {
		s = &FakeSession{}
	}
	f.mu.Lock()
	f.Sessions = append(f.Sessions, s)
	f.mu.Unlock()
	return s, nil
}

type FakeSession struct {
	mu           sync.Mutex
	Pages        []*FakePage
	NewPageFunc  func() *FakePage
	NewPageErr   error
	Disconnected bool
	Closed       bool
	StoragePath  string
}

func (s *FakeSession) NewPage() (Page, error) {
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	var p *FakePage
	if s.NewPageFunc != nil {
		p = s.NewPageFunc()
	} else {
		p = &FakePage{}
	}
	s.mu.Lock()
	s.Pages = append(s.Pages, p)
	s.mu.Unlock()
	return p, nil
}

func (s *FakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Disconnected && !s.Closed
}

func (s *FakeSession) Disconnect() {
	s.mu.Lock()
	s.Disconnected = true
	s.mu.Unlock()
}

func (s *FakeSession) StorageState(path string) error {
	s.mu.Lock()
	s.StoragePath = path
	s.mu.Unlock()
	return nil
}

func (s *FakeSession) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

func (s *FakeSession) WasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}

type FakePage struct {
	mu         sync.Mutex
	URLValue   string
	Gotos      []string
	Reloads    int
	Clicks     []string
	Fills      []string
	Waits      []string
	Evals      []string
	Fronted    int
	TimeoutMs  int
	ClosedFlag bool

	GotoFunc   func(url string) error
	ReloadFunc func() error
	ClickFunc  func(selector string) error
	FillFunc   func(selector, value string) error
	WaitFunc   func(selector string, timeoutMs int) error
	EvalFunc   func(js string) (json.RawMessage, error)
	EvalResult json.RawMessage
}

func (p *FakePage) Goto(url string) error {
	p.mu.Lock()
	p.Gotos = append(p.Gotos, url)
	p.URLValue = url
	fn := p.GotoFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(url)
	}
	return nil
}

func (p *FakePage) Reload() error {
	p.mu.Lock()
	p.Reloads++
	fn := p.ReloadFunc
	p.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (p *FakePage) Click(selector string) error {
	p.mu.Lock()
	p.Clicks = append(p.Clicks, selector)
	fn := p.ClickFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return nil
}

func (p *FakePage) Fill(selector string, value string) error {
	p.mu.Lock()
	p.Fills = append(p.Fills, selector+"="+value)
	fn := p.FillFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(selector, value)
	}
	return nil
}

func (p *FakePage) WaitForSelector(selector string, timeoutMs int) error {
	p.mu.Lock()
	p.Waits = append(p.Waits, selector)
	fn := p.WaitFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(selector, timeoutMs)
	}
	return nil
}

func (p *FakePage) WaitForLoad(timeoutMs int) error {
	return nil
}

func (p *FakePage) Eval(js string) (json.RawMessage, error) {
	p.mu.Lock()
	p.Evals = append(p.Evals, js)
	fn := p.EvalFunc
	result := p.EvalResult
	p.mu.Unlock()
	if fn != nil {
		return fn(js)
	}
	if result == nil {
		return nil, errors.New("no eval result")
	}
	return result, nil
}

func (p *FakePage) BringToFront() error {
	p.mu.Lock()
	p.Fronted++
	p.mu.Unlock()
	return nil
}

func (p *FakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ClosedFlag
}

func (p *FakePage) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.URLValue, nil
}

func (p *FakePage) SetTimeout(ms int) error {
	p.mu.Lock()
	p.TimeoutMs = ms
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	p.ClosedFlag = true
	p.mu.Unlock()
	return nil
}

func (p *FakePage) FrontedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Fronted
}
