package browser

import "encoding/json"

type StartOptions struct {
	Browser   string
	Channel   string
	Headless  bool
	StorageIn string
}

type Engine interface {
	Start(opts StartOptions) (Session, error)
}

// Session wraps a launched browser plus its single context. Connected reports
// whether the underlying browser process is still reachable; it can be true
// while individual pages have already been closed by the user.
type Session interface {
	NewPage() (Page, error)
	Connected() bool
	StorageState(path string) error
	Close() error
}

type Page interface {
	Goto(url string) error
	Reload() error
	Click(selector string) error
	Fill(selector string, value string) error
	WaitForSelector(selector string, timeoutMs int) error
	WaitForLoad(timeoutMs int) error
	Eval(js string) (json.RawMessage, error)
	BringToFront() error
	IsClosed() bool
	URL() (string, error)
	SetTimeout(ms int) error
	Close() error
}
