package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
	"github.com/patrickjm/orderwatch/internal/portal"
)

// Reason records why a session stopped running.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonStopped Reason = "stopped"
	ReasonClosed  Reason = "window-closed"
	ReasonFailed  Reason = "failed"
)

const (
	navAttempts          = 3
	navBackoff           = 2 * time.Second
	maxConsecutiveErrors = 5
	healthProbeJS        = "1+1"
)

var errWindowClosed = errors.New("monitored window closed")

// Sink receives newly discovered orders. During steady-state polling it is
// invoked with exactly one order per call. A session relaunched after a crash
// clears its seen set and may re-deliver, so sinks must upsert by order ID.
type Sink func(orders []portal.Order) error

type StartResult struct {
	Success    bool   `json:"success"`
	Monitoring bool   `json:"monitoring"`
	Existing   bool   `json:"existing"`
	Error      string `json:"error,omitempty"`
}

// Session is the singleton monitoring state machine. It exclusively owns the
// browser/page pair and the seen-ID set. One Start, one poll loop; Status and
// Stop from other goroutines only read flags or tear down. It is not built
// for concurrent Starts, mirroring the single authenticated session the
// portal allows.
type Session struct {
	engine browser.Engine
	cfg    config.Config
	log    *slog.Logger

	mu     sync.Mutex
	sess   browser.Session
	page   browser.Page
	active atomic.Bool
	seen   mapset.Set[string]
	creds  portal.Credentials
	sink   Sink
	reason Reason
	done   chan struct{}

	sleep func(time.Duration)
}

func New(engine browser.Engine, cfg config.Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		engine: engine,
		cfg:    cfg,
		log:    log,
		seen:   mapset.NewSet[string](),
		sleep:  time.Sleep,
	}
}

// Start authenticates and launches the monitoring loop. If a healthy session
// is already running it brings the window to front and reports Existing=true
// instead of launching a second browser. Login failure aborts the start and
// tears everything down; nothing later in the lifecycle propagates here.
func (s *Session) Start(creds portal.Credentials, sink Sink) StartResult {
	if s.active.Load() {
		if s.healthy() {
			_ = s.currentPage().BringToFront()
			return StartResult{Success: true, Monitoring: true, Existing: true}
		}
		// the degraded loop must fully exit before a replacement launches
		s.active.Store(false)
		s.teardown()
		s.Wait()
	}

	s.teardown()
	if err := s.launch(); err != nil {
		s.teardown()
		return StartResult{Error: fmt.Sprintf("launch browser: %v", err)}
	}
	if err := s.controller().Login(creds); err != nil {
		s.teardown()
		return StartResult{Error: err.Error()}
	}

	s.mu.Lock()
	s.creds = creds
	s.sink = sink
	s.seen = mapset.NewSet[string]()
	s.reason = ReasonNone
	s.done = make(chan struct{})
	s.mu.Unlock()
	s.active.Store(true)
	go s.run()

	return StartResult{Success: true, Monitoring: true}
}

// Stop flips the active flag and tears the browser down. In-flight page
// operations fail as a consequence and the loop exits at its next check.
func (s *Session) Stop() {
	s.shutdown(ReasonStopped)
}

// Status is true only while the browser is connected, the page is open and a
// trivial script still evaluates. Connected and not-closed can both hold
// while the underlying tab is unresponsive, hence the probe. Detecting a
// user-closed window here forces a full stop with the distinct closed reason.
func (s *Session) Status() bool {
	if !s.active.Load() {
		return false
	}
	if s.windowClosed() {
		s.log.Warn("monitored window was closed externally")
		s.shutdown(ReasonClosed)
		return false
	}
	return s.healthy()
}

func (s *Session) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) SeenCount() int {
	s.mu.Lock()
	set := s.seen
	s.mu.Unlock()
	if set == nil {
		return 0
	}
	return set.Cardinality()
}

// Wait blocks until the monitoring loop has exited. Mostly useful to the
// foreground monitor command and tests.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) run() {
	defer close(s.done)
	s.initialSweep()
	s.pollLoop()
}

// initialSweep processes every order already on the list once, right after
// login. A single bad row never aborts the sweep.
func (s *Session) initialSweep() {
	if !s.active.Load() {
		return
	}
	if err := s.gotoList(); err != nil {
		s.log.Warn("initial sweep: open order list", "err", err)
		return
	}
	page := s.currentPage()
	if page == nil {
		return
	}
	rows, err := portal.ReadOrderList(page, s.cfg.Portal, s.cfg.NavTimeout)
	if err != nil {
		if !errors.Is(err, portal.ErrNoOrders) {
			s.log.Warn("initial sweep: read order list", "err", err)
		}
		return
	}
	s.log.Info("initial sweep", "orders", len(rows))
	for _, row := range rows {
		if !s.active.Load() {
			return
		}
		s.processRow(row)
	}
}

func (s *Session) pollLoop() {
	consecutive := 0
	for s.active.Load() {
		err := s.pollOnce()
		if err == nil {
			consecutive = 0
			continue
		}
		if !s.active.Load() {
			// teardown races in-flight page work; not a real failure
			return
		}
		if errors.Is(err, errWindowClosed) {
			s.log.Warn("monitored window was closed externally")
			s.shutdown(ReasonClosed)
			return
		}
		consecutive++
		s.log.Warn("poll cycle failed", "consecutive", consecutive, "err", err)
		if consecutive >= maxConsecutiveErrors {
			if err := s.relaunch(); err != nil {
				s.log.Error("relaunch after repeated failures", "err", err)
				s.shutdown(ReasonFailed)
				return
			}
			consecutive = 0
			continue
		}
		s.sleep(s.cfg.ErrorBackoff)
	}
}

func (s *Session) pollOnce() error {
	if !s.active.Load() {
		return nil
	}
	if !s.healthy() {
		if s.windowClosed() {
			return errWindowClosed
		}
		if err := s.rebuild(); err != nil {
			return fmt.Errorf("rebuild session: %w", err)
		}
	}

	if err := s.controller().EnsureSession(s.creds); err != nil {
		return err
	}

	if err := s.gotoList(); err != nil {
		return err
	}

	page := s.currentPage()
	if page == nil {
		return errors.New("no page")
	}
	rows, err := portal.ReadOrderList(page, s.cfg.Portal, s.cfg.NavTimeout)
	if err != nil && !errors.Is(err, portal.ErrNoOrders) {
		return err
	}

	unseen := rows[:0:0]
	for _, row := range rows {
		if !s.seen.Contains(row.OrderID) {
			unseen = append(unseen, row)
		}
	}
	sortNewestFirst(unseen)

	for _, row := range unseen {
		if !s.active.Load() {
			return nil
		}
		s.processRow(row)
	}

	if len(unseen) == 0 {
		s.sleep(s.cfg.PollInterval)
	}

	// best-effort refresh so the next read sees current rows
	if err := page.Reload(); err != nil {
		s.log.Debug("list reload failed", "err", err)
	}
	return nil
}

// processRow opens one order, extracts it, emits it, and returns to the list.
// Failures are logged and the row skipped; the list navigation itself is
// retried so later rows still get processed.
func (s *Session) processRow(row portal.ListRow) {
	err := retry(navAttempts, navBackoff, s.sleep, func() error {
		return s.openOrder(row)
	})
	if err != nil {
		s.log.Warn("open order", "order", row.OrderID, "err", err)
		s.backToList()
		return
	}

	page := s.currentPage()
	if page == nil {
		return
	}
	order, ok, err := portal.ExtractOrderDetail(page, s.cfg.Portal, s.cfg.NavTimeout)
	if err != nil {
		s.log.Warn("extract order", "order", row.OrderID, "err", err)
		s.backToList()
		return
	}
	if !ok {
		s.log.Warn("order detail without resolvable id, skipping", "row", row.OrderID)
		s.backToList()
		return
	}
	if order.Status == "" {
		order.Status = row.Status
	}
	if order.OrderTime == "" {
		order.OrderTime = row.OrderTime
	}

	s.seen.Add(order.OrderID)
	s.emit(order)
	s.backToList()
}

func (s *Session) emit(order portal.Order) {
	if s.sink == nil {
		return
	}
	if err := s.sink([]portal.Order{order}); err != nil {
		s.log.Error("emit order", "order", order.OrderID, "err", err)
		return
	}
	s.log.Info("new order", "order", order.OrderID, "total", order.TotalAmount)
}

func (s *Session) openOrder(row portal.ListRow) error {
	page := s.currentPage()
	if page == nil {
		return errors.New("no page")
	}
	return page.Click(fmt.Sprintf(s.cfg.Portal.OrderLinkTemplate, row.OrderID))
}

func (s *Session) gotoList() error {
	return retry(navAttempts, navBackoff, s.sleep, func() error {
		page := s.currentPage()
		if page == nil {
			return errors.New("no page")
		}
		return page.Goto(s.cfg.Portal.OrderListURL)
	})
}

func (s *Session) backToList() {
	if err := s.gotoList(); err != nil {
		s.log.Warn("return to order list", "err", err)
	}
}

func (s *Session) controller() portal.Controller {
	return portal.Controller{
		Page:      s.currentPage(),
		Cfg:       s.cfg.Portal,
		TimeoutMs: int(s.cfg.NavTimeout.Milliseconds()),
	}
}

func (s *Session) currentPage() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) healthy() bool {
	s.mu.Lock()
	sess, page := s.sess, s.page
	s.mu.Unlock()
	if sess == nil || !sess.Connected() {
		return false
	}
	if page == nil || page.IsClosed() {
		return false
	}
	_, err := page.Eval(healthProbeJS)
	return err == nil
}

// windowClosed distinguishes a page the user closed from a browser that died:
// the former is a terminal condition, the latter gets rebuilt.
func (s *Session) windowClosed() bool {
	s.mu.Lock()
	sess, page := s.sess, s.page
	s.mu.Unlock()
	return sess != nil && sess.Connected() && page != nil && page.IsClosed()
}

func (s *Session) launch() error {
	sess, err := s.engine.Start(browser.StartOptions{
		Browser:   s.cfg.Browser,
		Channel:   s.cfg.Channel,
		Headless:  s.cfg.Headless,
		StorageIn: storagePath(s.cfg),
	})
	if err != nil {
		return err
	}
	page, err := sess.NewPage()
	if err != nil {
		_ = sess.Close()
		return err
	}
	_ = page.SetTimeout(int(s.cfg.NavTimeout.Milliseconds()))
	s.mu.Lock()
	s.sess, s.page = sess, page
	s.mu.Unlock()
	return nil
}

// rebuild recovers from a lost resource. A still-connected browser gets a
// fresh page and re-login; a dead browser means a full relaunch, which also
// clears the seen set (the sink's upsert absorbs the re-emissions).
func (s *Session) rebuild() error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil || !sess.Connected() {
		return s.relaunch()
	}
	page, err := sess.NewPage()
	if err != nil {
		return s.relaunch()
	}
	_ = page.SetTimeout(int(s.cfg.NavTimeout.Milliseconds()))
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return s.controller().Login(s.creds)
}

func (s *Session) relaunch() error {
	if !s.active.Load() {
		return errors.New("monitoring stopped")
	}
	s.log.Info("relaunching browser")
	s.teardown()
	if err := s.launch(); err != nil {
		return err
	}
	if err := s.controller().Login(s.creds); err != nil {
		return err
	}
	s.mu.Lock()
	s.seen = mapset.NewSet[string]()
	s.mu.Unlock()
	return nil
}

func (s *Session) shutdown(r Reason) {
	s.active.Store(false)
	s.mu.Lock()
	s.reason = r
	s.mu.Unlock()
	s.teardown()
}

// teardown closes page then browser, swallowing errors, and unconditionally
// resets the handles and the seen set.
func (s *Session) teardown() {
	s.mu.Lock()
	sess, page, seen := s.sess, s.page, s.seen
	s.sess, s.page = nil, nil
	s.mu.Unlock()
	if page != nil {
		_ = page.Close()
	}
	if sess != nil {
		// keep cookies for the next launch so re-login is often a no-op
		if path := storagePath(s.cfg); path != "" {
			_ = sess.StorageState(path)
		}
		_ = sess.Close()
	}
	if seen != nil {
		seen.Clear()
	}
}

// sortNewestFirst orders rows by their displayed order time, newest first,
// keeping the original order for ties and unparseable times. The portal's
// display format is locale-bound, so parsing is best-effort with a
// lexicographic fallback (same-format timestamps compare correctly as text).
func sortNewestFirst(rows []portal.ListRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		ti, oki := parseDisplayTime(rows[i].OrderTime)
		tj, okj := parseDisplayTime(rows[j].OrderTime)
		if oki && okj {
			return ti.After(tj)
		}
		if oki != okj {
			return oki
		}
		return rows[i].OrderTime > rows[j].OrderTime
	})
}

// storagePath is the cookie-jar file under the data dir, shared by the
// monitoring session and one-shot scrapes.
func storagePath(cfg config.Config) string {
	if cfg.DataDir == "" {
		return ""
	}
	return filepath.Join(cfg.DataDir, "storage.json")
}

var displayTimeLayouts = []string{
	"2006/01/02 15:04",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02 15:04",
}

func parseDisplayTime(v string) (time.Time, bool) {
	for _, layout := range displayTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
