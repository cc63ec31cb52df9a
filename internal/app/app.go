package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
	"github.com/patrickjm/orderwatch/internal/daemon"
	"github.com/patrickjm/orderwatch/internal/monitor"
	"github.com/patrickjm/orderwatch/internal/portal"
	"github.com/patrickjm/orderwatch/internal/store"
)

type GlobalFlags struct {
	DataDir  string
	JSON     bool
	Quiet    bool
	NoStart  bool
	Browser  string
	Channel  string
	Headless bool
	Headed   bool
	Interval string
	Timeout  string
	Password string
}

type App struct {
	Out io.Writer
	Err io.Writer
}

const (
	exitSuccess  = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

func (a App) prepare(flags GlobalFlags) (config.Config, daemon.Manager, error) {
	cfg, err := config.Load(flags.DataDir)
	if err != nil {
		return config.Config{}, daemon.Manager{}, err
	}
	if err := applyFlags(&cfg, flags); err != nil {
		return config.Config{}, daemon.Manager{}, err
	}
	if err := daemon.EnsureDataDir(cfg.DataDir); err != nil {
		return config.Config{}, daemon.Manager{}, err
	}
	return cfg, daemon.Manager{DataDir: cfg.DataDir}, nil
}

func applyFlags(cfg *config.Config, flags GlobalFlags) error {
	if flags.Browser != "" {
		cfg.Browser = flags.Browser
	}
	if flags.Channel != "" {
		cfg.Channel = flags.Channel
	}
	if flags.Headless && flags.Headed {
		return errors.New("cannot set both --headless and --headed")
	}
	if flags.Headless {
		cfg.Headless = true
	}
	if flags.Headed {
		cfg.Headless = false
	}
	if strings.TrimSpace(flags.Interval) != "" {
		d, err := time.ParseDuration(flags.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval: %w", err)
		}
		cfg.PollInterval = d
	}
	if strings.TrimSpace(flags.Timeout) != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.NavTimeout = d
	}
	return nil
}

func credentials(flags GlobalFlags, email string) (portal.Credentials, error) {
	if email == "" {
		return portal.Credentials{}, errors.New("email required")
	}
	password := flags.Password
	if password == "" {
		password = os.Getenv("ORDERWATCH_PASSWORD")
	}
	if password == "" {
		return portal.Credentials{}, errors.New("password required (--password or ORDERWATCH_PASSWORD)")
	}
	return portal.Credentials{Email: email, Password: password}, nil
}

func dbPath(cfg config.Config) string {
	return filepath.Join(cfg.DataDir, "orders.db")
}

func (a App) runInstall(flags GlobalFlags) int {
	browsers := []string{}
	if flags.Browser != "" {
		browsers = append(browsers, flags.Browser)
	}
	opts := &playwright.RunOptions{}
	if len(browsers) > 0 {
		opts.Browsers = browsers
	}
	if err := playwright.Install(opts); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		if len(browsers) == 0 {
			fmt.Fprintln(a.Out, "Playwright installed")
		} else {
			fmt.Fprintf(a.Out, "Playwright installed: %s\n", strings.Join(browsers, ", "))
		}
	}
	return exitSuccess
}

func (a App) runDoctor(cfg config.Config, flags GlobalFlags) int {
	type result struct {
		DataDirWritable bool   `json:"data_dir_writable"`
		DataDir         string `json:"data_dir"`
		PlaywrightOK    bool   `json:"playwright_ok"`
		DatabaseOK      bool   `json:"database_ok"`
		BrowsersPath    string `json:"browsers_path"`
	}
	res := result{DataDir: cfg.DataDir, BrowsersPath: os.Getenv("PLAYWRIGHT_BROWSERS_PATH")}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err == nil {
		res.DataDirWritable = true
	}
	if pw, err := playwright.Run(); err == nil {
		res.PlaywrightOK = true
		pw.Stop()
	}
	if st, err := store.Open(dbPath(cfg)); err == nil {
		res.DatabaseOK = true
		st.Close()
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "data_dir=%s\n", res.DataDir)
	fmt.Fprintf(a.Out, "data_dir_writable=%t\n", res.DataDirWritable)
	fmt.Fprintf(a.Out, "playwright_ok=%t\n", res.PlaywrightOK)
	fmt.Fprintf(a.Out, "database_ok=%t\n", res.DatabaseOK)
	if res.BrowsersPath != "" {
		fmt.Fprintf(a.Out, "browsers_path=%s\n", res.BrowsersPath)
	}
	return exitSuccess
}

func (a App) runServe(cfg config.Config) int {
	log := slog.New(slog.NewJSONHandler(a.Err, nil))
	socket := filepath.Join(cfg.DataDir, "daemon.sock")
	info := daemon.Info{PID: os.Getpid(), Socket: socket, StartedAt: daemon.NowUTC()}
	if path, modTime, err := daemon.CurrentBinaryInfo(); err == nil {
		info.BinaryPath = path
		info.BinaryModTime = modTime
	}
	if err := daemon.WriteInfo(filepath.Join(cfg.DataDir, "daemon.json"), info); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	st, err := store.Open(dbPath(cfg))
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer st.Close()
	engine := browser.PlaywrightEngine{}
	session := monitor.New(engine, cfg, log)
	server := daemon.NewServer(session, st, engine, cfg, log)
	if err := daemon.ServeDaemon(socket, server); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	return exitSuccess
}

func (a App) runStart(mgr daemon.Manager, flags GlobalFlags, email string) int {
	creds, err := credentials(flags, email)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	client, err := a.connect(mgr, flags.NoStart)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	result, err := client.StartMonitoring(creds.Email, creds.Password)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(a.Out, string(b))
	}
	if !result.Success {
		if !flags.JSON {
			fmt.Fprintln(a.Err, result.Error)
		}
		return exitFailure
	}
	if !flags.Quiet && !flags.JSON {
		if result.Existing {
			fmt.Fprintln(a.Out, "monitoring already active")
		} else {
			fmt.Fprintln(a.Out, "monitoring started")
		}
	}
	return exitSuccess
}

func (a App) runStopMonitoring(mgr daemon.Manager, flags GlobalFlags) int {
	client, err := daemon.NewClient(mgr.SocketPath())
	if err != nil {
		fmt.Fprintln(a.Err, "daemon is not running")
		return exitFailure
	}
	defer client.Close()
	if err := client.StopMonitoring(); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if !flags.Quiet {
		fmt.Fprintln(a.Out, "monitoring stopped")
	}
	return exitSuccess
}

func (a App) runStatus(mgr daemon.Manager, flags GlobalFlags) int {
	client, err := daemon.NewClient(mgr.SocketPath())
	if err != nil {
		if flags.JSON {
			fmt.Fprintln(a.Out, `{"monitoring":false}`)
		} else {
			fmt.Fprintln(a.Out, "monitoring=false")
		}
		return exitSuccess
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	fmt.Fprintf(a.Out, "monitoring=%t\n", status.Monitoring)
	if status.Reason != "" {
		fmt.Fprintf(a.Out, "reason=%s\n", status.Reason)
	}
	fmt.Fprintf(a.Out, "seen=%d\n", status.Seen)
	fmt.Fprintf(a.Out, "orders=%d\n", status.Orders)
	return exitSuccess
}

func (a App) runOrders(mgr daemon.Manager, flags GlobalFlags, undelivered bool) int {
	client, err := a.connect(mgr, flags.NoStart)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	records, err := client.Orders(undelivered)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if flags.JSON {
		b, _ := json.MarshalIndent(records, "", "  ")
		fmt.Fprintln(a.Out, string(b))
		return exitSuccess
	}
	for _, r := range records {
		marker := " "
		if r.Delivered {
			marker = "*"
		}
		fmt.Fprintf(a.Out, "%s %s\t%s\t¥%d\t%s\n", marker, r.OrderID, r.Status, r.TotalAmount, r.OrderTime)
	}
	return exitSuccess
}

func (a App) runDeliver(mgr daemon.Manager, flags GlobalFlags, orderID string) int {
	client, err := a.connect(mgr, flags.NoStart)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer client.Close()
	if err := client.MarkDelivered(orderID); err != nil {
		fmt.Fprintln(a.Err, err)
		return exitNotFound
	}
	if !flags.Quiet {
		fmt.Fprintf(a.Out, "delivered %s\n", orderID)
	}
	return exitSuccess
}

func (a App) runScrape(cfg config.Config, flags GlobalFlags, email string, save bool) int {
	creds, err := credentials(flags, email)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	log := slog.New(slog.NewTextHandler(a.Err, nil))
	orders, err := monitor.Scrape(browser.PlaywrightEngine{}, cfg, creds, log)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	if save {
		st, err := store.Open(dbPath(cfg))
		if err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
		defer st.Close()
		if err := st.UpsertOrders(orders); err != nil {
			fmt.Fprintln(a.Err, err)
			return exitFailure
		}
	}
	b, _ := json.MarshalIndent(orders, "", "  ")
	fmt.Fprintln(a.Out, string(b))
	return exitSuccess
}

func (a App) runMonitor(cfg config.Config, flags GlobalFlags, email string) int {
	creds, err := credentials(flags, email)
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitUsage
	}
	log := slog.New(slog.NewTextHandler(a.Err, nil))
	st, err := store.Open(dbPath(cfg))
	if err != nil {
		fmt.Fprintln(a.Err, err)
		return exitFailure
	}
	defer st.Close()

	session := monitor.New(browser.PlaywrightEngine{}, cfg, log)
	result := session.Start(creds, st.Sink())
	if !result.Success {
		fmt.Fprintln(a.Err, result.Error)
		return exitFailure
	}
	if !flags.Quiet {
		fmt.Fprintln(a.Out, "monitoring started, ctrl-c to stop")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		session.Wait()
		close(done)
	}()
	select {
	case <-sigs:
		session.Stop()
		<-done
	case <-done:
	}

	switch session.Reason() {
	case monitor.ReasonStopped, monitor.ReasonNone:
		return exitSuccess
	default:
		fmt.Fprintf(a.Err, "monitoring ended: %s\n", session.Reason())
		return exitFailure
	}
}

func (a App) connect(mgr daemon.Manager, noStart bool) (*daemon.Client, error) {
	running, _, err := mgr.IsRunning()
	if err != nil {
		return nil, err
	}
	if !running {
		if noStart {
			return nil, errors.New("daemon is not running")
		}
		if err := mgr.Start(); err != nil {
			return nil, err
		}
	}
	return daemon.NewClient(mgr.SocketPath())
}
