package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"time"
)

type Info struct {
	PID           int       `json:"pid"`
	Socket        string    `json:"socket"`
	StartedAt     time.Time `json:"started_at"`
	BinaryPath    string    `json:"binary_path,omitempty"`
	BinaryModTime time.Time `json:"binary_mod_time,omitempty"`
}

// Manager spawns and tracks the single background daemon under the data dir.
type Manager struct {
	DataDir    string
	BinaryPath string
}

func (m Manager) SocketPath() string {
	return filepath.Join(m.DataDir, "daemon.sock")
}

func (m Manager) InfoPath() string {
	return filepath.Join(m.DataDir, "daemon.json")
}

func (m Manager) LoadInfo() (Info, error) {
	b, err := os.ReadFile(m.InfoPath())
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return Info{}, err
	}
	return info, nil
}

func (m Manager) IsRunning() (bool, Info, error) {
	info, err := m.LoadInfo()
	if err != nil {
		if os.IsNotExist(err) {
			return false, Info{}, nil
		}
		return false, Info{}, err
	}
	if !processAlive(info.PID) {
		_ = m.cleanupStale()
		return false, Info{}, nil
	}
	if !socketAlive(info.Socket) {
		_ = m.cleanupStale()
		return false, Info{}, nil
	}
	if m.binaryMismatch(info) {
		_ = m.Shutdown()
		_ = m.cleanupStale()
		return false, Info{}, nil
	}
	return true, info, nil
}

func (m Manager) Start() error {
	running, _, err := m.IsRunning()
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	if m.BinaryPath == "" {
		path, err := os.Executable()
		if err != nil {
			return err
		}
		m.BinaryPath = path
	}
	cmd := exec.Command(m.BinaryPath, "--data-dir", m.DataDir, "serve")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if socketAlive(m.SocketPath()) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("daemon did not start")
}

// Shutdown asks the daemon process to exit entirely (as opposed to
// StopMonitoring, which only stops the browser session).
func (m Manager) Shutdown() error {
	client, err := NewClient(m.SocketPath())
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Stop()
}

func (m Manager) cleanupStale() error {
	_ = os.Remove(m.SocketPath())
	_ = os.Remove(m.InfoPath())
	return nil
}

func (m Manager) binaryMismatch(info Info) bool {
	path, modTime, err := CurrentBinaryInfo()
	if err != nil {
		return false
	}
	if info.BinaryPath == "" || info.BinaryModTime.IsZero() {
		return false
	}
	if info.BinaryPath != path {
		return true
	}
	return !info.BinaryModTime.Equal(modTime)
}

func socketAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}

func CurrentBinaryInfo() (string, time.Time, error) {
	path, err := os.Executable()
	if err != nil {
		return "", time.Time{}, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return path, time.Time{}, err
	}
	return path, stat.ModTime().UTC(), nil
}

func EnsureDataDir(path string) error {
	if path == "" {
		return errors.New("data dir required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
