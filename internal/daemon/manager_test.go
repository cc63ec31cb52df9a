package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBinaryMismatch(t *testing.T) {
	path, modTime, err := CurrentBinaryInfo()
	if err != nil {
		t.Fatalf("current binary info: %v", err)
	}
	info := Info{BinaryPath: path, BinaryModTime: modTime}
	mgr := Manager{}
	if mgr.binaryMismatch(info) {
		t.Fatalf("expected no mismatch for current binary")
	}
	info.BinaryModTime = modTime.Add(-time.Minute)
	if !mgr.binaryMismatch(info) {
		t.Fatalf("expected mismatch for mod time")
	}
	info.BinaryPath = filepath.Join(os.TempDir(), "nonexistent-binary")
	info.BinaryModTime = modTime
	if !mgr.binaryMismatch(info) {
		t.Fatalf("expected mismatch for path")
	}
}

func TestIsRunningWithoutInfo(t *testing.T) {
	mgr := Manager{DataDir: t.TempDir()}
	running, _, err := mgr.IsRunning()
	if err != nil {
		t.Fatalf("is running: %v", err)
	}
	if running {
		t.Fatalf("expected not running without an info file")
	}
}

func TestIsRunningCleansStaleInfo(t *testing.T) {
	dir := t.TempDir()
	mgr := Manager{DataDir: dir}
	info := Info{PID: 999999999, Socket: mgr.SocketPath()}
	if err := WriteInfo(mgr.InfoPath(), info); err != nil {
		t.Fatalf("write info: %v", err)
	}
	running, _, err := mgr.IsRunning()
	if err != nil {
		t.Fatalf("is running: %v", err)
	}
	if running {
		t.Fatalf("expected stale daemon to be reported down")
	}
	if _, err := os.Stat(mgr.InfoPath()); !os.IsNotExist(err) {
		t.Fatalf("expected stale info file removed")
	}
}
