package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kiosk/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "kiosk.pid")
	testsupport.WriteFile(t, valid, []byte("4242\n"))
	pid, err := ReadPID(valid)
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}

	garbage := filepath.Join(dir, "bad.pid")
	testsupport.WriteFile(t, garbage, []byte("not-a-pid"))
	if _, err := ReadPID(garbage); err == nil {
		t.Fatal("expected error for malformed pid file")
	}

	if _, err := ReadPID(filepath.Join(dir, "missing.pid")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestProcessInfoWithoutSocket(t *testing.T) {
	alive, pid, err := ProcessInfo(filepath.Join(t.TempDir(), "kiosk.sock"))
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if alive || pid != 0 {
		t.Fatalf("expected no daemon, got alive=%v pid=%d", alive, pid)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := Stop(cfg, 100*time.Millisecond); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	dir := t.TempDir()
	if err := ForceKillProcess(filepath.Join(dir, "kiosk.pid"), "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if err := ForceKillProcess(filepath.Join(dir, "kiosk.pid"), "", 0); err == nil {
		t.Fatal("expected error for unknown pid")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Greeting.Synthesizer = "command"
	cfg.Greeting.TTSCommand = []string{"espeak"}

	snapshot, err := BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Online || snapshot.Status.Running {
		t.Fatal("expected offline snapshot")
	}
	if snapshot.Status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q", snapshot.Status.LockFilePath)
	}
	if len(snapshot.Checks) == 0 {
		t.Fatal("expected offline preflight checks")
	}
	var player bool
	for _, dep := range snapshot.Status.Dependencies {
		if dep.Command == "mpg123" {
			player = dep.Available
		}
	}
	if !player {
		t.Fatalf("expected stubbed player to be available: %+v", snapshot.Status.Dependencies)
	}
}
