package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"kiosk/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "kiosk-1.log")
	second := filepath.Join(dir, "kiosk-2.log")
	testsupport.WriteFile(t, first, []byte("one"))
	testsupport.WriteFile(t, second, []byte("two"))

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "kiosk.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "two" {
		t.Fatalf("pointer resolves to %q, want the newest log", data)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosk.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}
}

func TestBuildAnnouncerUsesCommandSynthesizer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Greeting.Synthesizer = "command"
	cfg.Greeting.TTSCommand = []string{"espeak", "--stdout"}
	if announcer := buildAnnouncer(cfg, nil, nil); announcer == nil {
		t.Fatal("expected an announcer")
	}
}
