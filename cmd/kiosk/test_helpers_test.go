package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kiosk/internal/config"
	"kiosk/internal/daemon"
	"kiosk/internal/directory"
	"kiosk/internal/history"
	"kiosk/internal/ipc"
	"kiosk/internal/logging"
	"kiosk/internal/presence"
	"kiosk/internal/testsupport"
)

type countingAnnouncer struct {
	mu    sync.Mutex
	count int
}

func (a *countingAnnouncer) Announce(context.Context, directory.Profile, presence.ToggleResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	return nil
}

func (a *countingAnnouncer) Chime(context.Context) error { return nil }

func (a *countingAnnouncer) announced() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	announcer  *countingAnnouncer
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T, withDaemon bool) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg.Greeting.Synthesizer = "command"
	cfg.Greeting.TTSCommand = []string{"true"}

	configPath := filepath.Join(homeDir, ".config", "kiosk", "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
	if !withDaemon {
		return env
	}

	ctx, cancel := context.WithCancel(context.Background())
	store, err := presence.Open(cfg.Paths.StateFile)
	if err != nil {
		t.Fatalf("presence.Open: %v", err)
	}
	dir, err := directory.OpenSQLite(ctx, cfg.Paths.DirectoryDB)
	if err != nil {
		t.Fatalf("directory.OpenSQLite: %v", err)
	}
	hist, err := history.Open(ctx, cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}

	env.announcer = &countingAnnouncer{}
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     store,
		Directory: dir,
		History:   hist,
		Announcer: env.announcer,
		Logger:    logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	env.daemon = d

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runCLI(t, args, e.socketPath, e.configPath)
	return out, err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
audio_dir = %q
log_dir = %q
state_file = %q
directory_db = %q
history_db = %q
api_bind = %q

[reader]
enabled = false
hotplug = false

[console]
enabled = false

[greeting]
synthesizer = "command"
tts_command = ["true"]
`,
		cfg.Paths.DataDir,
		cfg.Paths.AudioDir,
		cfg.Paths.LogDir,
		cfg.Paths.StateFile,
		cfg.Paths.DirectoryDB,
		cfg.Paths.HistoryDB,
		cfg.Paths.APIBind,
	)
	testsupport.WriteFile(t, path, []byte(content))
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
