package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, file, and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	AudioDir    string `toml:"audio_dir"`
	LogDir      string `toml:"log_dir"`
	StateFile   string `toml:"state_file"`
	DirectoryDB string `toml:"directory_db"`
	HistoryDB   string `toml:"history_db"`
	APIBind     string `toml:"api_bind"`
}

// Reader contains configuration for the card reader input channel.
type Reader struct {
	Enabled      bool     `toml:"enabled"`
	Command      []string `toml:"command"`
	ReadTimeout  int      `toml:"read_timeout"`
	RetryDelayMS int      `toml:"retry_delay_ms"`
	Hotplug      bool     `toml:"hotplug"`
	VendorID     string   `toml:"vendor_id"`
	ProductID    string   `toml:"product_id"`
	TouchSound   string   `toml:"touch_sound"`
}

// Console contains configuration for manual number entry on stdin.
type Console struct {
	Enabled bool `toml:"enabled"`
}

// Greeting contains configuration for speech synthesis, playback, and the
// phrases spoken on enter/exit.
type Greeting struct {
	Locale           string   `toml:"locale"`
	Synthesizer      string   `toml:"synthesizer"`
	TTSURL           string   `toml:"tts_url"`
	TTSCommand       []string `toml:"tts_command"`
	PlayerCommand    []string `toml:"player_command"`
	SynthesisTimeout int      `toml:"synthesis_timeout"`
	PlaybackTimeout  int      `toml:"playback_timeout"`
	AnonymousEnter   string   `toml:"anonymous_enter"`
	AnonymousExit    string   `toml:"anonymous_exit"`
	PersonalEnter    string   `toml:"personal_enter"`
	PersonalExit     string   `toml:"personal_exit"`
}

// Pipeline contains configuration for the coordinator loop.
type Pipeline struct {
	DebounceSeconds int `toml:"debounce_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	StoreFailures  bool   `toml:"store_failures"`
	ReaderFaults   bool   `toml:"reader_faults"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the kiosk daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: data, audio, and log locations plus the API bind address
//   - Reader: card reader helper command, timeouts, and hotplug matching
//   - Console: manual number entry on stdin
//   - Greeting: speech synthesis, playback, and phrase templates
//   - Pipeline: coordinator tuning
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Reader        Reader        `toml:"reader"`
	Console       Console       `toml:"console"`
	Greeting      Greeting      `toml:"greeting"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/kiosk/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first so environment overrides can live next to the kiosk data.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("kiosk.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.AudioDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.StateFile),
		filepath.Dir(c.Paths.DirectoryDB),
		filepath.Dir(c.Paths.HistoryDB),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ReaderRetryDelay returns the pause between card reader attempts after a fault.
func (c *Config) ReaderRetryDelay() time.Duration {
	return time.Duration(c.Reader.RetryDelayMS) * time.Millisecond
}

// ReaderReadTimeout bounds a single card read. Zero means no bound.
func (c *Config) ReaderReadTimeout() time.Duration {
	return time.Duration(c.Reader.ReadTimeout) * time.Second
}

// SynthesisTimeout bounds a single speech synthesis request.
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.Greeting.SynthesisTimeout) * time.Second
}

// PlaybackTimeout bounds a single greeting playback.
func (c *Config) PlaybackTimeout() time.Duration {
	return time.Duration(c.Greeting.PlaybackTimeout) * time.Second
}

// DebounceWindow returns the duplicate suppression window. Zero disables it.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Pipeline.DebounceSeconds) * time.Second
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "kiosk.sock")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "kiosk.lock")
}

// PIDPath returns where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "kiosk.pid")
}

// PlayerBinary returns the executable used for audio playback.
func (c *Config) PlayerBinary() string {
	if len(c.Greeting.PlayerCommand) == 0 {
		return ""
	}
	return c.Greeting.PlayerCommand[0]
}

// ReaderBinary returns the executable used to poll the card reader.
func (c *Config) ReaderBinary() string {
	if len(c.Reader.Command) == 0 {
		return ""
	}
	return c.Reader.Command[0]
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
