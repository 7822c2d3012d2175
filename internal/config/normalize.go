package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeReader(); err != nil {
		return err
	}
	c.normalizeGreeting()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AudioDir) == "" {
		c.Paths.AudioDir = defaultAudioDir
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	files := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.state_file", &c.Paths.StateFile, defaultStateFileName},
		{"paths.directory_db", &c.Paths.DirectoryDB, defaultDirectoryDBName},
		{"paths.history_db", &c.Paths.HistoryDB, defaultHistoryDBName},
	}
	for _, f := range files {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = filepath.Join(c.Paths.DataDir, f.fallback)
		}
		if *f.value, err = expandPath(*f.value); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}

	if value, ok := os.LookupEnv(envAPIBind); ok {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeReader() error {
	if value, ok := os.LookupEnv(envTestMode); ok {
		if enabled, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil && enabled {
			c.Reader.Enabled = false
		}
	}
	c.Reader.Command = trimArgs(c.Reader.Command)
	if len(c.Reader.Command) == 0 {
		c.Reader.Command = []string{defaultReaderBinary}
	}
	if c.Reader.RetryDelayMS <= 0 {
		c.Reader.RetryDelayMS = defaultReaderRetryDelayMS
	}
	c.Reader.VendorID = strings.ToLower(strings.TrimSpace(c.Reader.VendorID))
	c.Reader.ProductID = strings.ToLower(strings.TrimSpace(c.Reader.ProductID))
	if strings.TrimSpace(c.Reader.TouchSound) != "" {
		expanded, err := expandPath(c.Reader.TouchSound)
		if err != nil {
			return fmt.Errorf("reader.touch_sound: %w", err)
		}
		c.Reader.TouchSound = expanded
	}
	return nil
}

func (c *Config) normalizeGreeting() {
	c.Greeting.Locale = strings.TrimSpace(c.Greeting.Locale)
	if c.Greeting.Locale == "" {
		c.Greeting.Locale = defaultGreetingLocale
	}
	c.Greeting.Synthesizer = strings.ToLower(strings.TrimSpace(c.Greeting.Synthesizer))
	if c.Greeting.Synthesizer == "" {
		c.Greeting.Synthesizer = defaultSynthesizer
	}
	c.Greeting.TTSURL = strings.TrimSpace(c.Greeting.TTSURL)
	c.Greeting.TTSCommand = trimArgs(c.Greeting.TTSCommand)
	c.Greeting.PlayerCommand = trimArgs(c.Greeting.PlayerCommand)
	if len(c.Greeting.PlayerCommand) == 0 {
		c.Greeting.PlayerCommand = []string{defaultPlayerBinary, "-q"}
	}
	if c.Greeting.SynthesisTimeout <= 0 {
		c.Greeting.SynthesisTimeout = defaultSynthesisTimeout
	}
	if c.Greeting.PlaybackTimeout <= 0 {
		c.Greeting.PlaybackTimeout = defaultPlaybackTimeout
	}
	phrases := []struct {
		value    *string
		fallback string
	}{
		{&c.Greeting.AnonymousEnter, defaultAnonymousEnter},
		{&c.Greeting.AnonymousExit, defaultAnonymousExit},
		{&c.Greeting.PersonalEnter, defaultPersonalEnter},
		{&c.Greeting.PersonalExit, defaultPersonalExit},
	}
	for _, p := range phrases {
		*p.value = strings.TrimSpace(*p.value)
		if *p.value == "" {
			*p.value = p.fallback
		}
	}
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv(envNtfyTopic); ok && strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
