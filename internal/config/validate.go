package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateReader(); err != nil {
		return err
	}
	if err := c.validateGreeting(); err != nil {
		return err
	}
	if c.Pipeline.DebounceSeconds < 0 {
		return errors.New("pipeline.debounce_seconds must be >= 0")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateFile == c.Paths.DirectoryDB || c.Paths.StateFile == c.Paths.HistoryDB {
		return errors.New("paths.state_file must not share a path with the sqlite databases")
	}
	if c.Paths.DirectoryDB == c.Paths.HistoryDB {
		return errors.New("paths.directory_db and paths.history_db must differ")
	}
	return nil
}

func (c *Config) validateReader() error {
	if c.Reader.ReadTimeout < 0 {
		return errors.New("reader.read_timeout must be >= 0")
	}
	if !c.Reader.Hotplug {
		return nil
	}
	for key, value := range map[string]string{
		"reader.vendor_id":  c.Reader.VendorID,
		"reader.product_id": c.Reader.ProductID,
	} {
		if !isUSBID(value) {
			return fmt.Errorf("%s must be a 4 digit hex USB id, got %q", key, value)
		}
	}
	return nil
}

func (c *Config) validateGreeting() error {
	if _, err := language.Parse(c.Greeting.Locale); err != nil {
		return fmt.Errorf("greeting.locale: %w", err)
	}
	switch c.Greeting.Synthesizer {
	case synthesizerHTTP:
		if c.Greeting.TTSURL == "" {
			return errors.New("greeting.tts_url must be set when greeting.synthesizer is \"http\"")
		}
		if !strings.Contains(c.Greeting.TTSURL, "{text}") {
			return errors.New("greeting.tts_url must contain a {text} placeholder")
		}
	case synthesizerCommand:
		if len(c.Greeting.TTSCommand) == 0 {
			return errors.New("greeting.tts_command must be set when greeting.synthesizer is \"command\"")
		}
	default:
		return fmt.Errorf("greeting.synthesizer: unsupported value %q (use http or command)", c.Greeting.Synthesizer)
	}
	if !strings.Contains(c.Greeting.PersonalEnter, "{name}") || !strings.Contains(c.Greeting.PersonalExit, "{name}") {
		return errors.New("greeting.personal_enter and greeting.personal_exit must contain a {name} placeholder")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func isUSBID(value string) bool {
	if len(value) != 4 {
		return false
	}
	for _, r := range value {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
