package preflight

import (
	"context"
	"path/filepath"

	"kiosk/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Audio cache", cfg.Paths.AudioDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("State directory", filepath.Dir(cfg.Paths.StateFile)),
	}

	if cfg.Greeting.Synthesizer == "http" {
		results = append(results, CheckSynthesizer(ctx, cfg.Greeting.TTSURL, cfg.Greeting.Locale))
	}

	if cfg.Reader.Enabled {
		results = append(results, CheckFile("Touch sound", cfg.Reader.TouchSound))
		probe := ProbeReader(defaultSysfsRoot, cfg.Reader.VendorID, cfg.Reader.ProductID)
		results = append(results, Result{Name: "Card reader", Passed: probe.Detected, Detail: probe.Detail()})
	}

	return results
}
