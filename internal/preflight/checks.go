package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"kiosk/internal/config"
	"kiosk/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFile verifies that a readable regular file exists at path.
func CheckFile(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSynthesizer requests a short phrase from the HTTP speech endpoint.
func CheckSynthesizer(ctx context.Context, template, locale string) Result {
	const name = "Speech synthesizer"

	template = strings.TrimSpace(template)
	if template == "" {
		return Result{Name: name, Detail: "missing tts_url"}
	}
	target := strings.NewReplacer(
		"{text}", url.QueryEscape("test"),
		"{lang}", url.QueryEscape(locale),
	).Replace(template)

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckSystemDeps evaluates the external programs for the given config. Both
// the daemon and the CLI status command use it.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Player",
			Command:     cfg.PlayerBinary(),
			Description: "Required for greeting playback",
			VersionArgs: []string{"--version"},
		},
	}
	if cfg.Reader.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "Reader helper",
			Command:     cfg.ReaderBinary(),
			Description: "Required for card reading",
			VersionArgs: []string{"-h"},
		})
	}
	if cfg.Greeting.Synthesizer == "command" && len(cfg.Greeting.TTSCommand) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "Speech command",
			Command:     cfg.Greeting.TTSCommand[0],
			Description: "Required to synthesize uncached greetings",
		})
	}
	return deps.CheckBinaries(ctx, requirements)
}
