package greeting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

const userAgent = "kiosk/1.0"

// HTTPSynthesizer fetches audio from a text-to-speech HTTP endpoint. The URL
// template may reference {text} and {lang}; both are query-escaped.
type HTTPSynthesizer struct {
	URLTemplate string
	Locale      string
	Client      *http.Client
}

// NewHTTPSynthesizer builds an HTTPSynthesizer with a bounded client.
func NewHTTPSynthesizer(urlTemplate, locale string, timeout time.Duration) *HTTPSynthesizer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSynthesizer{
		URLTemplate: urlTemplate,
		Locale:      locale,
		Client:      &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	endpoint := strings.NewReplacer(
		"{text}", url.QueryEscape(text),
		"{lang}", url.QueryEscape(s.Locale),
	).Replace(s.URLTemplate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "audio/mpeg, */*")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("tts endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	// Error and captcha pages arrive as 200 text; caching one would poison the key.
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); strings.HasPrefix(mediaType, "text/") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("tts endpoint returned %s instead of audio", mediaType)
	}
	return resp.Body, nil
}

// CommandSynthesizer runs an external TTS program and captures its stdout.
// Arguments may reference {text} and {lang}; when no argument references
// {text}, the phrase is written to the program's stdin.
type CommandSynthesizer struct {
	Command []string
	Locale  string
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if len(s.Command) == 0 {
		return nil, fmt.Errorf("tts command not configured")
	}
	replacer := strings.NewReplacer("{text}", text, "{lang}", s.Locale)
	usesText := false
	args := make([]string, 0, len(s.Command)-1)
	for _, arg := range s.Command[1:] {
		if strings.Contains(arg, "{text}") {
			usesText = true
		}
		args = append(args, replacer.Replace(arg))
	}

	cmd := exec.CommandContext(ctx, s.Command[0], args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if !usesText {
		cmd.Stdin = strings.NewReader(text)
	}
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", s.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	return io.NopCloser(&stdout), nil
}
