package greeting

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kiosk/internal/directory"
	"kiosk/internal/presence"
	"kiosk/internal/services"
)

type countingSynth struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *countingSynth) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, text)
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader("ID3" + text)), nil
}

type recordingPlayer struct {
	played []string
	err    error
	block  bool
}

func (p *recordingPlayer) Play(ctx context.Context, path string) error {
	p.played = append(p.played, path)
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

var testPhrases = Phrases{
	AnonymousEnter: "いらっしゃいませ",
	AnonymousExit:  "ありがとうございました",
	PersonalEnter:  "{name}さん，こんにちは．",
	PersonalExit:   "{name}さん，お疲れ様でした．",
}

func enterResult(id string) presence.ToggleResult {
	return presence.ToggleResult{ID: id, IsEnteringNow: true}
}

func exitResult(id string) presence.ToggleResult {
	return presence.ToggleResult{ID: id, WasPresentBefore: true}
}

func TestKeyFileNames(t *testing.T) {
	anon := KeyFor(directory.Anonymous("0123456789abcdef"), presence.ActionEnter)
	if anon.Subject != AnonymousSubject || anon.Personalized || anon.FileName() != "enter.mp3" {
		t.Fatalf("unexpected anonymous key %+v (%s)", anon, anon.FileName())
	}
	named := KeyFor(directory.Profile{MemberID: "m42", DisplayName: "たろう"}, presence.ActionExit)
	if named.Subject != "m42" || !named.Personalized || named.FileName() != "m42_exit.mp3" {
		t.Fatalf("unexpected personalized key %+v (%s)", named, named.FileName())
	}
	odd := Key{Subject: "../etc/x", Action: presence.ActionEnter, Personalized: true}
	if strings.Contains(odd.FileName(), "/") {
		t.Fatalf("file name must not contain separators: %s", odd.FileName())
	}
}

func TestPhrasesText(t *testing.T) {
	named := directory.Profile{MemberID: "m1", DisplayName: "たろう"}
	if got := testPhrases.Text(named, presence.ActionEnter); got != "たろうさん，こんにちは．" {
		t.Fatalf("unexpected personal enter phrase %q", got)
	}
	if got := testPhrases.Text(directory.Anonymous("2210177"), presence.ActionExit); got != "ありがとうございました" {
		t.Fatalf("unexpected anonymous exit phrase %q", got)
	}
}

func TestCacheSynthesizesOncePerKey(t *testing.T) {
	dir := t.TempDir()
	synth := &countingSynth{}
	var outcomes []string
	cache := NewCache(dir, synth, WithAssetObserver(func(r string) { outcomes = append(outcomes, r) }))
	key := Key{Subject: "m1", Action: presence.ActionEnter, Personalized: true}

	first, err := cache.Ensure(context.Background(), key, "たろうさん，こんにちは．")
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Ensure(context.Background(), key, "たろうさん，こんにちは．")
	if err != nil {
		t.Fatal(err)
	}
	if first != second || first != filepath.Join(dir, "m1_enter.mp3") {
		t.Fatalf("unexpected paths %q %q", first, second)
	}
	if len(synth.calls) != 1 {
		t.Fatalf("expected one synthesis call, got %d", len(synth.calls))
	}
	if strings.Join(outcomes, ",") != "miss,hit" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestCacheSynthesisFailureLeavesNoAsset(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, &countingSynth{err: errors.New("network down")})
	key := Key{Subject: AnonymousSubject, Action: presence.ActionEnter}

	_, err := cache.Ensure(context.Background(), key, "いらっしゃいませ")
	if !errors.Is(err, ErrSynthesis) || !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if _, statErr := os.Stat(cache.Path(key)); !os.IsNotExist(statErr) {
		t.Fatalf("expected no asset after failure, got %v", statErr)
	}
}

func TestCachePurge(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, &countingSynth{})
	ctx := context.Background()
	for _, action := range []presence.Action{presence.ActionEnter, presence.ActionExit} {
		if _, err := cache.Ensure(ctx, Key{Subject: "m1", Action: action, Personalized: true}, "x"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := cache.Ensure(ctx, Key{Subject: AnonymousSubject, Action: presence.ActionEnter}, "x"); err != nil {
		t.Fatal(err)
	}

	removed, err := cache.Purge("m1")
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (%v)", removed, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "enter.mp3")); err != nil {
		t.Fatalf("anonymous asset must survive purge: %v", err)
	}
}

func TestAnnouncePlaysAnonymousGreetingForUnknownSerial(t *testing.T) {
	dir := t.TempDir()
	synth := &countingSynth{}
	player := &recordingPlayer{}
	d := NewDispatcher(NewCache(dir, synth), player, testPhrases)

	profile := directory.Anonymous("0123456789abcdef")
	if err := d.Announce(context.Background(), profile, enterResult("0123456789abcdef")); err != nil {
		t.Fatal(err)
	}
	if len(player.played) != 1 || player.played[0] != filepath.Join(dir, "enter.mp3") {
		t.Fatalf("unexpected playback %v", player.played)
	}
	if len(synth.calls) != 1 || synth.calls[0] != "いらっしゃいませ" {
		t.Fatalf("unexpected synthesis %v", synth.calls)
	}
}

func TestAnnounceSynthesisFailurePlaysNothing(t *testing.T) {
	player := &recordingPlayer{}
	d := NewDispatcher(NewCache(t.TempDir(), &countingSynth{err: errors.New("boom")}), player, testPhrases)

	err := d.Announce(context.Background(), directory.Profile{MemberID: "m1", DisplayName: "たろう"}, exitResult("2210177"))
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if len(player.played) != 0 {
		t.Fatalf("expected no playback, got %v", player.played)
	}
}

func TestAnnouncePlaybackTimeout(t *testing.T) {
	player := &recordingPlayer{block: true}
	d := NewDispatcher(NewCache(t.TempDir(), &countingSynth{}), player, testPhrases,
		WithPlaybackTimeout(20*time.Millisecond))

	err := d.Announce(context.Background(), directory.Anonymous("2210177"), enterResult("2210177"))
	if !errors.Is(err, ErrPlayback) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected playback timeout, got %v", err)
	}
}

func TestChimeSkipsMissingFile(t *testing.T) {
	player := &recordingPlayer{}
	d := NewDispatcher(NewCache(t.TempDir(), nil), player, testPhrases,
		WithChime(filepath.Join(t.TempDir(), "missing.wav")))
	if err := d.Chime(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(player.played) != 0 {
		t.Fatalf("expected no playback, got %v", player.played)
	}

	chime := filepath.Join(t.TempDir(), "touch.wav")
	if err := os.WriteFile(chime, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	d = NewDispatcher(NewCache(t.TempDir(), nil), player, testPhrases, WithChime(chime))
	if err := d.Chime(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(player.played) != 1 || player.played[0] != chime {
		t.Fatalf("expected chime playback, got %v", player.played)
	}
}

func TestHTTPSynthesizer(t *testing.T) {
	var gotQuery, gotLang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotLang = r.URL.Query().Get("tl")
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3data"))
	}))
	defer server.Close()

	synth := NewHTTPSynthesizer(server.URL+"/tts?tl={lang}&q={text}", "ja", time.Second)
	body, err := synth.Synthesize(context.Background(), "たろうさん，こんにちは．")
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "ID3data" {
		t.Fatalf("unexpected body %q", data)
	}
	if gotQuery != "たろうさん，こんにちは．" || gotLang != "ja" {
		t.Fatalf("unexpected query q=%q tl=%q", gotQuery, gotLang)
	}
}

func TestHTTPSynthesizerRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	synth := NewHTTPSynthesizer(server.URL+"?q={text}", "ja", time.Second)
	if _, err := synth.Synthesize(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestHTTPSynthesizerTextResponseIsNotCached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>unusual traffic</html>"))
	}))
	defer server.Close()

	cache := NewCache(t.TempDir(), NewHTTPSynthesizer(server.URL+"?q={text}", "ja", time.Second))
	key := Key{Subject: "m1", Action: presence.ActionEnter, Personalized: true}
	if _, err := cache.Ensure(context.Background(), key, "hello"); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if _, err := os.Stat(cache.Path(key)); !os.IsNotExist(err) {
		t.Fatalf("expected no cached asset, stat err=%v", err)
	}
}

func TestCommandSynthesizerUsesStdinWithoutPlaceholder(t *testing.T) {
	synth := &CommandSynthesizer{Command: []string{"cat"}, Locale: "ja"}
	body, err := synth.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Skipf("cat unavailable: %v", err)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "hello" {
		t.Fatalf("unexpected output %q", data)
	}
}

func TestCommandPlayerAppendsPath(t *testing.T) {
	var gotName string
	var gotArgs []string
	player := &CommandPlayer{
		Command: []string{"mpg123", "-q"},
		run: func(_ context.Context, name string, args ...string) error {
			gotName, gotArgs = name, args
			return nil
		},
	}
	if err := player.Play(context.Background(), "/audio/enter.mp3"); err != nil {
		t.Fatal(err)
	}
	if gotName != "mpg123" || strings.Join(gotArgs, " ") != "-q /audio/enter.mp3" {
		t.Fatalf("unexpected invocation %s %v", gotName, gotArgs)
	}

	empty := NewCommandPlayer(nil)
	if err := empty.Play(context.Background(), "x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
