package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"kiosk/internal/identifier"
	"kiosk/internal/ingest"
	"kiosk/internal/metrics"
	"kiosk/internal/notifications"
)

type recordingSink struct {
	mu    sync.Mutex
	items []ingest.Item
	added chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{added: make(chan struct{}, 64)}
}

func (s *recordingSink) Enqueue(item ingest.Item) error {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
	s.added <- struct{}{}
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.ID.String())
	}
	return out
}

func (s *recordingSink) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.added:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for item %d", i+1)
		}
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) snapshot() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

func TestConsoleEnqueuesValidLinesUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		"2210177",
		"22101770",
		"",
		"hello",
		"０１２３４５６７８９ＡＢＣＤＥＦ",
		"12345",
	}, "\n")
	m := metrics.New()
	sink := newRecordingSink()
	console := NewConsole(strings.NewReader(input), 0, m, nil)

	if err := console.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got := sink.ids()
	want := []string{"2210177", "2210177", "0123456789abcdef"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("queued %v, want %v", got, want)
	}
	for _, item := range sink.items {
		if item.Source != ingest.SourceConsole {
			t.Fatalf("unexpected source %q", item.Source)
		}
	}
	if rejected := testutil.ToFloat64(m.IdentifiersRejected.WithLabelValues("console")); rejected != 2 {
		t.Fatalf("expected 2 rejected lines, got %v", rejected)
	}
	if received := testutil.ToFloat64(m.IdentifiersReceived.WithLabelValues("console")); received != 3 {
		t.Fatalf("expected 3 received lines, got %v", received)
	}
}

type flakyReader struct {
	calls int
}

func (r *flakyReader) Read(p []byte) (int, error) {
	r.calls++
	switch r.calls {
	case 1:
		return 0, errors.New("tty detached")
	case 2:
		return copy(p, "2210177\n"), nil
	default:
		return 0, io.EOF
	}
}

func TestConsoleRecoversFromReadError(t *testing.T) {
	sink := newRecordingSink()
	console := NewConsole(&flakyReader{}, time.Millisecond, nil, nil)

	if err := console.Run(context.Background(), sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := sink.ids(); len(got) != 1 || got[0] != "2210177" {
		t.Fatalf("expected the line after the error to be queued, got %v", got)
	}
}

type step struct {
	id  identifier.ID
	err error
}

type scriptedReader struct {
	mu    sync.Mutex
	steps []step
}

func (r *scriptedReader) ReadSerial(ctx context.Context) (identifier.ID, error) {
	r.mu.Lock()
	if len(r.steps) > 0 {
		next := r.steps[0]
		r.steps = r.steps[1:]
		r.mu.Unlock()
		return next.id, next.err
	}
	r.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestCardEnqueuesSerialsAndReportsFaultsOnce(t *testing.T) {
	reader := &scriptedReader{steps: []step{
		{err: errors.New("usb transfer failed")},
		{err: errors.New("usb transfer failed")},
		{id: "0123456789abcdef"},
		{err: ErrNoCard},
		{id: "fedcba9876543210"},
	}}
	notifier := &recordingNotifier{}
	sink := newRecordingSink()
	card := NewCard(reader, CardOptions{Notifier: notifier})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- card.Run(ctx, sink) }()
	sink.wait(t, 2)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := sink.ids(); strings.Join(got, ",") != "0123456789abcdef,fedcba9876543210" {
		t.Fatalf("unexpected serials %v", got)
	}
	events := notifier.snapshot()
	if len(events) != 2 || events[0] != notifications.EventReaderFault || events[1] != notifications.EventReaderRecovered {
		t.Fatalf("expected one fault and one recovery, got %v", events)
	}
	if healthy, _ := card.Healthy(); !healthy {
		t.Fatal("card should be healthy after a successful read")
	}
}

func TestCardReadTimeoutIsNotAFault(t *testing.T) {
	notifier := &recordingNotifier{}
	card := NewCard(&scriptedReader{}, CardOptions{ReadTimeout: 5 * time.Millisecond, Notifier: notifier})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := card.Run(ctx, newRecordingSink()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if events := notifier.snapshot(); len(events) != 0 {
		t.Fatalf("idle reads must not notify, got %v", events)
	}
}

type emptyReader struct {
	mu    sync.Mutex
	calls int
}

func (r *emptyReader) ReadSerial(context.Context) (identifier.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return "", ErrNoCard
}

func (r *emptyReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestCardWaitsBetweenEmptyReads(t *testing.T) {
	reader := &emptyReader{}
	card := NewCard(reader, CardOptions{RetryDelay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := card.Run(ctx, newRecordingSink()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := reader.count(); got != 1 {
		t.Fatalf("expected a single read within the retry delay, got %d", got)
	}
	if healthy, _ := card.Healthy(); !healthy {
		t.Fatal("an empty read is not a fault")
	}
}

func TestCardWakeCutsRetryShort(t *testing.T) {
	reader := &scriptedReader{steps: []step{
		{err: errors.New("reader unplugged")},
		{id: "0123456789abcdef"},
	}}
	wake := make(chan struct{}, 1)
	sink := newRecordingSink()
	card := NewCard(reader, CardOptions{RetryDelay: time.Hour, Wake: wake})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = card.Run(ctx, sink) }()
	wake <- struct{}{}
	sink.wait(t, 1)
}

func TestParseSerial(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
		ok     bool
	}{
		{
			name:   "nfc-poll felica dump",
			output: "NFC device: Sony RC-S380 opened\n1 FeliCa (212 kbps) passive target(s) found:\n        ID (NFCID2): 01  2e  4c  11  22  33  44  55\n      Parameter (PAD): 03  01  4b  02  4f  49  93  ff\n",
			want:   "012e4c1122334455",
			ok:     true,
		},
		{
			name:   "bare serial",
			output: "0123456789ABCDEF\n",
			want:   "0123456789abcdef",
			ok:     true,
		},
		{
			name:   "labelled line wins",
			output: "session aaaaaaaaaaaaaaaa\nIDm: 0102030405060708\n",
			want:   "0102030405060708",
			ok:     true,
		},
		{
			name:   "no card",
			output: "NFC device: Sony RC-S380 opened\nNo target found.\n",
			ok:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSerial([]byte(tt.output))
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ParseSerial = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCommandReaderClassifiesFailures(t *testing.T) {
	reader := NewCommandReader([]string{"nfc-poll", "-v"})

	reader.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "nfc-poll" || len(args) != 1 || args[0] != "-v" {
			t.Fatalf("unexpected command %s %v", name, args)
		}
		return []byte("IDm: 01 02 03 04 05 06 07 08\n"), nil
	}
	id, err := reader.ReadSerial(context.Background())
	if err != nil || id != "0102030405060708" {
		t.Fatalf("ReadSerial = %q, %v", id, err)
	}

	reader.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	if _, err := reader.ReadSerial(context.Background()); !errors.Is(err, ErrMedium) {
		t.Fatalf("expected ErrMedium, got %v", err)
	}

	reader.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("No target found.\n"), nil
	}
	if _, err := reader.ReadSerial(context.Background()); !errors.Is(err, ErrNoCard) {
		t.Fatalf("expected ErrNoCard, got %v", err)
	}

	if _, err := NewCommandReader(nil).ReadSerial(context.Background()); !errors.Is(err, ErrMedium) {
		t.Fatalf("expected ErrMedium for empty command, got %v", err)
	}
}

type panickySource struct {
	mu    sync.Mutex
	calls int
}

func (p *panickySource) Name() ingest.Source { return ingest.SourceConsole }

func (p *panickySource) Run(_ context.Context, sink Sink) error {
	p.mu.Lock()
	p.calls++
	calls := p.calls
	p.mu.Unlock()
	switch calls {
	case 1:
		panic("boom")
	case 2:
		return errors.New("medium gone")
	default:
		return sink.Enqueue(ingest.Item{ID: "2210177", Source: ingest.SourceConsole})
	}
}

func TestSuperviseRestartsUntilCleanExit(t *testing.T) {
	src := &panickySource{}
	sink := newRecordingSink()

	Supervise(context.Background(), src, sink, time.Millisecond, nil)

	if src.calls != 3 {
		t.Fatalf("expected 3 runs, got %d", src.calls)
	}
	if got := sink.ids(); len(got) != 1 {
		t.Fatalf("expected one item from the final run, got %v", got)
	}
}

func TestRemoteReportsRejections(t *testing.T) {
	sink := newRecordingSink()
	remote := NewRemote(sink, nil, nil)

	id, err := remote.Submit(context.Background(), "22101770")
	if err != nil || id != "2210177" {
		t.Fatalf("Submit = %q, %v", id, err)
	}
	if _, err := remote.Submit(context.Background(), "abc"); !identifier.IsInvalid(err) {
		t.Fatalf("expected invalid identifier error, got %v", err)
	}
	if len(sink.items) != 1 || sink.items[0].Source != ingest.SourceRemote {
		t.Fatalf("unexpected queued items %+v", sink.items)
	}
}
