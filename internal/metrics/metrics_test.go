package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAreExposed(t *testing.T) {
	m := New()
	m.Toggles.WithLabelValues("enter").Inc()
	m.Toggles.WithLabelValues("enter").Inc()
	m.ItemsDropped.WithLabelValues("persistence").Inc()
	m.QueueDepth.Set(3)

	if got := testutil.ToFloat64(m.Toggles.WithLabelValues("enter")); got != 2 {
		t.Fatalf("expected 2 enter toggles, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`kiosk_toggles_total{action="enter"} 2`,
		`kiosk_items_dropped_total{reason="persistence"} 1`,
		`kiosk_queue_depth 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in exposition output", want)
		}
	}
}
