package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ayusman/facewatch/internal/events"
)

func TestMetrics_ObserveEvent(t *testing.T) {
	m := New()

	m.ObserveEvent(events.Event{Kind: events.Smiling})
	m.ObserveEvent(events.Event{Kind: events.Smiling})
	m.ObserveEvent(events.Event{Kind: events.Blinking})

	if got := testutil.ToFloat64(m.events.WithLabelValues("smiling")); got != 2 {
		t.Errorf("smiling = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("blinking")); got != 1 {
		t.Errorf("blinking = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("winking")); got != 0 {
		t.Errorf("winking = %v, want 0", got)
	}
}

func TestMetrics_AllKindsExported(t *testing.T) {
	m := New()

	if got := testutil.CollectAndCount(m.events); got != len(events.Kinds()) {
		t.Errorf("event series = %d, want %d", got, len(events.Kinds()))
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FramesProcessed.Add(3)
	m.Faces.Store(2)
	m.ObserveDetect(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"facewatch_frames_processed_total 3",
		"facewatch_faces 2",
		"facewatch_detect_duration_seconds_count 1",
		`facewatch_events_total{kind="face-detected"} 0`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
