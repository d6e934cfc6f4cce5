package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/app"
	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/events"
	"github.com/ayusman/facewatch/internal/journal"
	"github.com/ayusman/facewatch/internal/metrics"
	"github.com/ayusman/facewatch/internal/server"
	"github.com/ayusman/facewatch/internal/tracker"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	sessionCfg := capture.DefaultSessionConfig()
	sessionCfg.FPS = 60
	sessionCfg.ProbeDevices = 0
	sessionCfg.NewCamera = func(int) capture.Camera {
		return capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	}

	ext := detector.NewMockExtractor()
	ext.SetFaces([]detector.Face{detector.SmilingFace()})

	m := metrics.New()
	bus := events.NewBus()

	application, err := app.New(app.Config{
		Session:     capture.NewSession(sessionCfg),
		Selector:    capture.Front,
		Extractor:   ext,
		Policy:      tracker.PolicyOnChange,
		Orientation: detector.OrientationUp,
		Bus:         bus,
		Metrics:     m,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	defer application.Close()

	j, err := journal.New(journal.Config{})
	if err != nil {
		t.Fatalf("journal.New() error = %v", err)
	}
	defer j.Close()

	q := events.NewQueue(0, j.Handle)
	defer q.Close()
	defer bus.SubscribeAll(q.Handle)()

	srv := server.New(server.Config{
		Detection: application,
		Frames:    application.Session(),
		Events:    bus,
		Journal:   j,
		Metrics:   m,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	subscribers := bus.Len()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events?kinds=face-detected,smiling&images=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "websocket subscription", func() bool { return bus.Len() == subscribers+1 })

	if err := application.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t.Run("EventStream", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))

		var got []events.Event
		for len(got) < 2 {
			var e events.Event
			if err := conn.ReadJSON(&e); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			got = append(got, e)
		}

		if got[0].Kind != events.FaceDetected || got[1].Kind != events.Smiling {
			t.Fatalf("kinds = [%s %s], want [face-detected smiling]", got[0].Kind, got[1].Kind)
		}
		if len(got[0].Image) == 0 {
			t.Error("face-detected event should carry a JPEG when images=1")
		}
		if got[0].Seq != got[1].Seq {
			t.Errorf("events from one frame should share a sequence: %d != %d", got[0].Seq, got[1].Seq)
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/snapshot")
		if err != nil {
			t.Fatalf("GET /api/snapshot error = %v", err)
		}
		defer resp.Body.Close()

		var snap tracker.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.FaceDetected == nil || !*snap.FaceDetected {
			t.Error("snapshot should report a detected face")
		}
		if snap.Smiling == nil || !*snap.Smiling {
			t.Error("snapshot should report smiling")
		}
	})

	t.Run("Journal", func(t *testing.T) {
		waitFor(t, "journal entries", func() bool {
			n, err := j.Len()
			return err == nil && n >= 2
		})

		resp, err := client.Get(ts.URL + "/api/journal?limit=10")
		if err != nil {
			t.Fatalf("GET /api/journal error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Entries []journal.Entry     `json:"entries"`
			Counts  map[events.Kind]int `json:"counts"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode journal: %v", err)
		}
		if body.Counts[events.FaceDetected] != 1 {
			t.Errorf("face-detected count = %d, want 1", body.Counts[events.FaceDetected])
		}
		last := body.Entries[len(body.Entries)-1]
		if last.Kind != events.FaceDetected || !last.HasImage {
			t.Errorf("oldest entry = %+v, want face-detected with image", last)
		}
	})

	t.Run("PauseDetection", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/detection", "application/json", strings.NewReader(`{"enabled": false}`))
		if err != nil {
			t.Fatalf("POST /api/detection error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if application.IsEnabled() {
			t.Fatal("detection should be paused")
		}

		calls := ext.Calls()
		waitFor(t, "skipped frames", func() bool { return m.FramesSkipped.Load() >= 3 })
		if got := ext.Calls(); got > calls+1 {
			t.Errorf("extractor called %d times while paused", got-calls)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		for _, want := range []string{
			`facewatch_events_total{kind="face-detected"} 1`,
			"facewatch_frames_processed_total",
			"facewatch_event_clients 1",
		} {
			if !strings.Contains(string(body), want) {
				t.Errorf("metrics output missing %q", want)
			}
		}
	})

	application.Stop()
	if application.Running() {
		t.Error("application should be stopped")
	}
}
