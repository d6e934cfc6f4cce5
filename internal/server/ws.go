package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/facewatch/internal/events"
	"github.com/ayusman/facewatch/internal/metrics"
)

const (
	// clientBuffer is how many events may wait for a slow WebSocket client
	// before newer ones are dropped.
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler streams published events to WebSocket clients as JSON, one
// event per message.
//
// Query parameters:
//
//	kinds   comma-separated kind names to receive (default: all)
//	images  "1" or "true" to keep face images in face-detected events
type EventsHandler struct {
	source  EventSource
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewEventsHandler creates a new EventsHandler following source.
func NewEventsHandler(source EventSource, m *metrics.Metrics, log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{source: source, metrics: m, log: log}
}

// parseKinds turns a comma-separated kinds parameter into a filter. A nil
// filter accepts every kind.
func parseKinds(param string) (map[events.Kind]bool, error) {
	if param == "" {
		return nil, nil
	}

	filter := make(map[events.Kind]bool)
	for _, name := range strings.Split(param, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind, err := events.ParseKind(name)
		if err != nil {
			return nil, err
		}
		filter[kind] = true
	}
	return filter, nil
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filter, err := parseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	images := r.URL.Query().Get("images")
	withImages := images == "1" || images == "true"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade error")
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.EventClients.Add(1)
		defer h.metrics.EventClients.Add(-1)
	}

	ch := make(chan events.Event, clientBuffer)
	unsubscribe := h.source.SubscribeAll(func(e events.Event) {
		if filter != nil && !filter[e.Kind] {
			return
		}
		if !withImages {
			e.Image = nil
		}
		select {
		case ch <- e:
		default:
		}
	})
	defer unsubscribe()

	// Reads detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case e := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				h.log.WithError(err).Debug("websocket write failed")
				return
			}
		}
	}
}
