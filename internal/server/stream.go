package server

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/metrics"
)

// StreamHandler serves camera frames as an MJPEG stream. Each client gets
// its own mailbox, so a slow client only skips frames and never holds back
// detection.
type StreamHandler struct {
	frames  FrameSource
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames FrameSource, m *metrics.Metrics, log logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{frames: frames, metrics: m, log: log}
}

// ServeHTTP streams MJPEG frames until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := "stream-" + uuid.NewString()
	mb := h.frames.Subscribe(name)
	defer h.frames.Unsubscribe(name)

	// Unsubscribing closes the mailbox, which wakes a blocked Take.
	go func() {
		<-r.Context().Done()
		h.frames.Unsubscribe(name)
	}()

	if h.metrics != nil {
		h.metrics.StreamClients.Add(1)
		defer h.metrics.StreamClients.Add(-1)
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log := h.log.WithField("client", name)
	log.Debug("preview client connected")
	defer log.Debug("preview client disconnected")

	for {
		frame := mb.Take()
		if frame == nil {
			return
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
		frame.Close()
		if err != nil {
			log.WithError(err).Debug("failed to encode preview frame")
			continue
		}

		_, err = fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len())
		if err == nil {
			_, err = w.Write(buf.GetBytes())
		}
		if err == nil {
			_, err = fmt.Fprint(w, "\r\n")
		}
		buf.Close()
		if err != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
