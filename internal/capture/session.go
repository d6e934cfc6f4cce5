package capture

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Selector chooses which camera a Session should use.
type Selector int

const (
	Front Selector = iota
	Back
)

func (s Selector) String() string {
	switch s {
	case Front:
		return "front"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("selector(%d)", int(s))
	}
}

// ParseSelector converts "front" or "back" to a Selector.
func ParseSelector(s string) (Selector, error) {
	switch s {
	case "front", "":
		return Front, nil
	case "back":
		return Back, nil
	default:
		return 0, fmt.Errorf("unknown camera %q", s)
	}
}

var (
	// ErrNoCamera means no camera device could be opened.
	ErrNoCamera = errors.New("no usable camera")
	// ErrNotConfigured is returned by Start before a successful Configure.
	ErrNotConfigured = errors.New("session is not configured")
	// ErrSessionRunning is returned by Configure while frames are being delivered.
	ErrSessionRunning = errors.New("session is running")
)

// ConfigurationError reports that no camera could be set up for a selector.
// It is returned once per Configure call; the caller may retry with a
// different selector.
type ConfigurationError struct {
	Selector Selector
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configure %s camera: %v", e.Selector, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SessionConfig holds configuration for a capture Session.
type SessionConfig struct {
	// FrontDevice and BackDevice map selectors to device IDs.
	FrontDevice int
	BackDevice  int

	// ProbeDevices is how many device IDs (0..n-1) are tried as a fallback
	// when the selected camera cannot be opened.
	ProbeDevices int

	Width  int
	Height int
	FPS    int

	// NewCamera builds a Camera for a device ID. Defaults to a GoCV camera.
	NewCamera func(deviceID int) Camera

	Logger logrus.FieldLogger
}

// DefaultSessionConfig returns a SessionConfig with sensible default values.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FrontDevice:  0,
		BackDevice:   1,
		ProbeDevices: 4,
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		FPS:          DefaultFPS,
	}
}

// SessionStats is a point-in-time view of a Session.
type SessionStats struct {
	Device     int               `json:"device"`
	Running    bool              `json:"running"`
	FramesRead uint64            `json:"frames_read"`
	ReadErrors uint64            `json:"read_errors"`
	Drops      map[string]uint64 `json:"drops"`
}

// Session owns a camera and delivers its frames to subscribers.
//
// A single reader goroutine reads frames at the camera FPS and hands each
// subscriber its own copy through a Mailbox, so a slow subscriber only ever
// sees the newest frame.
type Session struct {
	config SessionConfig
	log    logrus.FieldLogger

	mu       sync.Mutex
	camera   Camera
	deviceID int
	stopCh   chan struct{}
	done     chan struct{}

	subsMu sync.RWMutex
	subs   map[string]*Mailbox

	seq        atomic.Uint64
	framesRead atomic.Uint64
	readErrors atomic.Uint64
}

// NewSession creates an unconfigured Session.
func NewSession(config SessionConfig) *Session {
	if config.NewCamera == nil {
		width, height := config.Width, config.Height
		config.NewCamera = func(id int) Camera {
			return NewCameraWithResolution(id, width, height)
		}
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}

	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Session{
		config:   config,
		log:      log.WithField("component", "capture"),
		deviceID: -1,
		subs:     make(map[string]*Mailbox),
	}
}

// Configure selects and opens a camera. If the requested camera cannot be
// opened, any other device among the probed IDs is used instead. A previously
// configured camera is released.
func (s *Session) Configure(selector Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return ErrSessionRunning
	}

	if s.camera != nil {
		s.camera.Close()
		s.camera = nil
		s.deviceID = -1
	}

	preferred := s.config.FrontDevice
	if selector == Back {
		preferred = s.config.BackDevice
	}

	candidates := []int{preferred}
	for id := 0; id < s.config.ProbeDevices; id++ {
		if id != preferred {
			candidates = append(candidates, id)
		}
	}

	var lastErr error
	for _, id := range candidates {
		cam := s.config.NewCamera(id)
		cam.SetFPS(s.config.FPS)

		if err := cam.Open(); err != nil {
			lastErr = err
			s.log.WithFields(logrus.Fields{"device": id, "error": err}).Debug("camera unavailable")
			continue
		}

		if id != preferred {
			s.log.WithFields(logrus.Fields{"selector": selector, "device": id}).Warn("requested camera unavailable, using fallback")
		}

		width, height := cam.Size()
		s.log.WithFields(logrus.Fields{"device": id, "width": width, "height": height}).Info("camera configured")

		s.camera = cam
		s.deviceID = id
		return nil
	}

	err := ErrNoCamera
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrNoCamera, lastErr)
	}
	return &ConfigurationError{Selector: selector, Err: err}
}

// Start begins frame delivery. It is a no-op if already running.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.camera == nil {
		return ErrNotConfigured
	}
	if s.stopCh != nil {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.readLoop(s.camera, s.stopCh, s.done)

	s.log.WithField("device", s.deviceID).Info("frame delivery started")
	return nil
}

// Stop halts frame delivery and waits for the reader to exit. It is a no-op
// if already stopped.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh == nil {
		return
	}

	close(s.stopCh)
	<-s.done
	s.stopCh = nil
	s.done = nil

	s.log.WithField("device", s.deviceID).Info("frame delivery stopped")
}

// Running reports whether frames are being delivered.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Configured reports whether a camera has been opened.
func (s *Session) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera != nil
}

// Close stops delivery, releases the camera and closes every subscriber mailbox.
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	var err error
	if s.camera != nil {
		err = s.camera.Close()
		s.camera = nil
		s.deviceID = -1
	}
	s.mu.Unlock()

	s.subsMu.Lock()
	for name, mb := range s.subs {
		mb.Close()
		delete(s.subs, name)
	}
	s.subsMu.Unlock()

	return err
}

// Subscribe registers a named consumer and returns its mailbox. An existing
// subscription with the same name is closed and replaced.
func (s *Session) Subscribe(name string) *Mailbox {
	mb := NewMailbox()

	s.subsMu.Lock()
	if old, ok := s.subs[name]; ok {
		old.Close()
	}
	s.subs[name] = mb
	s.subsMu.Unlock()

	return mb
}

// Unsubscribe closes and removes a consumer. Unknown names are ignored.
func (s *Session) Unsubscribe(name string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if mb, ok := s.subs[name]; ok {
		mb.Close()
		delete(s.subs, name)
	}
}

// Stats returns operational counters.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	stats := SessionStats{
		Device:  s.deviceID,
		Running: s.stopCh != nil,
	}
	s.mu.Unlock()

	stats.FramesRead = s.framesRead.Load()
	stats.ReadErrors = s.readErrors.Load()
	stats.Drops = make(map[string]uint64)

	s.subsMu.RLock()
	for name, mb := range s.subs {
		stats.Drops[name] = mb.Drops()
	}
	s.subsMu.RUnlock()

	return stats
}

// readLoop reads frames until stopCh is closed and fans them out to subscribers.
func (s *Session) readLoop(cam Camera, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := cam.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			mat, err := cam.ReadFrame()
			if err != nil {
				s.readErrors.Add(1)
				s.log.WithError(err).Debug("error reading frame")
				continue
			}

			s.framesRead.Add(1)
			seq := s.seq.Add(1)
			now := time.Now()

			s.subsMu.RLock()
			names := make([]string, 0, len(s.subs))
			for name := range s.subs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				s.subs[name].Put(&Frame{
					Mat:       mat.Clone(),
					Seq:       seq,
					Timestamp: now,
					Width:     mat.Cols(),
					Height:    mat.Rows(),
				})
			}
			s.subsMu.RUnlock()

			mat.Close()
		}
	}
}

// ProbeDevices tries to open device IDs 0..max-1 and returns those that open.
// Each probed camera is closed again.
func ProbeDevices(newCamera func(deviceID int) Camera, max int) []int {
	if newCamera == nil {
		newCamera = NewCamera
	}

	var found []int
	for id := 0; id < max; id++ {
		cam := newCamera(id)
		if err := cam.Open(); err != nil {
			continue
		}
		cam.Close()
		found = append(found, id)
	}
	return found
}
