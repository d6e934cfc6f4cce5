// Package app wires the camera session, feature extractor, state tracker and
// event bus into a running detection pipeline.
package app

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/events"
	"github.com/ayusman/facewatch/internal/metrics"
	"github.com/ayusman/facewatch/internal/tracker"
)

// TrackerSubscriber is the session subscription name used by the detection worker.
const TrackerSubscriber = "tracker"

// Config holds configuration options for the application.
type Config struct {
	Session   *capture.Session
	Selector  capture.Selector
	Extractor detector.Extractor

	Policy      tracker.Policy
	Orientation detector.Orientation

	// Bus receives tracker events. A new Bus is created when nil.
	Bus *events.Bus
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger

	// StartDisabled leaves detection paused until SetEnabled(true).
	StartDisabled bool
}

// App is the main application that turns camera frames into face events.
type App struct {
	config  Config
	session *capture.Session
	extract detector.Extractor
	tracker *tracker.Tracker
	bus     *events.Bus
	metrics *metrics.Metrics
	log     logrus.FieldLogger

	enabled atomic.Bool

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Session == nil {
		return nil, errors.New("app: session is required")
	}
	if config.Extractor == nil {
		return nil, errors.New("app: extractor is required")
	}

	bus := config.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	a := &App{
		config:  config,
		session: config.Session,
		extract: config.Extractor,
		tracker: tracker.New(config.Policy, bus),
		bus:     bus,
		metrics: config.Metrics,
		log:     log.WithField("component", "app"),
	}
	a.enabled.Store(!config.StartDisabled)

	if a.metrics != nil {
		bus.SubscribeAll(a.metrics.ObserveEvent)
	}

	return a, nil
}

// SetEnabled pauses or resumes detection. The camera keeps running while
// paused so the preview stream stays live.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) != enabled {
		a.log.WithField("enabled", enabled).Info("detection toggled")
	}
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Start configures the camera on first use, then starts frame delivery and
// the detection worker. It is a no-op if already running.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	if !a.session.Configured() {
		if err := a.session.Configure(a.config.Selector); err != nil {
			return err
		}
	}

	mb := a.session.Subscribe(TrackerSubscriber)
	if err := a.session.Start(); err != nil {
		a.session.Unsubscribe(TrackerSubscriber)
		return err
	}

	a.done = make(chan struct{})
	a.running = true
	go a.runPipeline(mb, a.done)

	a.log.WithFields(logrus.Fields{
		"policy":      a.tracker.Policy(),
		"orientation": a.config.Orientation,
	}).Info("detection pipeline started")
	return nil
}

// Stop halts the worker and frame delivery. The camera stays configured so
// Start can resume. It is a no-op if already stopped.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	// Closing the mailbox wakes the worker.
	a.session.Unsubscribe(TrackerSubscriber)
	<-a.done
	a.session.Stop()

	a.running = false
	a.done = nil

	a.log.Info("detection pipeline stopped")
}

// Running reports whether the pipeline is started.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Close stops the pipeline and releases the camera and extractor.
func (a *App) Close() error {
	a.Stop()

	var errs []error
	if err := a.session.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.extract.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Snapshot returns the tracker state after the last processed frame.
func (a *App) Snapshot() tracker.Snapshot {
	return a.tracker.Snapshot()
}

// Bus returns the event bus consumers subscribe to.
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Session returns the camera session, for preview subscribers.
func (a *App) Session() *capture.Session {
	return a.session
}
