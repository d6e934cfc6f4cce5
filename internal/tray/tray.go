// Package tray provides a system tray interface that shows whether a face is
// in view and lets the user pause detection.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/facewatch/internal/events"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onPreview func()
	onQuit    func()
	enabled   bool
	status    Status
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuStatus    *systray.MenuItem
	menuLastEvent *systray.MenuItem
}

// Status is the face state shown in the tray.
type Status struct {
	Face      bool
	Smiling   bool
	EyesShut  bool
	LastEvent string
}

// Title renders the status as the tray title.
func (s Status) Title() string {
	switch {
	case !s.Face:
		return "facewatch ○"
	case s.EyesShut:
		return "facewatch -_-"
	case s.Smiling:
		return "facewatch ☺"
	default:
		return "facewatch ●"
	}
}

// Apply folds an event into the status.
func (s Status) Apply(kind events.Kind) Status {
	switch kind {
	case events.FaceDetected:
		s.Face = true
	case events.NoFaceDetected:
		s.Face = false
	case events.Smiling:
		s.Smiling = true
	case events.NotSmiling:
		s.Smiling = false
	case events.Blinking:
		s.EyesShut = true
	case events.NotBlinking:
		s.EyesShut = false
	}
	s.LastEvent = kind.String()
	return s
}

// New creates a new Tray instance with enabled state set to enabled.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPreview sets the callback function to be called when the preview menu item is clicked.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	t.mu.Lock()
	status := t.status
	enabled := t.enabled

	systray.SetTitle(status.Title())
	systray.SetTooltip("facewatch face detection")

	t.menuToggle = systray.AddMenuItem(toggleTitle(enabled), "Toggle face detection")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(statusLine(status), "Current face state")
	t.menuStatus.Disable()
	t.menuLastEvent = systray.AddMenuItem(lastEventLine(status), "Last published event")
	t.menuLastEvent.Disable()
	systray.AddSeparator()

	menuPreview := systray.AddMenuItem("Open Preview...", "Open the camera preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit facewatch")
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuPreview.ClickedCh:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Detecting"
	}
	return "○ Paused"
}

func statusLine(s Status) string {
	if !s.Face {
		return "No face"
	}
	return "Face in view"
}

func lastEventLine(s Status) string {
	if s.LastEvent == "" {
		return "Last: none"
	}
	return "Last: " + s.LastEvent
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handlePreview handles the preview menu item click.
func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Handle updates the displayed status from an event. It has the
// events.Handler signature; subscribe it through an events.Queue so menu
// updates never run on the detection goroutine.
func (t *Tray) Handle(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.status
	t.status = t.status.Apply(e.Kind)

	// Menu items exist only once the tray is running.
	if t.menuStatus == nil {
		return
	}
	if t.status.Title() != prev.Title() {
		systray.SetTitle(t.status.Title())
	}
	t.menuStatus.SetTitle(statusLine(t.status))
	t.menuLastEvent.SetTitle(lastEventLine(t.status))
}

// SetEnabled reflects a detection toggle made elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// Status returns the displayed face status.
func (t *Tray) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
