// Package tracker turns per-frame face detections into edge-triggered events.
//
// The Tracker keeps the last observed value of every monitored attribute and,
// for each frame, publishes an event only when a condition changes (or on
// every frame when configured with PolicyAlways).
//
// Onset events (face-detected, smiling, winking, blinking, left-eye-closed,
// right-eye-closed) fire when the previous value was not true, including when
// it was never observed. Offset events (no-face-detected, not-smiling,
// not-winking, not-blinking, left-eye-open, right-eye-open) fire only when the
// previous value was true, so a tracker that has never seen a face stays
// silent on empty frames.
package tracker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/events"
)

// Policy controls when events fire.
type Policy int

const (
	// PolicyOnChange fires an event only when its condition changes.
	PolicyOnChange Policy = iota
	// PolicyAlways fires every relevant event on every frame.
	PolicyAlways
)

func (p Policy) String() string {
	switch p {
	case PolicyOnChange:
		return "on-change"
	case PolicyAlways:
		return "always"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts "on-change" or "always" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "on-change", "":
		return PolicyOnChange, nil
	case "always":
		return PolicyAlways, nil
	default:
		return 0, fmt.Errorf("unknown notification policy %q", s)
	}
}

// Snapshot is the tracker's latest known value for every monitored attribute.
// Nil pointers mean the attribute has never been observed.
//
// A Snapshot returned by Tracker.Snapshot is immutable: the tracker replaces
// pointer fields instead of writing through them.
type Snapshot struct {
	FaceDetected   *bool           `json:"face_detected"`
	Bounds         *detector.Rect  `json:"bounds"`
	Angle          *float64        `json:"angle"`
	AngleDelta     *float64        `json:"angle_delta"`
	LeftEye        *detector.Point `json:"left_eye"`
	RightEye       *detector.Point `json:"right_eye"`
	Mouth          *detector.Point `json:"mouth"`
	Smiling        *bool           `json:"smiling"`
	Blinking       *bool           `json:"blinking"`
	Winking        *bool           `json:"winking"`
	LeftEyeClosed  *bool           `json:"left_eye_closed"`
	RightEyeClosed *bool           `json:"right_eye_closed"`

	// Frames counts processed frames; UpdatedAt is when the last one was processed.
	Frames    uint64    `json:"frames"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker is the detection state machine.
//
// Update must be called from a single goroutine. Snapshot is safe to call
// from any goroutine.
type Tracker struct {
	policy    Policy
	publisher events.Publisher
	now       func() time.Time

	state     Snapshot
	pending   []events.Event
	published atomic.Pointer[Snapshot]
}

// New creates a Tracker with an all-unknown snapshot.
func New(policy Policy, publisher events.Publisher) *Tracker {
	t := &Tracker{
		policy:    policy,
		publisher: publisher,
		now:       time.Now,
	}
	t.published.Store(&Snapshot{})
	return t
}

// Policy returns the notification policy fixed at construction.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// Snapshot returns the state after the most recently processed frame.
func (t *Tracker) Snapshot() Snapshot {
	return *t.published.Load()
}

// Update applies one frame's detection result and publishes the resulting
// events in order. faceImage is attached to the face-detected event.
//
// Events are published after the new snapshot is stored, so handlers that
// call Snapshot see the state of the frame that triggered them.
//
// When several faces are detected, they are applied in order and later faces
// overwrite the attributes of earlier ones.
func (t *Tracker) Update(faces []detector.Face, faceImage []byte) {
	now := t.now()
	t.state.Frames++
	t.state.UpdatedAt = now
	t.pending = t.pending[:0]

	emit := func(kind events.Kind) {
		t.pending = append(t.pending, events.Event{Kind: kind, Seq: t.state.Frames, At: now})
	}

	if len(faces) == 0 {
		if t.offset(t.state.FaceDetected) {
			emit(events.NoFaceDetected)
		}
		// Every other attribute keeps its last value while no face is visible.
		t.state.FaceDetected = boolPtr(false)
		t.flush()
		return
	}

	if t.onset(t.state.FaceDetected) {
		emit(events.FaceDetected)
		t.pending[len(t.pending)-1].Image = faceImage
	}
	t.state.FaceDetected = boolPtr(true)

	for _, f := range faces {
		t.apply(f, emit)
	}

	t.flush()
}

func (t *Tracker) apply(f detector.Face, emit func(events.Kind)) {
	s := &t.state

	if f.Bounds != nil {
		b := *f.Bounds
		s.Bounds = &b
	}

	if f.Angle != nil {
		angle := *f.Angle
		delta := angle
		if s.Angle != nil {
			delta = angle - *s.Angle
		}
		s.Angle = &angle
		s.AngleDelta = &delta
	}

	if f.LeftEye != nil {
		p := *f.LeftEye
		s.LeftEye = &p
	}
	if f.RightEye != nil {
		p := *f.RightEye
		s.RightEye = &p
	}
	if f.Mouth != nil {
		p := *f.Mouth
		s.Mouth = &p
	}

	if f.Smiling {
		if t.onset(s.Smiling) {
			emit(events.Smiling)
		}
	} else if t.offset(s.Smiling) {
		emit(events.NotSmiling)
	}
	s.Smiling = boolPtr(f.Smiling)

	if f.LeftEyeClosed || f.RightEyeClosed {
		if t.onset(s.Winking) {
			emit(events.Winking)
		}
		s.Winking = boolPtr(true)

		if f.LeftEyeClosed {
			if t.onset(s.LeftEyeClosed) {
				emit(events.LeftEyeClosed)
			}
			s.LeftEyeClosed = boolPtr(true)
		}
		if f.RightEyeClosed {
			if t.onset(s.RightEyeClosed) {
				emit(events.RightEyeClosed)
			}
			s.RightEyeClosed = boolPtr(true)
		}
		if f.LeftEyeClosed && f.RightEyeClosed {
			if t.onset(s.Blinking) {
				emit(events.Blinking)
			}
			s.Blinking = boolPtr(true)
		}
		return
	}

	if t.offset(s.Blinking) {
		emit(events.NotBlinking)
	}
	if t.offset(s.Winking) {
		emit(events.NotWinking)
	}
	if t.offset(s.LeftEyeClosed) {
		emit(events.LeftEyeOpen)
	}
	if t.offset(s.RightEyeClosed) {
		emit(events.RightEyeOpen)
	}

	s.Blinking = boolPtr(false)
	s.Winking = boolPtr(false)
	s.LeftEyeClosed = boolPtr(false)
	s.RightEyeClosed = boolPtr(false)
}

// onset reports whether an event for a condition becoming true should fire.
func (t *Tracker) onset(prev *bool) bool {
	return t.policy == PolicyAlways || prev == nil || !*prev
}

// offset reports whether an event for a condition becoming false should fire.
func (t *Tracker) offset(prev *bool) bool {
	return t.policy == PolicyAlways || (prev != nil && *prev)
}

// flush stores the frame's snapshot and then publishes its events.
func (t *Tracker) flush() {
	snap := t.state
	t.published.Store(&snap)

	if t.publisher == nil {
		return
	}
	for _, e := range t.pending {
		t.publisher.Publish(e)
	}
}

func boolPtr(v bool) *bool {
	return &v
}

// Known reports whether b has been observed, and its value.
func Known(b *bool) (value, ok bool) {
	if b == nil {
		return false, false
	}
	return *b, true
}
