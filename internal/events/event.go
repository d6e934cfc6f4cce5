// Package events defines the face state-change events and the bus that carries them.
package events

import (
	"fmt"
	"time"
)

// Kind identifies an edge-triggered face state signal.
type Kind int

const (
	FaceDetected Kind = iota
	NoFaceDetected
	Smiling
	NotSmiling
	Blinking
	NotBlinking
	Winking
	NotWinking
	LeftEyeClosed
	LeftEyeOpen
	RightEyeClosed
	RightEyeOpen

	numKinds
)

var kindNames = [numKinds]string{
	FaceDetected:   "face-detected",
	NoFaceDetected: "no-face-detected",
	Smiling:        "smiling",
	NotSmiling:     "not-smiling",
	Blinking:       "blinking",
	NotBlinking:    "not-blinking",
	Winking:        "winking",
	NotWinking:     "not-winking",
	LeftEyeClosed:  "left-eye-closed",
	LeftEyeOpen:    "left-eye-open",
	RightEyeClosed: "right-eye-closed",
	RightEyeOpen:   "right-eye-open",
}

// Kinds returns every event kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, numKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind converts a kebab-case name such as "left-eye-closed" to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid event kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single published state change.
type Event struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`

	// Image is the JPEG-encoded frame that triggered a FaceDetected event.
	// It is nil for every other kind.
	Image []byte `json:"image,omitempty"`
}
