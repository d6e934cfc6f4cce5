package detector

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Extractor defines the interface for face feature extraction implementations.
type Extractor interface {
	// Detect analyzes a video frame and returns the detected faces.
	// Returns an empty slice if no faces are detected.
	Detect(frame *gocv.Mat, orientation Orientation) ([]Face, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// Accuracy trades detection quality for CPU time. It is fixed for the
// lifetime of an extractor.
type Accuracy int

const (
	HigherPerformance Accuracy = iota
	BatterySaving
)

func (a Accuracy) String() string {
	switch a {
	case BatterySaving:
		return "battery-saving"
	case HigherPerformance:
		return "higher-performance"
	default:
		return fmt.Sprintf("accuracy(%d)", int(a))
	}
}

// ParseAccuracy converts "battery-saving" or "higher-performance" to an Accuracy.
func ParseAccuracy(s string) (Accuracy, error) {
	switch s {
	case "battery-saving":
		return BatterySaving, nil
	case "higher-performance", "":
		return HigherPerformance, nil
	default:
		return 0, fmt.Errorf("unknown accuracy %q", s)
	}
}

// Orientation tells the extractor how the frame must be rotated to be
// upright. Values follow the EXIF orientation tag.
type Orientation int

const (
	OrientationUp    Orientation = 1
	OrientationDown  Orientation = 3
	OrientationRight Orientation = 6 // rotate 90° clockwise (portrait, home button right)
	OrientationLeft  Orientation = 8
)

// DefaultOrientation is the hint used when none is configured.
const DefaultOrientation = OrientationRight

func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "up"
	case OrientationDown:
		return "down"
	case OrientationRight:
		return "right"
	case OrientationLeft:
		return "left"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// ParseOrientation converts "up", "down", "right" or "left" to an Orientation.
// An empty string yields DefaultOrientation.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "":
		return DefaultOrientation, nil
	case "up":
		return OrientationUp, nil
	case "down":
		return OrientationDown, nil
	case "right":
		return OrientationRight, nil
	case "left":
		return OrientationLeft, nil
	default:
		return 0, fmt.Errorf("unknown orientation %q", s)
	}
}

// rotateFlag returns the gocv rotation that makes a frame upright, or false
// when no rotation is needed.
func (o Orientation) rotateFlag() (gocv.RotateFlag, bool) {
	switch o {
	case OrientationRight:
		return gocv.Rotate90Clockwise, true
	case OrientationDown:
		return gocv.Rotate180Clockwise, true
	case OrientationLeft:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}

// Config holds configuration options for face extraction.
type Config struct {
	// Accuracy selects the detection quality mode.
	Accuracy Accuracy

	// FaceCascade, EyeCascade and SmileCascade are paths to OpenCV Haar
	// cascade files. Empty paths are searched for in common locations.
	FaceCascade  string
	EyeCascade   string
	SmileCascade string

	// ServiceScript is the path to an external face landmark service.
	ServiceScript string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Accuracy: HigherPerformance,
	}
}
