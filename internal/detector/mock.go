package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockExtractor is a test implementation of the Extractor interface.
// It allows tests to control the detection results.
type MockExtractor struct {
	mu           sync.Mutex
	faces        []Face
	sequence     [][]Face
	err          error
	calls        int
	orientations []Orientation
}

// NewMockExtractor creates a new MockExtractor instance.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// SetFaces sets the faces that will be returned by every Detect call
// once any scripted sequence is exhausted.
func (m *MockExtractor) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetSequence scripts per-call results: the n-th Detect call returns
// sequence[n]. After the script runs out, the SetFaces value is returned.
func (m *MockExtractor) SetSequence(sequence ...[]Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = sequence
}

// SetError sets the error that will be returned by Detect.
func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the next scripted faces, the pre-configured faces, or error.
func (m *MockExtractor) Detect(frame *gocv.Mat, orientation Orientation) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.orientations = append(m.orientations, orientation)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.sequence) > 0 {
		next := m.sequence[0]
		m.sequence = m.sequence[1:]
		return next, nil
	}
	return m.faces, nil
}

// Calls returns how many times Detect has been called.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastOrientation returns the orientation passed to the latest Detect call.
func (m *MockExtractor) LastOrientation() Orientation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.orientations) == 0 {
		return 0
	}
	return m.orientations[len(m.orientations)-1]
}

// Close is a no-op for the mock extractor.
func (m *MockExtractor) Close() error {
	return nil
}

// NeutralFace returns a frontal face with both eyes open and no smile.
func NeutralFace() Face {
	return Face{
		Bounds:   &Rect{X: 200, Y: 120, Width: 240, Height: 240},
		Angle:    ptr(0.0),
		LeftEye:  &Point{X: 260, Y: 200},
		RightEye: &Point{X: 380, Y: 200},
		Mouth:    &Point{X: 320, Y: 310},
	}
}

// SmilingFace returns a frontal face with both eyes open and a smile.
func SmilingFace() Face {
	f := NeutralFace()
	f.Smiling = true
	return f
}

// WinkingFace returns a face with only the left eye closed.
// A closed eye has no reported position.
func WinkingFace() Face {
	f := NeutralFace()
	f.LeftEye = nil
	f.LeftEyeClosed = true
	return f
}

// BlinkingFace returns a face with both eyes closed.
func BlinkingFace() Face {
	f := NeutralFace()
	f.Angle = nil
	f.LeftEye = nil
	f.RightEye = nil
	f.LeftEyeClosed = true
	f.RightEyeClosed = true
	return f
}

// TiltedFace returns a neutral face rotated by angle degrees.
func TiltedFace(angle float64) Face {
	f := NeutralFace()
	f.Angle = ptr(angle)
	return f
}
