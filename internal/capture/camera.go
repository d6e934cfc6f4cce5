// Package capture provides camera capture and frame delivery using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings. The resolution is the highest preset requested;
// the driver clamps it to what the device supports.
const (
	DefaultFPS    = 15
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

var (
	// ErrCameraNotOpen is returned when reading from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrDeviceUnavailable means the device exists in OpenCV's view but
	// refused to open, usually because access was denied or it is in use.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrEmptyFrame is returned when the device delivers no pixels.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Camera is a single video device.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame; the caller closes it.
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
	// Size returns the frame size reported by the device once open.
	Size() (width, height int)
}

// gocvCamera reads from a device through gocv.VideoCapture.
type gocvCamera struct {
	deviceID int
	width    int
	height   int
	fps      int

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewCamera returns a Camera for deviceID requesting the default preset.
func NewCamera(deviceID int) Camera {
	return NewCameraWithResolution(deviceID, DefaultWidth, DefaultHeight)
}

// NewCameraWithResolution returns a Camera requesting the given frame size.
// Non-positive values fall back to the defaults.
func NewCameraWithResolution(deviceID, width, height int) Camera {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &gocvCamera{
		deviceID: deviceID,
		width:    width,
		height:   height,
		fps:      DefaultFPS,
	}
}

// Open opens the device and requests the configured size and rate.
// Opening an open camera is a no-op.
func (c *gocvCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return fmt.Errorf("open camera %d: %w", c.deviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open camera %d: %w", c.deviceID, ErrDeviceUnavailable)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = vc
	return nil
}

// Close releases the device. Closing a closed camera returns nil.
func (c *gocvCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

func (c *gocvCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("read camera %d: device returned no frame", c.deviceID)
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}
	return &mat, nil
}

// SetFPS sets the capture rate. Values less than or equal to 0 are ignored.
func (c *gocvCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (c *gocvCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *gocvCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

// Size returns the negotiated frame size, or the requested size before Open.
func (c *gocvCamera) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return c.width, c.height
	}
	return int(c.capture.Get(gocv.VideoCaptureFrameWidth)), int(c.capture.Get(gocv.VideoCaptureFrameHeight))
}
