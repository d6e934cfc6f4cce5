package capture

import (
	"errors"
	"testing"
)

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(0)
	if got := cam.FPS(); got != DefaultFPS {
		t.Fatalf("FPS() = %d, want default %d", got, DefaultFPS)
	}

	// Applied in order against the same camera.
	steps := []struct {
		fps, want int
	}{
		{fps: 30, want: 30},
		{fps: 1, want: 1},
		{fps: 0, want: 1},
		{fps: -5, want: 1},
	}
	for _, s := range steps {
		cam.SetFPS(s.fps)
		if got := cam.FPS(); got != s.want {
			t.Errorf("after SetFPS(%d): FPS() = %d, want %d", s.fps, got, s.want)
		}
	}
}

func TestCamera_Closed(t *testing.T) {
	cam := NewCamera(0)

	if cam.IsOpen() {
		t.Error("IsOpen() should be false before Open()")
	}
	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() on a closed camera = %v, want nil", err)
	}
}

func TestCamera_Size_BeforeOpen(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{name: "explicit", width: 1280, height: 720, wantW: 1280, wantH: 720},
		{name: "defaults", width: 0, height: -1, wantW: DefaultWidth, wantH: DefaultHeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCameraWithResolution(0, tt.width, tt.height)
			w, h := cam.Size()
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("Size() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(0)
	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	defer cam.Close()

	if !cam.IsOpen() {
		t.Error("IsOpen() should be true after Open()")
	}
	if err := cam.Open(); err != nil {
		t.Errorf("second Open() = %v, want nil", err)
	}

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	// The preset is a request; the device may clamp it.
	if w, h := cam.Size(); mat.Cols() != w || mat.Rows() != h {
		t.Logf("frame %dx%d, device reports %dx%d", mat.Cols(), mat.Rows(), w, h)
	}
	mat.Close()

	if err := cam.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if cam.IsOpen() {
		t.Error("IsOpen() should be false after Close()")
	}
}
