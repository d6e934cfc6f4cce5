package detector

import (
	"errors"
	"math"
	"testing"

	"gocv.io/x/gocv"
)

const epsilon = 1e-9

func TestParseOrientation(t *testing.T) {
	tests := []struct {
		in      string
		want    Orientation
		wantErr bool
	}{
		{in: "", want: OrientationRight},
		{in: "up", want: OrientationUp},
		{in: "down", want: OrientationDown},
		{in: "right", want: OrientationRight},
		{in: "left", want: OrientationLeft},
		{in: "sideways", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrientation(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOrientation(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseOrientation(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOrientation_ExifValues(t *testing.T) {
	if OrientationUp != 1 || OrientationDown != 3 || OrientationRight != 6 || OrientationLeft != 8 {
		t.Error("orientation values must match EXIF orientation tags")
	}
	if DefaultOrientation != OrientationRight {
		t.Errorf("DefaultOrientation = %v, want right", DefaultOrientation)
	}
	if _, ok := OrientationUp.rotateFlag(); ok {
		t.Error("up orientation should not rotate")
	}
	if flag, ok := OrientationRight.rotateFlag(); !ok || flag != gocv.Rotate90Clockwise {
		t.Errorf("right orientation rotate = %v, %v", flag, ok)
	}
}

func TestParseAccuracy(t *testing.T) {
	got, err := ParseAccuracy("battery-saving")
	if err != nil || got != BatterySaving {
		t.Errorf("ParseAccuracy(battery-saving) = %v, %v", got, err)
	}
	got, err = ParseAccuracy("higher-performance")
	if err != nil || got != HigherPerformance {
		t.Errorf("ParseAccuracy(higher-performance) = %v, %v", got, err)
	}
	if _, err := ParseAccuracy("turbo"); err == nil {
		t.Error("ParseAccuracy should reject unknown modes")
	}
	if DefaultConfig().Accuracy != HigherPerformance {
		t.Error("default accuracy should be higher-performance")
	}
}

func TestEyeLineAngle(t *testing.T) {
	if got := eyeLineAngle(Point{0, 0}, Point{10, 0}); math.Abs(got) > epsilon {
		t.Errorf("level eyes angle = %f, want 0", got)
	}
	if got := eyeLineAngle(Point{0, 0}, Point{10, 10}); math.Abs(got-45) > epsilon {
		t.Errorf("diagonal eyes angle = %f, want 45", got)
	}
}

func TestRect_Center(t *testing.T) {
	c := Rect{X: 10, Y: 20, Width: 40, Height: 60}.Center()
	if c.X != 30 || c.Y != 50 {
		t.Errorf("Center() = %+v, want {30 50}", c)
	}
}

func TestMockExtractor(t *testing.T) {
	t.Run("returns empty faces by default", func(t *testing.T) {
		mock := NewMockExtractor()

		faces, err := mock.Detect(nil, OrientationUp)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if faces != nil {
			t.Errorf("expected nil faces, got %v", faces)
		}
	})

	t.Run("returns configured faces and records orientation", func(t *testing.T) {
		mock := NewMockExtractor()
		mock.SetFaces([]Face{SmilingFace()})

		faces, err := mock.Detect(nil, OrientationLeft)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(faces) != 1 || !faces[0].Smiling {
			t.Errorf("faces = %+v, want one smiling face", faces)
		}
		if mock.LastOrientation() != OrientationLeft {
			t.Errorf("LastOrientation() = %v, want left", mock.LastOrientation())
		}
		if mock.Calls() != 1 {
			t.Errorf("Calls() = %d, want 1", mock.Calls())
		}
	})

	t.Run("plays scripted sequence then falls back", func(t *testing.T) {
		mock := NewMockExtractor()
		mock.SetFaces([]Face{NeutralFace()})
		mock.SetSequence(nil, []Face{BlinkingFace()})

		first, _ := mock.Detect(nil, OrientationUp)
		second, _ := mock.Detect(nil, OrientationUp)
		third, _ := mock.Detect(nil, OrientationUp)

		if len(first) != 0 {
			t.Errorf("first = %v, want no faces", first)
		}
		if len(second) != 1 || !second[0].LeftEyeClosed || !second[0].RightEyeClosed {
			t.Errorf("second = %+v, want blinking face", second)
		}
		if len(third) != 1 || third[0].LeftEyeClosed {
			t.Errorf("third = %+v, want neutral face", third)
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockExtractor()
		wantErr := errors.New("detector failed")
		mock.SetError(wantErr)

		_, err := mock.Detect(nil, OrientationUp)
		if !errors.Is(err, wantErr) {
			t.Errorf("error = %v, want %v", err, wantErr)
		}
	})
}

func TestPresetFaces(t *testing.T) {
	wink := WinkingFace()
	if !wink.LeftEyeClosed || wink.RightEyeClosed {
		t.Errorf("WinkingFace closed flags = %v/%v, want true/false", wink.LeftEyeClosed, wink.RightEyeClosed)
	}
	if wink.LeftEye != nil {
		t.Error("closed eye should have no position")
	}

	blink := BlinkingFace()
	if !blink.LeftEyeClosed || !blink.RightEyeClosed {
		t.Error("BlinkingFace should have both eyes closed")
	}

	tilted := TiltedFace(12.5)
	if tilted.Angle == nil || *tilted.Angle != 12.5 {
		t.Errorf("TiltedFace angle = %v, want 12.5", tilted.Angle)
	}
}

func TestParseServiceResponse(t *testing.T) {
	line := []byte(`{"faces":[{"bounds":{"x":1,"y":2,"w":3,"h":4},"angle":-7.5,"left_eye":{"x":5,"y":6},"smiling":true,"right_eye_closed":true}]}` + "\n")

	faces, err := parseServiceResponse(line)
	if err != nil {
		t.Fatalf("parseServiceResponse() error = %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("len(faces) = %d, want 1", len(faces))
	}

	f := faces[0]
	if f.Bounds == nil || f.Bounds.Width != 3 || f.Bounds.Height != 4 {
		t.Errorf("Bounds = %+v", f.Bounds)
	}
	if f.Angle == nil || *f.Angle != -7.5 {
		t.Errorf("Angle = %v, want -7.5", f.Angle)
	}
	if f.LeftEye == nil || f.LeftEye.X != 5 {
		t.Errorf("LeftEye = %+v", f.LeftEye)
	}
	if f.RightEye != nil || f.Mouth != nil {
		t.Error("absent points should stay nil")
	}
	if !f.Smiling || f.LeftEyeClosed || !f.RightEyeClosed {
		t.Errorf("flags = %v/%v/%v", f.Smiling, f.LeftEyeClosed, f.RightEyeClosed)
	}
}

func TestParseServiceResponse_Errors(t *testing.T) {
	if _, err := parseServiceResponse([]byte("not json")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := parseServiceResponse([]byte(`{"error":"model missing"}`)); err == nil {
		t.Error("expected service error")
	}

	faces, err := parseServiceResponse([]byte(`{"faces":[]}`))
	if err != nil || len(faces) != 0 {
		t.Errorf("empty response = %v, %v", faces, err)
	}
}

func TestNewServiceExtractor_MissingScript(t *testing.T) {
	_, err := NewServiceExtractor(Config{ServiceScript: "/nonexistent/face_service.py"})
	if err == nil {
		t.Error("expected error for missing script")
	}
}

func TestNewCascadeExtractor_MissingFile(t *testing.T) {
	_, err := NewCascadeExtractor(Config{
		FaceCascade:  "/nonexistent/face.xml",
		EyeCascade:   "/nonexistent/eye.xml",
		SmileCascade: "/nonexistent/smile.xml",
	})
	if err == nil {
		t.Error("expected error for missing cascade files")
	}
}

func TestCascadeExtractor_BlankFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires OpenCV cascade files")
	}

	e, err := NewCascadeExtractor(DefaultConfig())
	if err != nil {
		t.Skipf("skipping test - cascades not available: %v", err)
	}
	defer e.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	faces, err := e.Detect(&frame, OrientationRight)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("blank frame produced %d faces", len(faces))
	}

	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := e.Detect(&frame, OrientationUp); err == nil {
		t.Error("Detect after Close should fail")
	}
}
