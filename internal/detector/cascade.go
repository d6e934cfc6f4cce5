package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// Default Haar cascade file names shipped with OpenCV.
const (
	FaceCascadeFile  = "haarcascade_frontalface_default.xml"
	EyeCascadeFile   = "haarcascade_eye.xml"
	SmileCascadeFile = "haarcascade_smile.xml"
)

// batterySavingWidth is the frame width used for detection in BatterySaving mode.
const batterySavingWidth = 320

// ErrCascadeNotFound is returned when a cascade file cannot be located.
var ErrCascadeNotFound = errors.New("cascade file not found")

type cascadeParams struct {
	scale        float64
	minNeighbors int
	minFace      int
}

// CascadeExtractor implements Extractor using OpenCV Haar cascades.
//
// Eyes are searched for in the upper half of each face and a smile in the
// lower half. An eye that is not found is reported closed; the face angle is
// derived from the eye line when both eyes are visible.
type CascadeExtractor struct {
	config Config
	params cascadeParams
	face   gocv.CascadeClassifier
	eye    gocv.CascadeClassifier
	smile  gocv.CascadeClassifier
	mu     sync.Mutex
	closed bool
}

// NewCascadeExtractor loads the face, eye and smile cascades.
func NewCascadeExtractor(config Config) (*CascadeExtractor, error) {
	paths := []struct {
		configured string
		file       string
	}{
		{config.FaceCascade, FaceCascadeFile},
		{config.EyeCascade, EyeCascadeFile},
		{config.SmileCascade, SmileCascadeFile},
	}

	classifiers := make([]gocv.CascadeClassifier, 0, len(paths))
	closeAll := func() {
		for _, c := range classifiers {
			c.Close()
		}
	}

	for _, p := range paths {
		path := p.configured
		if path == "" {
			path = findCascade(p.file)
		}
		if path == "" {
			closeAll()
			return nil, fmt.Errorf("%s: %w", p.file, ErrCascadeNotFound)
		}

		c := gocv.NewCascadeClassifier()
		if !c.Load(path) {
			c.Close()
			closeAll()
			return nil, fmt.Errorf("load cascade %s: invalid file", path)
		}
		classifiers = append(classifiers, c)
	}

	e := &CascadeExtractor{
		config: config,
		face:   classifiers[0],
		eye:    classifiers[1],
		smile:  classifiers[2],
	}

	switch config.Accuracy {
	case BatterySaving:
		e.params = cascadeParams{scale: 1.3, minNeighbors: 4, minFace: 40}
	default:
		e.params = cascadeParams{scale: 1.1, minNeighbors: 5, minFace: 60}
	}

	return e, nil
}

// Detect finds faces in frame after rotating it upright according to orientation.
// Returned coordinates are in the upright frame's pixel space.
func (e *CascadeExtractor) Detect(frame *gocv.Mat, orientation Orientation) ([]Face, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.New("extractor is closed")
	}
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	if flag, ok := orientation.rotateFlag(); ok {
		rotated := gocv.NewMat()
		gocv.Rotate(gray, &rotated, flag)
		gray.Close()
		gray = rotated
	}

	// Downscale in battery-saving mode; factor maps coordinates back.
	factor := 1.0
	if e.config.Accuracy == BatterySaving && gray.Cols() > batterySavingWidth {
		factor = float64(gray.Cols()) / batterySavingWidth
		small := gocv.NewMat()
		height := int(float64(gray.Rows()) / factor)
		gocv.Resize(gray, &small, image.Point{X: batterySavingWidth, Y: height}, 0, 0, gocv.InterpolationLinear)
		gray.Close()
		gray = small
	}

	gocv.EqualizeHist(gray, &gray)

	minFace := image.Point{X: e.params.minFace, Y: e.params.minFace}
	rects := e.face.DetectMultiScaleWithParams(gray, e.params.scale, e.params.minNeighbors, 0, minFace, image.Point{})

	faces := make([]Face, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, e.describe(gray, r, factor))
	}

	return faces, nil
}

// describe extracts eye, mouth and smile features inside one face rectangle.
func (e *CascadeExtractor) describe(gray gocv.Mat, r image.Rectangle, factor float64) Face {
	face := Face{
		Bounds: &Rect{
			X:      float64(r.Min.X) * factor,
			Y:      float64(r.Min.Y) * factor,
			Width:  float64(r.Dx()) * factor,
			Height: float64(r.Dy()) * factor,
		},
	}

	upper := image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+r.Dy()/2)
	lower := image.Rect(r.Min.X, r.Min.Y+r.Dy()/2, r.Max.X, r.Max.Y)
	midX := r.Min.X + r.Dx()/2

	upperROI := gray.Region(upper)
	eyes := e.eye.DetectMultiScaleWithParams(upperROI, 1.1, 3, 0, image.Point{X: r.Dx() / 10, Y: r.Dx() / 10}, image.Point{})
	upperROI.Close()

	var left, right *image.Rectangle
	for i := range eyes {
		eye := eyes[i].Add(upper.Min)
		center := (eye.Min.X + eye.Max.X) / 2
		if center < midX {
			if left == nil || eye.Dx() > left.Dx() {
				left = &eye
			}
		} else if right == nil || eye.Dx() > right.Dx() {
			right = &eye
		}
	}

	if left != nil {
		face.LeftEye = ptr(scaledCenter(*left, factor))
	}
	if right != nil {
		face.RightEye = ptr(scaledCenter(*right, factor))
	}
	face.LeftEyeClosed = left == nil
	face.RightEyeClosed = right == nil

	if face.LeftEye != nil && face.RightEye != nil {
		face.Angle = ptr(eyeLineAngle(*face.LeftEye, *face.RightEye))
	}

	lowerROI := gray.Region(lower)
	smiles := e.smile.DetectMultiScaleWithParams(lowerROI, 1.7, 20, 0, image.Point{X: r.Dx() / 4, Y: r.Dy() / 10}, image.Point{})
	lowerROI.Close()

	if len(smiles) > 0 {
		best := smiles[0]
		for _, s := range smiles[1:] {
			if s.Dx() > best.Dx() {
				best = s
			}
		}
		face.Smiling = true
		face.Mouth = ptr(scaledCenter(best.Add(lower.Min), factor))
	}

	return face
}

func scaledCenter(r image.Rectangle, factor float64) Point {
	return Point{
		X: float64(r.Min.X+r.Max.X) / 2 * factor,
		Y: float64(r.Min.Y+r.Max.Y) / 2 * factor,
	}
}

// Close releases the cascade classifiers.
func (e *CascadeExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	return errors.Join(e.face.Close(), e.eye.Close(), e.smile.Close())
}

// findCascade searches common locations for an OpenCV cascade file.
func findCascade(name string) string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("data", name),
		filepath.Join("..", "data", name),
		filepath.Join(execDir, "data", name),
		filepath.Join(os.Getenv("HOME"), ".facewatch", "data", name),
		filepath.Join("/usr/share/opencv4/haarcascades", name),
		filepath.Join("/usr/local/share/opencv4/haarcascades", name),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
