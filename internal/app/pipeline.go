package app

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/tracker"
)

// runPipeline is the detection worker. It is the only goroutine that calls
// tracker.Update, so frames are processed one at a time in delivery order.
// The mailbox keeps only the newest frame, so a slow extractor skips frames
// instead of queueing them.
func (a *App) runPipeline(mb *capture.Mailbox, done chan<- struct{}) {
	defer close(done)

	var seenDrops uint64
	for {
		frame := mb.Take()
		if frame == nil {
			return
		}

		if a.metrics != nil {
			drops := mb.Drops()
			a.metrics.FramesDropped.Add(drops - seenDrops)
			seenDrops = drops
		}

		a.processFrame(frame)
		frame.Close()
	}
}

// processFrame runs one frame through the extractor and the tracker.
// Extractor failures leave the tracker state untouched.
func (a *App) processFrame(frame *capture.Frame) {
	if !a.IsEnabled() {
		if a.metrics != nil {
			a.metrics.FramesSkipped.Add(1)
		}
		return
	}

	start := time.Now()
	faces, err := a.extract.Detect(&frame.Mat, a.config.Orientation)
	if a.metrics != nil {
		a.metrics.ObserveDetect(time.Since(start))
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.DetectErrors.Add(1)
		}
		a.log.WithError(err).WithField("seq", frame.Seq).Warn("feature extraction failed")
		return
	}

	var image []byte
	if len(faces) > 0 && a.wantsFaceImage() {
		image = a.encodeJPEG(frame)
	}

	a.tracker.Update(faces, image)

	if a.metrics != nil {
		a.metrics.FramesProcessed.Add(1)
		a.metrics.Faces.Store(int64(len(faces)))
	}
}

// wantsFaceImage reports whether the next non-empty frame will fire
// face-detected, which is the only event that carries the image.
func (a *App) wantsFaceImage() bool {
	if a.tracker.Policy() == tracker.PolicyAlways {
		return true
	}
	present, _ := tracker.Known(a.tracker.Snapshot().FaceDetected)
	return !present
}

func (a *App) encodeJPEG(frame *capture.Frame) []byte {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame.Mat)
	if err != nil {
		if a.metrics != nil {
			a.metrics.EncodeErrors.Add(1)
		}
		a.log.WithError(err).Warn("face image encoding failed")
		return nil
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	data := buf.GetBytes()
	image := make([]byte, len(data))
	copy(image, data)
	return image
}

// Orientation returns the orientation passed to the extractor.
func (a *App) Orientation() detector.Orientation {
	return a.config.Orientation
}
