package config

import (
	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/tracker"
)

// Session returns the capture session settings.
func (c *Config) Session() capture.SessionConfig {
	s := capture.DefaultSessionConfig()
	s.FrontDevice = c.Camera.FrontDevice
	s.BackDevice = c.Camera.BackDevice
	s.ProbeDevices = c.Camera.ProbeDevices
	s.Width = c.Camera.Width
	s.Height = c.Camera.Height
	s.FPS = c.Camera.FPS
	return s
}

// Selector returns the configured camera selector.
func (c *Config) Selector() (capture.Selector, error) {
	return capture.ParseSelector(c.Camera.Selector)
}

// Extractor returns the feature extractor settings.
func (c *Config) Extractor() (detector.Config, error) {
	accuracy, err := detector.ParseAccuracy(c.Detector.Accuracy)
	if err != nil {
		return detector.Config{}, err
	}

	d := detector.DefaultConfig()
	d.Accuracy = accuracy
	d.FaceCascade = c.Detector.FaceCascade
	d.EyeCascade = c.Detector.EyeCascade
	d.SmileCascade = c.Detector.SmileCascade
	d.ServiceScript = c.Detector.ServiceScript
	return d, nil
}

// Orientation returns the frame orientation hint.
func (c *Config) Orientation() (detector.Orientation, error) {
	return detector.ParseOrientation(c.Detector.Orientation)
}

// Policy returns the notification policy.
func (c *Config) Policy() (tracker.Policy, error) {
	return tracker.ParsePolicy(c.Tracker.Policy)
}
