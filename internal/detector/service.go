package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ServiceScriptFile is the default name of the external face landmark service.
const ServiceScriptFile = "face_service.py"

// serviceIdleTimeout is how long the service process may sit unused before it is stopped.
const serviceIdleTimeout = 30 * time.Second

// ErrServiceNotFound is returned when no face service script can be located.
var ErrServiceNotFound = errors.New("face service script not found")

// ServiceExtractor implements Extractor by delegating to an external face
// landmark process.
//
// Each request is one orientation byte, a 4-byte big-endian length and a JPEG
// frame written to the process's stdin. The process answers with one JSON
// line: {"faces": [...]}.
type ServiceExtractor struct {
	config     Config
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	lastUsed   time.Time
	idleTimer  *time.Timer
}

// NewServiceExtractor creates a new service-backed extractor.
// The process is started lazily on first detection.
func NewServiceExtractor(config Config) (*ServiceExtractor, error) {
	scriptPath := config.ServiceScript
	if scriptPath == "" {
		scriptPath = findServiceScript()
	}
	if scriptPath == "" {
		return nil, ErrServiceNotFound
	}
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("face service script: %w", err)
	}

	return &ServiceExtractor{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// Detect sends a frame to the service and returns the faces it reports.
func (d *ServiceExtractor) Detect(frame *gocv.Mat, orientation Orientation) ([]Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return nil, nil
	}

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	header := make([]byte, 5)
	header[0] = byte(orientation)
	binary.BigEndian.PutUint32(header[1:], uint32(len(data)))

	if _, err := d.stdin.Write(header); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	faces, err := parseServiceResponse(line)
	if err != nil {
		return nil, err
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return faces, nil
}

// Close shuts down the service process.
func (d *ServiceExtractor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *ServiceExtractor) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.scriptPath, "--accuracy", d.config.Accuracy.String())

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start face service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *ServiceExtractor) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *ServiceExtractor) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(serviceIdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ServiceScriptFile),
		filepath.Join("..", "scripts", ServiceScriptFile),
		filepath.Join(execDir, "scripts", ServiceScriptFile),
		filepath.Join(os.Getenv("HOME"), ".facewatch", "scripts", ServiceScriptFile),
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

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".facewatch/venv/bin/python"),
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

// jsonFace is the wire form of one face reported by the service.
type jsonFace struct {
	Bounds         *jsonRect  `json:"bounds"`
	Angle          *float64   `json:"angle"`
	LeftEye        *jsonPoint `json:"left_eye"`
	RightEye       *jsonPoint `json:"right_eye"`
	Mouth          *jsonPoint `json:"mouth"`
	Smiling        bool       `json:"smiling"`
	LeftEyeClosed  bool       `json:"left_eye_closed"`
	RightEyeClosed bool       `json:"right_eye_closed"`
}

type jsonRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p *jsonPoint) toPoint() *Point {
	if p == nil {
		return nil
	}
	return &Point{X: p.X, Y: p.Y}
}

func (f jsonFace) toFace() Face {
	face := Face{
		LeftEye:        f.LeftEye.toPoint(),
		RightEye:       f.RightEye.toPoint(),
		Mouth:          f.Mouth.toPoint(),
		Smiling:        f.Smiling,
		LeftEyeClosed:  f.LeftEyeClosed,
		RightEyeClosed: f.RightEyeClosed,
	}
	if f.Bounds != nil {
		face.Bounds = &Rect{X: f.Bounds.X, Y: f.Bounds.Y, Width: f.Bounds.W, Height: f.Bounds.H}
	}
	if f.Angle != nil {
		face.Angle = ptr(*f.Angle)
	}
	return face
}

func parseServiceResponse(line []byte) ([]Face, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("face service: %s", response.Error)
	}

	faces := make([]Face, len(response.Faces))
	for i, f := range response.Faces {
		faces[i] = f.toFace()
	}
	return faces, nil
}
