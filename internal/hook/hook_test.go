package hook

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/facewatch/internal/events"
)

func writeScript(t *testing.T, name, content string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func smileEvent() events.Event {
	return events.Event{ID: "evt-1", Kind: events.Smiling, Seq: 7, At: time.Now()}
}

func TestExecutor_Execute(t *testing.T) {
	script := writeScript(t, "ok.sh", `#!/bin/sh
cat <<'EOF'
{"success":true,"data":{"message":"hello world"}}
EOF
`)

	resp, err := NewExecutor(0).Execute(context.Background(), &Rule{Command: script}, &Request{Rule: "ok", Event: smileEvent()})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if resp == nil || !resp.Success {
		t.Fatalf("response = %+v, want success", resp)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	script := writeScript(t, "echo.sh", `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	resp, err := NewExecutor(0).Execute(context.Background(), &Rule{Command: script}, &Request{Rule: "echo", Event: smileEvent()})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	if data.Received.Rule != "echo" {
		t.Errorf("rule = %q, want echo", data.Received.Rule)
	}
	if data.Received.Event.Kind != events.Smiling {
		t.Errorf("kind = %v, want smiling", data.Received.Event.Kind)
	}
	if data.Received.Event.Seq != 7 {
		t.Errorf("seq = %d, want 7", data.Received.Event.Seq)
	}
}

func TestExecutor_Execute_Args(t *testing.T) {
	script := writeScript(t, "args.sh", `#!/bin/sh
echo "{\"success\":true,\"data\":\"$1-$2\"}"
`)

	resp, err := NewExecutor(0).Execute(context.Background(), &Rule{Command: script, Args: []string{"a", "b"}}, &Request{})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if string(resp.Data) != `"a-b"` {
		t.Errorf("data = %s, want \"a-b\"", resp.Data)
	}
}

func TestExecutor_EmptyOutput(t *testing.T) {
	script := writeScript(t, "quiet.sh", "#!/bin/sh\ncat > /dev/null\n")

	resp, err := NewExecutor(0).Execute(context.Background(), &Rule{Command: script}, &Request{})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if resp != nil {
		t.Errorf("response = %+v, want nil for empty output", resp)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	script := writeScript(t, "slow.sh", "#!/bin/sh\nsleep 10\n")

	rule := &Rule{Command: script, Timeout: 100 * time.Millisecond}
	_, err := NewExecutor(0).Execute(context.Background(), rule, &Request{})

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}
}

func TestExecutor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{
			name:    "exit status",
			script:  "#!/bin/sh\necho 'boom' >&2\nexit 3\n",
			wantErr: "stderr: boom",
		},
		{
			name:    "invalid json",
			script:  "#!/bin/sh\necho 'not valid json'\n",
			wantErr: "failed to parse hook response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := writeScript(t, "fail.sh", tt.script)

			_, err := NewExecutor(0).Execute(context.Background(), &Rule{Command: script}, &Request{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		wantErr bool
	}{
		{name: "empty", rules: nil},
		{name: "all kinds", rules: []Rule{{Command: "true"}, {Command: "true", Kind: "*"}}},
		{name: "one kind", rules: []Rule{{Command: "true", Kind: "left-eye-closed"}}},
		{name: "missing command", rules: []Rule{{Kind: "smiling"}}, wantErr: true},
		{name: "unknown kind", rules: []Rule{{Command: "true", Kind: "frowning"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcher(tt.rules, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDispatcher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				defer d.Close()
				if d.Len() != len(tt.rules) {
					t.Errorf("Len() = %d, want %d", d.Len(), len(tt.rules))
				}
			}
		})
	}
}

// appendScript writes a script that appends the event kind it receives to out.
func appendScript(t *testing.T, out string) string {
	return writeScript(t, "append.sh", `#!/bin/sh
grep -o '"kind":"[a-z-]*"' >> "`+out+`"
`)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Fields(string(data))
}

func TestDispatcher_MatchesKind(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := appendScript(t, out)

	d, err := NewDispatcher([]Rule{{Name: "smile", Kind: "smiling", Command: script}}, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	defer d.Close()

	d.Handle(events.Event{Kind: events.Blinking})
	d.Handle(events.Event{Kind: events.Smiling})

	lines := readLines(t, out)
	if len(lines) != 1 || lines[0] != `"kind":"smiling"` {
		t.Errorf("hook saw %v, want one smiling event", lines)
	}
	if s := d.Stats(); s.Runs != 1 || s.Failed != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := appendScript(t, out)

	d, err := NewDispatcher([]Rule{{Command: script, MinInterval: time.Hour}}, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	defer d.Close()

	for i := 0; i < 3; i++ {
		d.Handle(events.Event{Kind: events.Winking})
	}

	if lines := readLines(t, out); len(lines) != 1 {
		t.Errorf("hook ran %d times, want 1", len(lines))
	}
	if s := d.Stats(); s.Limited != 2 {
		t.Errorf("Limited = %d, want 2", s.Limited)
	}
}

func TestDispatcher_StripsImage(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	script := writeScript(t, "save.sh", `#!/bin/sh
cat > "`+out+`"
`)

	tests := []struct {
		name         string
		includeImage bool
	}{
		{name: "stripped", includeImage: false},
		{name: "included", includeImage: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDispatcher([]Rule{{Command: script, IncludeImage: tt.includeImage}}, nil, nil)
			if err != nil {
				t.Fatalf("NewDispatcher() error = %v", err)
			}
			defer d.Close()

			d.Handle(events.Event{Kind: events.FaceDetected, Image: []byte{0xff, 0xd8}})

			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			var req Request
			if err := json.Unmarshal(data, &req); err != nil {
				t.Fatalf("unmarshal request: %v", err)
			}
			if got := len(req.Event.Image) > 0; got != tt.includeImage {
				t.Errorf("image present = %v, want %v", got, tt.includeImage)
			}
		})
	}
}

func TestDispatcher_CountsFailures(t *testing.T) {
	script := writeScript(t, "nope.sh", "#!/bin/sh\necho '{\"success\":false,\"error\":\"nope\"}'\n")

	d, err := NewDispatcher([]Rule{{Command: script}}, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	defer d.Close()

	d.Handle(events.Event{Kind: events.Blinking})

	if s := d.Stats(); s.Runs != 1 || s.Failed != 1 {
		t.Errorf("Stats() = %+v, want 1 run 1 failure", s)
	}
}

func TestDispatcher_Attach(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := appendScript(t, out)

	d, err := NewDispatcher([]Rule{{Command: script}}, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	bus := events.NewBus()
	d.Attach(bus, 0)

	bus.Publish(events.Event{Kind: events.FaceDetected})
	bus.Publish(events.Event{Kind: events.NoFaceDetected})

	// Wait for both commands before closing, since Close cancels running ones.
	deadline := time.Now().Add(5 * time.Second)
	for len(readLines(t, out)) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	d.Close()

	lines := readLines(t, out)
	want := []string{`"kind":"face-detected"`, `"kind":"no-face-detected"`}
	if len(lines) != len(want) {
		t.Fatalf("hook saw %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %s, want %s", i, lines[i], want[i])
		}
	}
	if bus.Len() != 0 {
		t.Errorf("bus still has %d subscriptions after Close", bus.Len())
	}
}
