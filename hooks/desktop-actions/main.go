// Package main is a facewatch hook that reacts to face events with desktop
// actions: notifications, locking the screen and pausing media.
//
// Select the action with the first argument, for example:
//
//	hooks:
//	  - kind: no-face-detected
//	    command: desktop-actions
//	    args: [lock-screen]
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/ayusman/facewatch/internal/hook"
)

// actionHandler handles one action for the received request.
type actionHandler func(req *hook.Request) error

var actionHandlers = map[string]actionHandler{
	"notify":      notify,
	"lock-screen": lockScreen,
	"media-pause": mediaPause,
}

func main() {
	if len(os.Args) < 2 {
		writeErrorResponse("usage: desktop-actions <notify|lock-screen|media-pause>")
		return
	}
	action := os.Args[1]

	var req hook.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	handler, ok := actionHandlers[action]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", action))
		return
	}

	if err := handler(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", action, err))
		return
	}

	json.NewEncoder(os.Stdout).Encode(hook.Response{Success: true})
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(hook.Response{
		Success: false,
		Error:   errMsg,
	})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// message returns the notification text for an event.
func message(req *hook.Request) string {
	return fmt.Sprintf("%s (frame %d)", req.Event.Kind, req.Event.Seq)
}

func notify(req *hook.Request) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title "facewatch"`, message(req))
		return run("osascript", "-e", script)
	case "linux":
		return run("notify-send", "facewatch", message(req))
	default:
		return fmt.Errorf("notifications are not supported on %s", runtime.GOOS)
	}
}

func lockScreen(*hook.Request) error {
	switch runtime.GOOS {
	case "darwin":
		return run("pmset", "displaysleepnow")
	case "linux":
		return run("loginctl", "lock-session")
	case "windows":
		return run("rundll32.exe", "user32.dll,LockWorkStation")
	default:
		return fmt.Errorf("screen locking is not supported on %s", runtime.GOOS)
	}
}

// mediaPause pauses playback with the Play/Pause media key or playerctl.
func mediaPause(*hook.Request) error {
	switch runtime.GOOS {
	case "darwin":
		return run("osascript", "-e", `tell application "System Events"
	key code 100
end tell`)
	case "linux":
		return run("playerctl", "pause")
	default:
		return fmt.Errorf("media control is not supported on %s", runtime.GOOS)
	}
}
