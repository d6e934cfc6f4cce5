// Package hook runs external commands when face events fire.
//
// A command receives the event as JSON on stdin and may answer with a JSON
// Response on stdout. Commands run off the tracker goroutine and each rule is
// rate limited independently.
package hook

import (
	"encoding/json"
	"time"

	"github.com/ayusman/facewatch/internal/events"
)

// Rule binds an event kind to a command.
type Rule struct {
	// Name identifies the rule in logs. Defaults to the command.
	Name string `yaml:"name"`

	// Kind is the event kind name to react to. Empty or "*" matches every kind.
	Kind string `yaml:"kind"`

	Command string   `yaml:"command" validate:"required"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`

	// Timeout bounds a single run. Zero uses DefaultTimeout.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// MinInterval is the minimum time between two runs of this rule. Events
	// arriving sooner are skipped.
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`

	// IncludeImage keeps the JPEG face image in the request.
	IncludeImage bool `yaml:"include_image"`
}

// Request is written to the command's stdin.
type Request struct {
	Rule  string       `json:"rule"`
	Event events.Event `json:"event"`
}

// Response is the optional reply read from the command's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
