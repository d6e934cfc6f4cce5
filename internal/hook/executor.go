package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultTimeout applies to rules without a Timeout.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("hook timed out")

// Executor handles the execution of hook commands with timeout support.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor. A timeout <= 0 uses DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		timeout: timeout,
	}
}

// Execute runs the rule's command with req as JSON on stdin.
// Empty stdout is a success with no Response; anything else must parse as a
// Response.
func (e *Executor) Execute(ctx context.Context, rule *Rule, req *Request) (*Response, error) {
	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, rule.Command, rule.Args...)
	cmd.Dir = rule.Dir

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			return nil, fmt.Errorf("hook execution failed: %w, stderr: %s", err, s)
		}
		return nil, fmt.Errorf("hook execution failed: %w", err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}

	var response Response
	if err := json.Unmarshal(out, &response); err != nil {
		return nil, fmt.Errorf("failed to parse hook response: %w, stdout: %s", err, out)
	}

	return &response, nil
}
