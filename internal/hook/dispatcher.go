package hook

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/facewatch/internal/events"
)

type boundRule struct {
	rule    Rule
	all     bool
	kind    events.Kind
	limiter *rate.Limiter
}

func (b *boundRule) matches(kind events.Kind) bool {
	return b.all || b.kind == kind
}

// Stats counts dispatcher outcomes.
type Stats struct {
	Runs    uint64 `json:"runs"`
	Failed  uint64 `json:"failed"`
	Limited uint64 `json:"limited"`
}

// Dispatcher runs matching rules for each event it handles.
type Dispatcher struct {
	rules    []*boundRule
	executor *Executor
	log      logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	runs    atomic.Uint64
	failed  atomic.Uint64
	limited atomic.Uint64

	mu     sync.Mutex
	detach func()
}

// NewDispatcher validates rules and builds a Dispatcher.
func NewDispatcher(rules []Rule, executor *Executor, log logrus.FieldLogger) (*Dispatcher, error) {
	if executor == nil {
		executor = NewExecutor(0)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	bound := make([]*boundRule, 0, len(rules))
	for i, r := range rules {
		if r.Command == "" {
			return nil, fmt.Errorf("hook %d: command is required", i)
		}
		if r.Name == "" {
			r.Name = r.Command
		}

		b := &boundRule{rule: r, limiter: rate.NewLimiter(rate.Inf, 1)}
		if r.MinInterval > 0 {
			b.limiter = rate.NewLimiter(rate.Every(r.MinInterval), 1)
		}

		switch r.Kind {
		case "", "*":
			b.all = true
		default:
			kind, err := events.ParseKind(r.Kind)
			if err != nil {
				return nil, fmt.Errorf("hook %q: %w", r.Name, err)
			}
			b.kind = kind
		}

		bound = append(bound, b)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		rules:    bound,
		executor: executor,
		log:      log.WithField("component", "hook"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Len returns the number of rules.
func (d *Dispatcher) Len() int {
	return len(d.rules)
}

// Handle runs every matching rule for e, one after another. It blocks for
// as long as the commands run, so it is normally called through Attach.
func (d *Dispatcher) Handle(e events.Event) {
	for _, b := range d.rules {
		if !b.matches(e.Kind) {
			continue
		}
		if !b.limiter.Allow() {
			d.limited.Add(1)
			continue
		}

		req := &Request{Rule: b.rule.Name, Event: e}
		if !b.rule.IncludeImage {
			req.Event.Image = nil
		}

		log := d.log.WithFields(logrus.Fields{"hook": b.rule.Name, "kind": e.Kind})

		d.runs.Add(1)
		resp, err := d.executor.Execute(d.ctx, &b.rule, req)
		switch {
		case err != nil:
			d.failed.Add(1)
			log.WithError(err).Warn("hook failed")
		case resp != nil && !resp.Success:
			d.failed.Add(1)
			log.WithField("error", resp.Error).Warn("hook reported failure")
		default:
			log.Debug("hook ran")
		}
	}
}

// Attach subscribes the dispatcher to bus through a Queue, so commands run
// on their own goroutine. Attaching again replaces the previous subscription.
func (d *Dispatcher) Attach(bus *events.Bus, queueSize int) {
	q := events.NewQueue(queueSize, d.Handle)
	unsubscribe := bus.SubscribeAll(q.Handle)

	d.mu.Lock()
	prev := d.detach
	d.detach = func() {
		unsubscribe()
		q.Close()
	}
	d.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Close detaches from the bus, cancels running commands and waits for the
// queue to drain.
func (d *Dispatcher) Close() {
	d.cancel()

	d.mu.Lock()
	detach := d.detach
	d.detach = nil
	d.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// Stats returns run counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Runs:    d.runs.Load(),
		Failed:  d.failed.Load(),
		Limited: d.limited.Load(),
	}
}
