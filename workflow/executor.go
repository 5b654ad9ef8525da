// Workflow executor.
//
// Information Hiding:
// - Step sequencing and the run state machine
// - Request resolution: catalog model, provider adapter, wire body
// - Accumulation of streamed increments into the result store
// - Per-step error capture and render dispatch

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	jsonutil "github.com/richinex/aecheck/internal/json"
	"github.com/richinex/aecheck/llm"
	"github.com/richinex/aecheck/stream"
)

// ErrInvalidJob is returned when a job lacks a store or a streamer.
var ErrInvalidJob = errors.New("invalid job")

// State is the executor's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Update is a render request.
type Update struct {
	Results Snapshot
	// Loading is true while the run is in progress.
	Loading bool
	// Force bypasses throttling; set on the final draw of every step.
	Force   bool
	Current string
	State   State
}

// Renderer receives render requests. Implementations decide whether to draw.
type Renderer interface {
	Request(Update)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Update)

// Request calls f(u).
func (f RendererFunc) Request(u Update) { f(u) }

// Options tunes an executor.
type Options struct {
	// StepTimeout bounds each step's stream. Zero means no limit.
	StepTimeout time.Duration
	// SlowDownDelay is the pause after each increment when Config.SlowDown is set.
	SlowDownDelay time.Duration
}

// DefaultSlowDownDelay is used when Options.SlowDownDelay is zero.
const DefaultSlowDownDelay = 5 * time.Millisecond

// Job is one run request.
type Job struct {
	Config   Config
	Store    *Store
	Streamer stream.Streamer
	Renderer Renderer
}

// Executor runs the steps of a table in order. One executor serves one
// session: starting a run cancels the previous one and waits for it.
type Executor struct {
	table    *Table
	catalog  *llm.Catalog
	registry *llm.Registry
	opts     Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	state   State
	current string
}

// NewExecutor creates an executor.
func NewExecutor(table *Table, catalog *llm.Catalog, registry *llm.Registry, opts Options) *Executor {
	if opts.SlowDownDelay <= 0 {
		opts.SlowDownDelay = DefaultSlowDownDelay
	}
	return &Executor{
		table:    table,
		catalog:  catalog,
		registry: registry,
		opts:     opts,
	}
}

// Table returns the executor's step table.
func (e *Executor) Table() *Table {
	return e.table
}

// State returns the run state and the title of the running step.
func (e *Executor) State() (State, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.current
}

func (e *Executor) setState(s State, current string) {
	e.mu.Lock()
	e.state, e.current = s, current
	e.mu.Unlock()
}

// Cancel stops the active run, if any, without waiting for it.
func (e *Executor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Execute runs every step and returns the final state. The run ends early
// only when ctx is done (or a later Execute supersedes it); the state is then
// StateAborted and the context error is returned.
func (e *Executor) Execute(ctx context.Context, job Job) (State, error) {
	if job.Store == nil || job.Streamer == nil {
		return StateIdle, fmt.Errorf("%w: store and streamer are required", ErrInvalidJob)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	prev := e.done
	e.cancel, e.done = cancel, done
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		if e.done == done {
			e.cancel, e.done = nil, nil
		}
		e.mu.Unlock()
		close(done)
	}()

	if prev != nil {
		<-prev
	}

	return e.run(runCtx, job)
}

func (e *Executor) run(ctx context.Context, job Job) (State, error) {
	runID := uuid.New().String()
	job.Store.Clear()
	e.setState(StateRunning, "")
	klog.V(1).Infof("run %s started: %d steps", runID, e.table.Len())

	for _, step := range e.table.steps {
		if ctx.Err() != nil {
			break
		}
		e.setState(StateRunning, step.Title)
		e.runStep(ctx, runID, job, step)
	}

	final := StateCompleted
	if ctx.Err() != nil {
		final = StateAborted
	}
	e.setState(final, "")
	render(job, Update{Results: job.Store.Snapshot(), Loading: false, Force: true, State: final})
	klog.V(1).Infof("run %s %s", runID, final)

	if final == StateAborted {
		return final, ctx.Err()
	}
	return final, nil
}

func render(job Job, u Update) {
	if job.Renderer != nil {
		job.Renderer.Request(u)
	}
}

// runStep executes one step. Failures are recorded as the step's result.
func (e *Executor) runStep(ctx context.Context, runID string, job Job, step Step) {
	update := func(force bool) {
		render(job, Update{
			Results: job.Store.Snapshot(),
			Loading: true,
			Force:   force,
			Current: step.Title,
			State:   StateRunning,
		})
	}
	fail := func(err error) {
		klog.Errorf("run %s step %q failed: %v", runID, step.Title, err)
		job.Store.Set(step.Title, Failed(err.Error()))
		update(true)
	}

	update(false)

	call, structured, err := e.prepare(step, job)
	if err != nil {
		fail(err)
		return
	}
	klog.V(2).Infof("run %s step %q: %s %s", runID, step.Title, call.Model.Provider, call.Model.ID)

	stepCtx := ctx
	if e.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.opts.StepTimeout)
		defer cancel()
	}

	out := make(chan stream.Increment)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- job.Streamer.Stream(stepCtx, call, out)
	}()

	failed := false
	for inc := range out {
		if failed {
			continue
		}
		switch {
		case inc.Err != "":
			klog.Warningf("run %s step %q: error event: %s", runID, step.Title, inc.Err)
			job.Store.Set(step.Title, Failed(inc.Err))
			failed = true
		case structured:
			job.Store.Set(step.Title, Structured(jsonutil.ParseObject(inc.Content)))
		default:
			job.Store.Set(step.Title, Text(inc.Content))
		}
		update(false)

		if job.Config.SlowDown {
			select {
			case <-time.After(e.opts.SlowDownDelay):
			case <-stepCtx.Done():
			}
		}
	}

	if err := <-errCh; err != nil && ctx.Err() == nil {
		if errors.Is(err, context.DeadlineExceeded) && stepCtx.Err() != nil {
			err = fmt.Errorf("step timed out after %s", e.opts.StepTimeout)
		}
		fail(err)
		return
	}
	update(true)
}

// prepare builds the step payload and resolves it into a transport call.
func (e *Executor) prepare(step Step, job Job) (stream.Call, bool, error) {
	payload, err := step.Build(e.table.inputs(step, job.Store.Snapshot(), job.Config))
	if err != nil {
		return stream.Call{}, false, fmt.Errorf("build request: %w", err)
	}

	model, err := e.catalog.At(payload.ModelIndex)
	if err != nil {
		return stream.Call{}, false, err
	}
	adapter, ok := e.registry.Lookup(model.Provider)
	if !ok {
		return stream.Call{}, false, fmt.Errorf("no adapter registered for provider %s", model.Provider)
	}

	req := llm.ChatRequest{
		Model:          model.ID,
		Messages:       payload.Messages,
		Stream:         true,
		ResponseFormat: payload.Schema,
	}
	body, err := json.Marshal(adapter.Transform(req))
	if err != nil {
		return stream.Call{}, false, fmt.Errorf("encode request: %w", err)
	}

	return stream.Call{
		Model:   model,
		URL:     adapter.URL(model.ID),
		Body:    body,
		Request: req,
	}, payload.Schema.HasSchema(), nil
}
