package terrain

import (
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/istavang/medea.js/pkg/math"
)

// CommandTangentSpace computes per-vertex normals, tangents and bitangents.
// Its argument is a TangentSpaceArgs and its result a TangentSpace.
const CommandTangentSpace = "GenHeightfieldTangentSpace"

// TangentSpaceArgs is the argument of CommandTangentSpace.
type TangentSpaceArgs struct {
	Positions []math.Vec3
	Width     int
	Height    int
}

// CommandFunc is an offloadable computation. It runs on a worker goroutine
// and must not touch state owned by the update goroutine.
type CommandFunc func(args any) (any, error)

type pendingJob struct {
	task *Task
	cb   func(any, error)
}

type jobResult struct {
	id    uint64
	value any
	err   error
}

// Dispatcher runs registered commands on a worker pool and hands results
// back to the update goroutine through Poll. With zero workers it runs each
// command synchronously inside Dispatch.
type Dispatcher struct {
	commands map[string]CommandFunc
	pool     pond.Pool
	log      *zap.Logger

	nextID  uint64
	pending map[uint64]*pendingJob
	closed  bool

	mu      sync.Mutex
	results []jobResult
}

// NewDispatcher creates a dispatcher with the given number of workers and
// CommandTangentSpace registered.
func NewDispatcher(workers int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		commands: make(map[string]CommandFunc),
		log:      log,
		pending:  make(map[uint64]*pendingJob),
	}
	if workers > 0 {
		d.pool = pond.NewPool(workers)
	}
	d.Register(CommandTangentSpace, tangentSpaceCommand)
	return d
}

func tangentSpaceCommand(args any) (any, error) {
	a, ok := args.(TangentSpaceArgs)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected argument %T", CommandTangentSpace, args)
	}
	if len(a.Positions) != a.Width*a.Height {
		return nil, fmt.Errorf("%s: %d positions for %dx%d grid", CommandTangentSpace, len(a.Positions), a.Width, a.Height)
	}
	return GenTangentSpace(a.Positions, a.Width, a.Height), nil
}

// Register adds or replaces a command.
func (d *Dispatcher) Register(name string, fn CommandFunc) {
	d.commands[name] = fn
}

// Async reports whether commands run on worker goroutines.
func (d *Dispatcher) Async() bool {
	return d.pool != nil
}

// Pending returns the number of jobs awaiting delivery.
func (d *Dispatcher) Pending() int {
	return len(d.pending)
}

// Dispatch runs command with args. cb is called from Poll once the result
// is available, or before Dispatch returns in synchronous mode. Cancelling
// the returned task drops the result. After Close it returns a cancelled task
// and never calls cb.
func (d *Dispatcher) Dispatch(command string, args any, cb func(any, error)) *Task {
	if d.closed {
		d.log.Debug("dispatch after close", zap.String("command", command))
		task := newTask()
		task.Cancel()
		return task
	}
	fn, ok := d.commands[command]
	if !ok {
		cb(nil, fmt.Errorf("unknown offload command %q", command))
		return completedTask()
	}

	task := newTask()
	if d.pool == nil {
		res, err := fn(args)
		if task.finish() {
			cb(res, err)
		}
		return task
	}

	id := d.nextID
	d.nextID++
	d.pending[id] = &pendingJob{task: task, cb: cb}

	d.pool.Submit(func() {
		res, err := fn(args)
		d.mu.Lock()
		d.results = append(d.results, jobResult{id: id, value: res, err: err})
		d.mu.Unlock()
	})
	return task
}

// Poll delivers every finished job to its callback. It must be called from
// the update goroutine.
func (d *Dispatcher) Poll() error {
	d.mu.Lock()
	results := d.results
	d.results = nil
	d.mu.Unlock()

	for _, r := range results {
		if err := d.deliver(r); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) deliver(r jobResult) error {
	job, ok := d.pending[r.id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownJob, r.id)
	}
	delete(d.pending, r.id)

	if job.task.finish() {
		job.cb(r.value, r.err)
	}
	return nil
}

// Close waits for running jobs and discards every pending callback.
func (d *Dispatcher) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.pool != nil {
		d.pool.StopAndWait()
	}
	if n := len(d.pending); n > 0 {
		d.log.Debug("discarding pending offload jobs", zap.Int("count", n))
	}
	d.pending = make(map[uint64]*pendingJob)

	d.mu.Lock()
	d.results = nil
	d.mu.Unlock()
}
