// Package emergency provides the containment primitives that bound what
// the authorization pipeline may do while it runs: scoped operations with
// recursion and timeout limits, a global monotonic stop flag, and a
// circuit breaker for discrete risky operations.
package emergency

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/wardenhq/warden/internal/events"
)

// depthKey carries the recursion depth of the current logical call chain.
// Depth travels with the context, not a global counter, so concurrent
// call chains cannot corrupt each other's nesting count.
type depthKey struct{}

func depthFrom(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}

// Limits configures the controller's hard bounds.
type Limits struct {
	// MaxRecursionDepth is the deepest allowed operation nesting.
	MaxRecursionDepth int

	// MaxOperationTime is the wall-clock allowance per operation,
	// observed at cooperative checkpoints.
	MaxOperationTime time.Duration
}

// Operation is the handle for one guarded unit of work. It is created on
// entry and must be released on every exit path.
type Operation struct {
	ID          events.OperationID
	Description string
	StartedAt   time.Time
	Depth       int

	ctrl *Controller
	done bool
	mu   sync.Mutex
}

// End releases the operation. It is idempotent so deferred calls are safe
// alongside early releases.
func (o *Operation) End() {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.done = true
	o.mu.Unlock()

	o.ctrl.release(o)
}

// Controller tracks active operations and owns the global stop flag.
// The registry and the flag are the only shared mutable state in the
// pipeline; both live behind a single mutex.
type Controller struct {
	mu sync.Mutex

	limits  Limits
	ops     map[string]*Operation
	stopped bool
	reason  string

	store StopStateStore
}

// Status is a read-only snapshot of the controller state.
type Status struct {
	StopRequested        bool          `json:"stop_requested"`
	StopReason           string        `json:"stop_reason,omitempty"`
	ActiveOperationCount int           `json:"active_operation_count"`
	MaxRecursionDepth    int           `json:"max_recursion_depth"`
	MaxOperationTime     time.Duration `json:"max_operation_time"`
}

// NewController creates a controller with the given limits. The store is
// optional; when present, Stop and Reset persist the flag so replicas
// sharing the store observe it.
func NewController(limits Limits, store StopStateStore) *Controller {
	return &Controller{
		limits: limits,
		ops:    make(map[string]*Operation),
		store:  store,
	}
}

// Begin registers a guarded operation and returns a derived context that
// carries the new recursion depth. It fails with *EmergencyStopError when
// the stop flag is set or the nesting limit would be exceeded. The caller
// must call End on every exit path.
func (c *Controller) Begin(ctx context.Context, description string) (context.Context, *Operation, error) {
	depth := depthFrom(ctx) + 1

	c.mu.Lock()
	if c.stopped {
		reason := c.reason
		c.mu.Unlock()
		return ctx, nil, &EmergencyStopError{Reason: reason}
	}
	if c.limits.MaxRecursionDepth > 0 && depth > c.limits.MaxRecursionDepth {
		c.mu.Unlock()
		return ctx, nil, &EmergencyStopError{
			Reason: "max recursion depth exceeded: " + description,
		}
	}

	op := &Operation{
		ID:          events.NewOperationID(),
		Description: description,
		StartedAt:   time.Now(),
		Depth:       depth,
		ctrl:        c,
	}
	c.ops[op.ID.String()] = op
	c.mu.Unlock()

	util.Log(ctx).Debug("operation started",
		"operation_id", op.ID.String(),
		"description", description,
		"depth", depth,
	)

	return context.WithValue(ctx, depthKey{}, depth), op, nil
}

func (c *Controller) release(op *Operation) {
	c.mu.Lock()
	delete(c.ops, op.ID.String())
	c.mu.Unlock()
}

// CheckStop raises *EmergencyStopError if the global stop flag is set.
// Callers invoke it at cooperative checkpoints; nothing is interrupted
// preemptively.
func (c *Controller) CheckStop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return &EmergencyStopError{Reason: c.reason}
	}
	return nil
}

// CheckTimeout raises *TimeoutExceededError if the operation has run past
// the configured allowance. Like CheckStop, it only takes effect when a
// checkpoint is actually reached.
func (c *Controller) CheckTimeout(op *Operation) error {
	if c.limits.MaxOperationTime <= 0 {
		return nil
	}

	elapsed := time.Since(op.StartedAt)
	if elapsed > c.limits.MaxOperationTime {
		return &TimeoutExceededError{
			OperationID: op.ID.String(),
			Description: op.Description,
			Elapsed:     elapsed,
			Limit:       c.limits.MaxOperationTime,
		}
	}
	return nil
}

// Stop sets the global stop flag. The flag is monotonic: every subsequent
// CheckStop and Begin fails until Reset is called explicitly.
func (c *Controller) Stop(ctx context.Context, reason string) {
	c.mu.Lock()
	c.stopped = true
	c.reason = reason
	c.mu.Unlock()

	util.Log(ctx).Warn("emergency stop activated", "reason", reason)

	if c.store != nil {
		if err := c.store.Activate(ctx, reason); err != nil {
			util.Log(ctx).Error("persist emergency stop state", "err", err)
		}
	}
}

// Reset clears the stop flag. Only an explicit reset clears it.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	c.stopped = false
	c.reason = ""
	c.mu.Unlock()

	util.Log(ctx).Info("emergency stop cleared")

	if c.store != nil {
		if err := c.store.Deactivate(ctx); err != nil {
			util.Log(ctx).Error("clear emergency stop state", "err", err)
		}
	}
}

// RefreshFromStore pulls the shared stop state, so a stop raised by
// another replica is observed before a new batch starts. A store error
// leaves local state untouched; the local flag is authoritative.
func (c *Controller) RefreshFromStore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	active, reason, err := c.store.Get(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if active && !c.stopped {
		c.stopped = true
		c.reason = reason
	}
	c.mu.Unlock()
	return nil
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		StopRequested:        c.stopped,
		StopReason:           c.reason,
		ActiveOperationCount: len(c.ops),
		MaxRecursionDepth:    c.limits.MaxRecursionDepth,
		MaxOperationTime:     c.limits.MaxOperationTime,
	}
}
