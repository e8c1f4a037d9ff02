package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController() *Controller {
	return NewController(Limits{
		MaxRecursionDepth: 3,
		MaxOperationTime:  time.Second,
	}, nil)
}

func TestController_BeginEnd(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	opCtx, op, err := c.Begin(ctx, "scan batch")

	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, 1, op.Depth)
	assert.Equal(t, 1, c.Status().ActiveOperationCount)
	assert.NotEqual(t, ctx, opCtx)

	op.End()
	assert.Equal(t, 0, c.Status().ActiveOperationCount)
}

func TestController_EndIsIdempotent(t *testing.T) {
	c := newTestController()

	_, op, err := c.Begin(context.Background(), "work")
	require.NoError(t, err)

	op.End()
	op.End()
	assert.Equal(t, 0, c.Status().ActiveOperationCount)
}

func TestController_RecursionDepthLimit(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	// Three nested operations are allowed.
	var ops []*Operation
	for i := 0; i < 3; i++ {
		next, op, err := c.Begin(ctx, "nested")
		require.NoError(t, err)
		ctx = next
		ops = append(ops, op)
	}
	assert.Equal(t, 3, ops[2].Depth)

	// The fourth is not.
	_, op, err := c.Begin(ctx, "too deep")
	require.Error(t, err)
	assert.Nil(t, op)
	var stopErr *EmergencyStopError
	assert.ErrorAs(t, err, &stopErr)

	for _, op := range ops {
		op.End()
	}
}

func TestController_DepthIsPerCallChain(t *testing.T) {
	c := newTestController()
	root := context.Background()

	ctxA, opA, err := c.Begin(root, "chain a")
	require.NoError(t, err)
	_, opA2, err := c.Begin(ctxA, "chain a nested")
	require.NoError(t, err)

	// A sibling chain starting from the root is depth 1, regardless of
	// how deep the other chain is.
	_, opB, err := c.Begin(root, "chain b")
	require.NoError(t, err)
	assert.Equal(t, 1, opB.Depth)
	assert.Equal(t, 2, opA2.Depth)

	opA.End()
	opA2.End()
	opB.End()
}

func TestController_StopIsMonotonic(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	require.NoError(t, c.CheckStop(ctx))

	c.Stop(ctx, "operator initiated")

	err := c.CheckStop(ctx)
	require.Error(t, err)
	var stopErr *EmergencyStopError
	require.ErrorAs(t, err, &stopErr)
	assert.Contains(t, stopErr.Reason, "operator initiated")

	// Still stopped; Begin refuses too.
	_, _, err = c.Begin(ctx, "work")
	assert.Error(t, err)

	// Only an explicit reset clears it.
	c.Reset(ctx)
	assert.NoError(t, c.CheckStop(ctx))
	_, op, err := c.Begin(ctx, "work")
	require.NoError(t, err)
	op.End()
}

func TestController_CheckTimeout(t *testing.T) {
	c := NewController(Limits{MaxRecursionDepth: 3, MaxOperationTime: 10 * time.Millisecond}, nil)

	_, op, err := c.Begin(context.Background(), "slow work")
	require.NoError(t, err)
	defer op.End()

	assert.NoError(t, c.CheckTimeout(op))

	op.StartedAt = time.Now().Add(-time.Minute)

	err = c.CheckTimeout(op)
	require.Error(t, err)
	var toErr *TimeoutExceededError
	require.ErrorAs(t, err, &toErr)
	assert.Equal(t, "slow work", toErr.Description)
}

func TestController_CheckTimeoutDisabled(t *testing.T) {
	c := NewController(Limits{MaxRecursionDepth: 3}, nil)

	_, op, err := c.Begin(context.Background(), "work")
	require.NoError(t, err)
	defer op.End()

	op.StartedAt = time.Now().Add(-time.Hour)
	assert.NoError(t, c.CheckTimeout(op))
}

func TestController_StorePersistence(t *testing.T) {
	store := NewMemoryStopStore()
	c := NewController(Limits{MaxRecursionDepth: 3}, store)
	ctx := context.Background()

	c.Stop(ctx, "shared halt")

	active, reason, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, "shared halt", reason)

	c.Reset(ctx)
	active, _, err = store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestController_RefreshFromStore(t *testing.T) {
	store := NewMemoryStopStore()
	ctx := context.Background()

	// Another replica raises the stop.
	require.NoError(t, store.Activate(ctx, "raised elsewhere"))

	c := NewController(Limits{MaxRecursionDepth: 3}, store)
	require.NoError(t, c.CheckStop(ctx))

	require.NoError(t, c.RefreshFromStore(ctx))

	err := c.CheckStop(ctx)
	require.Error(t, err)
	var stopErr *EmergencyStopError
	require.ErrorAs(t, err, &stopErr)
	assert.Equal(t, "raised elsewhere", stopErr.Reason)
}

func TestController_Status(t *testing.T) {
	c := newTestController()
	ctx := context.Background()

	_, op, err := c.Begin(ctx, "work")
	require.NoError(t, err)

	st := c.Status()
	assert.False(t, st.StopRequested)
	assert.Equal(t, 1, st.ActiveOperationCount)
	assert.Equal(t, 3, st.MaxRecursionDepth)

	op.End()
	c.Stop(ctx, "halt")
	st = c.Status()
	assert.True(t, st.StopRequested)
	assert.Equal(t, "halt", st.StopReason)
}
