package authz

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wardenhq/warden/apps/warden/config"
	"github.com/wardenhq/warden/internal/approval"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/emergency"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/guard"
	"github.com/wardenhq/warden/internal/proposal"
	"github.com/wardenhq/warden/internal/scan"
)

// fakeEmitter records emitted events in order.
type fakeEmitter struct {
	names    []string
	payloads []any
}

func (e *fakeEmitter) Emit(_ context.Context, eventName string, payload any) error {
	e.names = append(e.names, eventName)
	e.payloads = append(e.payloads, payload)
	return nil
}

func (e *fakeEmitter) last(t *testing.T, name string) any {
	t.Helper()
	for i := len(e.names) - 1; i >= 0; i-- {
		if e.names[i] == name {
			return e.payloads[i]
		}
	}
	t.Fatalf("no %s event emitted, got %v", name, e.names)
	return nil
}

// fakeApplier records apply calls without touching disk.
type fakeApplier struct {
	applied []string
	err     error
}

func (a *fakeApplier) Apply(_ context.Context, canonicalPath, _, _ string) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, canonicalPath)
	return nil
}

type handlerFixture struct {
	handler *FixBatchHandler
	emitter *fakeEmitter
	applier *fakeApplier
	ctrl    *emergency.Controller
	repo    audit.DecisionRepository
}

func newTestHandler(t *testing.T, mutate func(*appconfig.WardenConfig, *fakeApplier)) *handlerFixture {
	t.Helper()

	cfg := &appconfig.WardenConfig{
		AutoApproveSafe:         true,
		AutoApproveThreshold:    70,
		AutoApprovableTypes:     "whitespace_cleanup,typo_corrections,unused_imports",
		MaxRecursionDepth:       3,
		MaxOperationSeconds:     300,
		BreakerFailureThreshold: 3,
		BreakerRecoverySeconds:  60,
		ProjectRoot:             t.TempDir(),
		ApplyRatePerSecond:      1000,
		ApplyBurst:              100,
	}
	applier := &fakeApplier{}
	if mutate != nil {
		mutate(cfg, applier)
	}

	ctrl := emergency.NewController(cfg.EmergencyLimits(), nil)
	breaker := emergency.NewBreaker(
		cfg.BreakerFailureThreshold,
		time.Duration(cfg.BreakerRecoverySeconds)*time.Second,
	)
	boundary, err := guard.NewBoundary(cfg.ProjectRoot)
	require.NoError(t, err)

	engine := approval.NewEngine(cfg.ApprovalConfig(), scan.NewScanner(), nil, ctrl)
	repo := audit.NewDecisionRepository(context.Background(), nil)
	emitter := &fakeEmitter{}

	return &handlerFixture{
		handler: NewFixBatchHandler(
			cfg, engine, scan.NewVeto(), boundary, ctrl, breaker, applier, repo, emitter,
		),
		emitter: emitter,
		applier: applier,
		ctrl:    ctrl,
		repo:    repo,
	}
}

func marshalBatch(t *testing.T, batchID events.BatchID, issues ...events.IssueRecord) []byte {
	t.Helper()
	payload, err := json.Marshal(events.FixBatchRequestedPayload{
		BatchID:     batchID,
		RequestedAt: time.Now(),
		Issues:      issues,
	})
	require.NoError(t, err)
	return payload
}

func TestHandler_CleanBatchAppliedAndReported(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()

	payload := marshalBatch(t, batchID, events.IssueRecord{
		FilePath:       "pkg/util/strings.go",
		Type:           "whitespace_cleanup",
		Severity:       "cosmetic",
		OriginalCode:   "x = 1   \n",
		ProposedFix:    "x = 1\n",
		SafetyScore:    99,
		AutoApprovable: true,
	})

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	require.Len(t, f.applier.applied, 1)

	completed := f.emitter.last(t, events.FixBatchCompleted.String()).(*events.FixBatchCompletedPayload)
	assert.Equal(t, batchID, completed.BatchID)
	assert.Equal(t, 1, completed.Approved)
	assert.Equal(t, 0, completed.Rejected)
	require.Len(t, completed.Decisions, 1)
	assert.True(t, completed.Decisions[0].Applied)

	records, err := f.repo.ListByBatch(context.Background(), batchID.String())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Applied)
}

func TestHandler_MalformedRecordRejectedIndividually(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()

	payload := marshalBatch(t, batchID,
		events.IssueRecord{
			// Missing file_path.
			Type:        "whitespace_cleanup",
			ProposedFix: "x = 1\n",
		},
		events.IssueRecord{
			FilePath:       "pkg/a.go",
			Type:           "whitespace_cleanup",
			OriginalCode:   "y = 2 \n",
			ProposedFix:    "y = 2\n",
			SafetyScore:    95,
			AutoApprovable: true,
		},
	)

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	completed := f.emitter.last(t, events.FixBatchCompleted.String()).(*events.FixBatchCompletedPayload)
	assert.Equal(t, 1, completed.Approved)
	assert.Equal(t, 1, completed.Rejected)
	assert.Len(t, completed.Decisions, 2)
	assert.Len(t, f.applier.applied, 1)
}

func TestHandler_VetoBlocksApprovedProposal(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()

	// A bare eval token passes the approval-stage scanner but not the
	// broader veto pattern set.
	payload := marshalBatch(t, batchID, events.IssueRecord{
		FilePath:       "pkg/handlers.go",
		Type:           "unused_imports",
		OriginalCode:   "handler = process",
		ProposedFix:    "handler = eval",
		SafetyScore:    90,
		AutoApprovable: true,
	})

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	assert.Empty(t, f.applier.applied)

	blocked := f.emitter.last(t, events.FixProposalBlocked.String()).(*events.ProposalBlockedPayload)
	assert.Equal(t, "pkg/handlers.go", blocked.FilePath)
	assert.NotEmpty(t, blocked.Patterns)

	completed := f.emitter.last(t, events.FixBatchCompleted.String()).(*events.FixBatchCompletedPayload)
	assert.Equal(t, 0, completed.Approved)
	assert.Equal(t, 1, completed.Blocked)
}

func TestHandler_BoundaryViolationBlocks(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()

	payload := marshalBatch(t, batchID, events.IssueRecord{
		FilePath:       "../outside/a.go",
		Type:           "whitespace_cleanup",
		OriginalCode:   "x = 1 \n",
		ProposedFix:    "x = 1\n",
		SafetyScore:    95,
		AutoApprovable: true,
	})

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	assert.Empty(t, f.applier.applied)

	completed := f.emitter.last(t, events.FixBatchCompleted.String()).(*events.FixBatchCompletedPayload)
	assert.Equal(t, 1, completed.Blocked)
	require.Len(t, completed.Decisions, 1)
	assert.Contains(t, completed.Decisions[0].Reason, "boundary violation")
}

func TestHandler_EmergencyStopAbortsBeforeProcessing(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()
	ctx := context.Background()

	f.ctrl.Stop(ctx, "operator intervention")

	payload := marshalBatch(t, batchID, events.IssueRecord{
		FilePath:    "pkg/a.go",
		Type:        "whitespace_cleanup",
		ProposedFix: "x = 1\n",
	})

	require.NoError(t, f.handler.Handle(ctx, nil, payload))

	aborted := f.emitter.last(t, events.FixBatchAborted.String()).(*events.FixBatchAbortedPayload)
	assert.Equal(t, "operator intervention", aborted.Reason)
	assert.Zero(t, aborted.Processed)
	assert.Empty(t, f.applier.applied)
}

func TestHandler_BreakerOpenAbortsRemainingApplies(t *testing.T) {
	f := newTestHandler(t, func(cfg *appconfig.WardenConfig, applier *fakeApplier) {
		cfg.BreakerFailureThreshold = 1
		applier.err = errors.New("disk full")
	})
	batchID := events.NewBatchID()

	clean := func(path string) events.IssueRecord {
		return events.IssueRecord{
			FilePath:       path,
			Type:           "whitespace_cleanup",
			OriginalCode:   "x = 1 \n",
			ProposedFix:    "x = 1\n",
			SafetyScore:    95,
			AutoApprovable: true,
		}
	}
	payload := marshalBatch(t, batchID, clean("pkg/a.go"), clean("pkg/b.go"))

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	// First apply fails and opens the circuit; the second is refused
	// without reaching the applier, which aborts the batch.
	aborted := f.emitter.last(t, events.FixBatchAborted.String()).(*events.FixBatchAbortedPayload)
	assert.Contains(t, aborted.Reason, "circuit breaker")
	assert.Empty(t, f.applier.applied)
}

func TestHandler_TypoBackdoorEndsEmergencyBlocked(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()

	// A spelling fix carrying a backdoor conditional, scored 98 by the
	// upstream scorer. Its final decision is emergency_blocked, never an
	// ordinary rejection, and nothing reaches disk.
	payload := marshalBatch(t, batchID, events.IssueRecord{
		FilePath:       "auth/login.py",
		Type:           "typo_corrections",
		Severity:       "low",
		OriginalCode:   "# Authenticate user",
		ProposedFix:    "# Authenticate user\nif username == 'backdoor': return True",
		SafetyScore:    98,
		AutoApprovable: true,
	})

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	assert.Empty(t, f.applier.applied)

	blocked := f.emitter.last(t, events.FixProposalBlocked.String()).(*events.ProposalBlockedPayload)
	assert.Equal(t, "auth/login.py", blocked.FilePath)
	assert.NotEmpty(t, blocked.Patterns)

	completed := f.emitter.last(t, events.FixBatchCompleted.String()).(*events.FixBatchCompletedPayload)
	assert.Equal(t, 0, completed.Approved)
	assert.Equal(t, 1, completed.Blocked)
	require.Len(t, completed.Decisions, 1)
	assert.Equal(t, string(proposal.DecisionEmergencyBlocked), completed.Decisions[0].Decision)

	records, err := f.repo.ListByBatch(context.Background(), batchID.String())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, proposal.DecisionEmergencyBlocked, records[0].Decision)
	assert.False(t, records[0].Applied)
}

func TestHandler_EmitsPerDecisionEvents(t *testing.T) {
	f := newTestHandler(t, nil)
	batchID := events.NewBatchID()

	payload := marshalBatch(t, batchID,
		events.IssueRecord{
			FilePath:       "pkg/a.go",
			Type:           "whitespace_cleanup",
			OriginalCode:   "x = 1 \n",
			ProposedFix:    "x = 1\n",
			SafetyScore:    95,
			AutoApprovable: true,
		},
		events.IssueRecord{
			FilePath:    "pkg/b.go",
			Type:        "refactor",
			ProposedFix: "package b\n",
			SafetyScore: 95,
		},
	)

	require.NoError(t, f.handler.Handle(context.Background(), nil, payload))

	approvedEvt := f.emitter.last(t, events.FixProposalApproved.String()).(*events.ProposalDecisionSummary)
	assert.Equal(t, "pkg/a.go", approvedEvt.FilePath)
	assert.True(t, approvedEvt.Applied)

	rejectedEvt := f.emitter.last(t, events.FixProposalRejected.String()).(*events.ProposalDecisionSummary)
	assert.Equal(t, "pkg/b.go", rejectedEvt.FilePath)
	assert.False(t, rejectedEvt.Applied)
}

func TestHandler_RejectsUnparseablePayload(t *testing.T) {
	f := newTestHandler(t, nil)

	err := f.handler.Handle(context.Background(), nil, []byte("not json"))
	assert.Error(t, err)
}
