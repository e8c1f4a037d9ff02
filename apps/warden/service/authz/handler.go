// Package authz orchestrates the authorization pipeline for a batch of
// proposed code edits: validation, scanning, approval, the final veto,
// boundary checks, and application of the survivors.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/time/rate"

	appconfig "github.com/wardenhq/warden/apps/warden/config"
	"github.com/wardenhq/warden/internal/approval"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/emergency"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/guard"
	"github.com/wardenhq/warden/internal/proposal"
	"github.com/wardenhq/warden/internal/scan"
)

// FixBatchHandler handles incoming fix batch authorization requests.
type FixBatchHandler struct {
	cfg       *appconfig.WardenConfig
	engine    *approval.Engine
	veto      *scan.Veto
	boundary  *guard.Boundary
	ctrl      *emergency.Controller
	breaker   *emergency.Breaker
	limiter   *rate.Limiter
	applier   Applier
	decisions audit.DecisionRepository
	eventsMan EventsEmitter
}

// NewFixBatchHandler creates a new fix batch handler.
func NewFixBatchHandler(
	cfg *appconfig.WardenConfig,
	engine *approval.Engine,
	veto *scan.Veto,
	boundary *guard.Boundary,
	ctrl *emergency.Controller,
	breaker *emergency.Breaker,
	applier Applier,
	decisions audit.DecisionRepository,
	eventsMan EventsEmitter,
) *FixBatchHandler {
	return &FixBatchHandler{
		cfg:       cfg,
		engine:    engine,
		veto:      veto,
		boundary:  boundary,
		ctrl:      ctrl,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Limit(cfg.ApplyRatePerSecond), cfg.ApplyBurst),
		applier:   applier,
		decisions: decisions,
		eventsMan: eventsMan,
	}
}

// Handle processes incoming fix batch messages.
func (h *FixBatchHandler) Handle(
	ctx context.Context,
	headers map[string]string,
	payload []byte,
) error {
	var request events.FixBatchRequestedPayload
	if err := json.Unmarshal(payload, &request); err != nil {
		return fmt.Errorf("unmarshal fix batch request: %w", err)
	}

	log := util.Log(ctx).With("batch_id", request.BatchID.String())

	// Pick up a fleet-wide stop raised by another instance. The local
	// flag stays authoritative when the store is unreachable.
	if err := h.ctrl.RefreshFromStore(ctx); err != nil {
		log.With("err", err).Warn("could not refresh stop state from store")
	}

	opCtx, op, err := h.ctrl.Begin(ctx, "fix batch "+request.BatchID.String())
	if err != nil {
		var stopErr *emergency.EmergencyStopError
		if errors.As(err, &stopErr) {
			return h.emitAborted(ctx, request.BatchID, stopErr.Reason, 0)
		}
		return err
	}
	defer op.End()

	proposals, invalid := h.buildProposals(opCtx, request.Issues)

	result, err := h.engine.ProcessBatch(opCtx, request.BatchID, proposals)
	if err != nil {
		var stopErr *emergency.EmergencyStopError
		if errors.As(err, &stopErr) {
			h.recordOutcomes(opCtx, request.BatchID, result.Outcomes)
			return h.emitAborted(ctx, request.BatchID, stopErr.Reason, len(result.Outcomes))
		}
		return fmt.Errorf("process batch: %w", err)
	}

	// Final dispositions are settled by screening before anything is
	// recorded or written to disk.
	targets := h.screenApproved(opCtx, result)
	h.recordOutcomes(opCtx, request.BatchID, result.Outcomes)

	applied, abortReason := h.applyTargets(opCtx, op, targets)
	h.emitDecisionEvents(ctx, request.BatchID, result, applied)

	if abortReason != "" {
		return h.emitAborted(ctx, request.BatchID, abortReason, len(result.Outcomes))
	}

	return h.emitCompleted(ctx, request.BatchID, result, invalid, applied)
}

// buildProposals validates each issue record in isolation. A malformed
// record rejects that record only; the rest of the batch proceeds.
func (h *FixBatchHandler) buildProposals(
	ctx context.Context,
	issues []events.IssueRecord,
) ([]*proposal.Proposal, []events.ProposalDecisionSummary) {
	log := util.Log(ctx)

	var (
		proposals []*proposal.Proposal
		invalid   []events.ProposalDecisionSummary
	)
	for _, rec := range issues {
		p, err := proposal.New(rec)
		if err != nil {
			log.With("err", err).With("file_path", rec.FilePath).Warn("rejecting malformed issue record")
			invalid = append(invalid, events.ProposalDecisionSummary{
				FilePath:  rec.FilePath,
				IssueType: rec.Type,
				Decision:  string(proposal.DecisionUserRejected),
				Reason:    err.Error(),
			})
			continue
		}
		proposals = append(proposals, p)
	}
	return proposals, invalid
}

// applyTarget is one approved outcome that survived screening, paired
// with the canonical path the boundary produced for it.
type applyTarget struct {
	outcome   *approval.Outcome
	canonical string
}

// screenApproved runs the post-approval screens over every approved
// outcome: the independent veto re-scan, then the boundary check.
// Outcomes either screen refuses are upgraded in place to
// EmergencyBlocked; survivors are returned ready to apply.
func (h *FixBatchHandler) screenApproved(
	ctx context.Context,
	result *approval.BatchResult,
) []applyTarget {
	log := util.Log(ctx)

	var targets []applyTarget
	for _, outcome := range result.Approved() {
		p := outcome.Proposal

		// The veto scans with a broader pattern set than the approval
		// stage and never trusts the earlier verdict.
		if err := h.veto.Enforce(p.ProposedContent); err != nil {
			outcome.Decision = proposal.DecisionEmergencyBlocked
			outcome.Reason = fmt.Sprintf("vetoed: %v", err)
			var patternErr *scan.DangerousPatternError
			if errors.As(err, &patternErr) {
				outcome.Flags = append(outcome.Flags, patternErr.Flags...)
			}
			continue
		}

		canonical, err := h.boundary.ValidateFileAccess(p.FilePath, guard.AccessWrite)
		if err != nil {
			outcome.Decision = proposal.DecisionEmergencyBlocked
			outcome.Reason = fmt.Sprintf("boundary violation: %v", err)
			log.With("err", err).With("file_path", p.FilePath).Warn("blocking out-of-boundary proposal")
			continue
		}

		targets = append(targets, applyTarget{outcome: outcome, canonical: canonical})
	}
	return targets
}

// applyTargets writes each screened edit to disk, rate-limited and
// breaker-wrapped, and marks the audit record applied on success.
//
// The returned map holds the proposal IDs whose edits reached disk. A
// non-empty abort reason means the batch was halted mid-application.
func (h *FixBatchHandler) applyTargets(
	ctx context.Context,
	op *emergency.Operation,
	targets []applyTarget,
) (map[events.ProposalID]bool, string) {
	log := util.Log(ctx)
	applied := make(map[events.ProposalID]bool)

	for _, target := range targets {
		if err := h.ctrl.CheckStop(ctx); err != nil {
			return applied, err.Error()
		}
		if err := h.ctrl.CheckTimeout(op); err != nil {
			return applied, err.Error()
		}

		p := target.outcome.Proposal

		if err := h.limiter.Wait(ctx); err != nil {
			return applied, fmt.Sprintf("apply rate limiter interrupted: %v", err)
		}

		err := h.breaker.Do(ctx, func() error {
			return h.applier.Apply(ctx, target.canonical, p.OriginalContent, p.ProposedContent)
		})
		if err != nil {
			var openErr *emergency.CircuitBreakerOpenError
			if errors.As(err, &openErr) {
				return applied, err.Error()
			}
			target.outcome.Reason = fmt.Sprintf("apply failed: %v", err)
			log.With("err", err).With("file_path", p.FilePath).Error("could not apply approved edit")
			continue
		}

		applied[p.ID] = true
		if err := h.decisions.MarkApplied(ctx, p.ID.String()); err != nil {
			log.With("err", err).With("proposal_id", p.ID.String()).Error("could not mark decision applied")
		}
	}

	return applied, ""
}

// recordOutcomes appends one audit record per settled decision. The
// applied bit starts false; applyTargets flips it after the edit
// actually reaches disk.
func (h *FixBatchHandler) recordOutcomes(
	ctx context.Context,
	batchID events.BatchID,
	outcomes []approval.Outcome,
) {
	log := util.Log(ctx)
	for _, o := range outcomes {
		rec := &audit.DecisionRecord{
			ID:          events.NewOperationID().String(),
			BatchID:     batchID.String(),
			ProposalID:  o.Proposal.ID.String(),
			FilePath:    o.Proposal.FilePath,
			IssueType:   o.Proposal.IssueType,
			Severity:    string(o.Proposal.Severity),
			SafetyScore: o.Proposal.SafetyScore,
			Decision:    o.Decision,
			Reason:      o.Reason,
		}
		if len(o.Flags) > 0 {
			names, _ := json.Marshal(scan.FlagNames(o.Flags))
			rec.Flags = string(names)
		}
		if err := h.decisions.Record(ctx, rec); err != nil {
			log.With("err", err).With("proposal_id", rec.ProposalID).Error("could not record decision")
		}
	}
}

// emitDecisionEvents publishes one event per settled proposal, so
// dangerous-content blocks surface distinctly from ordinary rejections.
func (h *FixBatchHandler) emitDecisionEvents(
	ctx context.Context,
	batchID events.BatchID,
	result *approval.BatchResult,
	applied map[events.ProposalID]bool,
) {
	log := util.Log(ctx)
	for i := range result.Outcomes {
		o := &result.Outcomes[i]

		if o.Decision == proposal.DecisionEmergencyBlocked {
			h.emitBlocked(ctx, batchID, o.Proposal, o.Flags)
			continue
		}

		eventName := events.FixProposalRejected.String()
		if o.Decision.Approved() {
			eventName = events.FixProposalApproved.String()
		}
		err := h.eventsMan.Emit(ctx, eventName, &events.ProposalDecisionSummary{
			ProposalID: o.Proposal.ID,
			FilePath:   o.Proposal.FilePath,
			IssueType:  o.Proposal.IssueType,
			Decision:   string(o.Decision),
			Reason:     o.Reason,
			Applied:    applied[o.Proposal.ID],
		})
		if err != nil {
			log.With("err", err).With("proposal_id", o.Proposal.ID.String()).Error("could not emit decision event")
		}
	}
}

func (h *FixBatchHandler) emitCompleted(
	ctx context.Context,
	batchID events.BatchID,
	result *approval.BatchResult,
	invalid []events.ProposalDecisionSummary,
	applied map[events.ProposalID]bool,
) error {
	report := approval.BuildReport(result)

	decisions := make([]events.ProposalDecisionSummary, 0, len(result.Outcomes)+len(invalid))
	for _, o := range result.Outcomes {
		decisions = append(decisions, events.ProposalDecisionSummary{
			ProposalID: o.Proposal.ID,
			FilePath:   o.Proposal.FilePath,
			IssueType:  o.Proposal.IssueType,
			Decision:   string(o.Decision),
			Reason:     o.Reason,
			Applied:    applied[o.Proposal.ID],
		})
	}
	decisions = append(decisions, invalid...)

	return h.eventsMan.Emit(ctx, events.FixBatchCompleted.String(), &events.FixBatchCompletedPayload{
		BatchID:      batchID,
		Approved:     report.Approved,
		Rejected:     report.Rejected + len(invalid),
		Blocked:      report.Blocked,
		Decisions:    decisions,
		ApprovalRate: report.ApprovalRate,
		CompletedAt:  time.Now(),
	})
}

func (h *FixBatchHandler) emitAborted(ctx context.Context, batchID events.BatchID, reason string, processed int) error {
	return h.eventsMan.Emit(ctx, events.FixBatchAborted.String(), &events.FixBatchAbortedPayload{
		BatchID:   batchID,
		Reason:    reason,
		Processed: processed,
		AbortedAt: time.Now(),
	})
}

func (h *FixBatchHandler) emitBlocked(ctx context.Context, batchID events.BatchID, p *proposal.Proposal, flags []scan.Flag) {
	err := h.eventsMan.Emit(ctx, events.FixProposalBlocked.String(), &events.ProposalBlockedPayload{
		BatchID:    batchID,
		ProposalID: p.ID,
		FilePath:   p.FilePath,
		IssueType:  p.IssueType,
		Patterns:   scan.FlagNames(flags),
		BlockedAt:  time.Now(),
	})
	if err != nil {
		util.Log(ctx).With("err", err).With("proposal_id", p.ID.String()).Error("could not emit blocked event")
	}
}
