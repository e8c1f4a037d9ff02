// Package approval implements the decision state machine that partitions a
// batch of fix proposals into approved, rejected, and blocked sets.
// Content that matches any dangerous pattern is blocked terminally here;
// approval is still one layer of several, and anything it approves is
// re-screened by the final veto before the apply collaborator is invoked.
package approval

import (
	"context"
	"fmt"

	"github.com/pitabwire/util"

	"github.com/wardenhq/warden/internal/emergency"
	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/proposal"
	"github.com/wardenhq/warden/internal/scan"
)

// ReviewDecision is the answer an interactive reviewer gives for one
// proposal. The All variants are batch shortcuts applied to every
// remaining proposal routed to review.
type ReviewDecision string

const (
	ReviewApprove    ReviewDecision = "approve"
	ReviewReject     ReviewDecision = "reject"
	ReviewApproveAll ReviewDecision = "approve_all"
	ReviewRejectAll  ReviewDecision = "reject_all"
)

// Reviewer is the external human-in-the-loop collaborator consulted in
// interactive mode. Only proposals with a clean scan reach it; flagged
// content is blocked before review.
type Reviewer interface {
	Review(ctx context.Context, p *proposal.Proposal) (ReviewDecision, error)
}

// suspicionScore is the safety score above which a flagged proposal is
// treated as an aggravated signal: an external scorer calling dangerous
// content near-perfectly safe is itself suspicious.
const suspicionScore = 95

// Config is the engine's policy surface.
type Config struct {
	// AutoApproveSafe enables the automatic approval path at all.
	AutoApproveSafe bool

	// Interactive routes proposals that miss auto-approval to a reviewer
	// instead of rejecting them outright.
	Interactive bool

	// AutoApproveThreshold is the minimum safety score for auto-approval.
	AutoApproveThreshold int

	// AutoApprovableTypes is the set of issue types eligible for
	// auto-approval.
	AutoApprovableTypes map[string]bool
}

// Outcome is the engine's verdict for a single proposal.
type Outcome struct {
	Proposal *proposal.Proposal
	Decision proposal.Decision
	Reason   string
	Flags    []scan.Flag
}

// BatchResult is the partition of one processed batch.
type BatchResult struct {
	BatchID  events.BatchID
	Outcomes []Outcome
}

// Approved returns the outcomes cleared for the veto stage.
func (r *BatchResult) Approved() []*Outcome {
	var out []*Outcome
	for i := range r.Outcomes {
		if r.Outcomes[i].Decision.Approved() {
			out = append(out, &r.Outcomes[i])
		}
	}
	return out
}

// Engine applies scoring, policy thresholds, and reviewer routing to a
// batch of proposals.
type Engine struct {
	cfg      Config
	scanner  *scan.Scanner
	reviewer Reviewer
	ctrl     *emergency.Controller
}

// NewEngine creates an approval engine. The reviewer may be nil when the
// engine is configured non-interactive.
func NewEngine(cfg Config, scanner *scan.Scanner, reviewer Reviewer, ctrl *emergency.Controller) *Engine {
	return &Engine{
		cfg:      cfg,
		scanner:  scanner,
		reviewer: reviewer,
		ctrl:     ctrl,
	}
}

// ProcessBatch decides every proposal in order. Proposals are processed
// independently: one proposal's content never influences another's scan
// or score, which keeps batch decisions reproducible by replay.
//
// An emergency stop observed between proposals aborts the remainder of
// the batch; the partial result is returned alongside the stop error.
func (e *Engine) ProcessBatch(ctx context.Context, batchID events.BatchID, proposals []*proposal.Proposal) (*BatchResult, error) {
	log := util.Log(ctx)
	result := &BatchResult{
		BatchID:  batchID,
		Outcomes: make([]Outcome, 0, len(proposals)),
	}

	var remaining *ReviewDecision

	for _, p := range proposals {
		if err := e.ctrl.CheckStop(ctx); err != nil {
			log.Warn("batch aborted by emergency stop",
				"batch_id", batchID.String(),
				"processed", len(result.Outcomes),
			)
			return result, err
		}

		outcome := e.decide(ctx, p, &remaining)
		result.Outcomes = append(result.Outcomes, outcome)

		log.Debug("proposal decided",
			"proposal_id", p.ID.String(),
			"file_path", p.FilePath,
			"decision", string(outcome.Decision),
			"flags", len(outcome.Flags),
		)
	}

	return result, nil
}

// decide runs the state machine for one proposal:
// Pending -> EmergencyBlocked | AutoApproved | UserApproved/UserRejected.
func (e *Engine) decide(ctx context.Context, p *proposal.Proposal, remaining **ReviewDecision) Outcome {
	// Flagged content ends blocked no matter what the score, type, or a
	// reviewer would say. A near-perfect external score attached to such
	// content is an aggravated signal worth calling out in the reason.
	if flags := e.scanner.ScanProposal(p); len(flags) > 0 {
		reason := fmt.Sprintf("dangerous patterns detected: %v", scan.FlagNames(flags))
		if p.SafetyScore > suspicionScore {
			reason = fmt.Sprintf("suspicious: safety score %d with dangerous patterns %v",
				p.SafetyScore, scan.FlagNames(flags))
		}
		return Outcome{
			Proposal: p,
			Decision: proposal.DecisionEmergencyBlocked,
			Reason:   reason,
			Flags:    flags,
		}
	}

	if e.autoApprovable(p) {
		return Outcome{
			Proposal: p,
			Decision: proposal.DecisionAutoApproved,
			Reason:   "met auto-approval policy",
		}
	}

	if !e.cfg.Interactive || e.reviewer == nil {
		return Outcome{
			Proposal: p,
			Decision: proposal.DecisionUserRejected,
			Reason:   rejectionReason(p, e.cfg),
		}
	}

	return e.review(ctx, p, remaining)
}

// autoApprovable checks every automatic approval criterion. The caller's
// auto-approvable hint narrows eligibility; it never widens it.
func (e *Engine) autoApprovable(p *proposal.Proposal) bool {
	return e.cfg.AutoApproveSafe &&
		p.AutoApprovable &&
		p.SafetyScore >= e.cfg.AutoApproveThreshold &&
		e.cfg.AutoApprovableTypes[p.IssueType]
}

func (e *Engine) review(ctx context.Context, p *proposal.Proposal, remaining **ReviewDecision) Outcome {
	if *remaining != nil {
		return reviewOutcome(p, **remaining, "batch shortcut")
	}

	decision, err := e.reviewer.Review(ctx, p)
	if err != nil {
		// A failed review never approves.
		return Outcome{
			Proposal: p,
			Decision: proposal.DecisionUserRejected,
			Reason:   fmt.Sprintf("review failed: %v", err),
		}
	}

	switch decision {
	case ReviewApproveAll, ReviewRejectAll:
		d := decision
		*remaining = &d
	}

	return reviewOutcome(p, decision, "reviewer decision")
}

func reviewOutcome(p *proposal.Proposal, decision ReviewDecision, source string) Outcome {
	switch decision {
	case ReviewApprove, ReviewApproveAll:
		return Outcome{
			Proposal: p,
			Decision: proposal.DecisionUserApproved,
			Reason:   source + ": approved",
		}
	default:
		return Outcome{
			Proposal: p,
			Decision: proposal.DecisionUserRejected,
			Reason:   source + ": rejected",
		}
	}
}

func rejectionReason(p *proposal.Proposal, cfg Config) string {
	if p.SafetyScore < cfg.AutoApproveThreshold {
		return fmt.Sprintf("safety score %d below threshold %d", p.SafetyScore, cfg.AutoApproveThreshold)
	}
	if !cfg.AutoApprovableTypes[p.IssueType] {
		return fmt.Sprintf("issue type %q is not auto-approvable", p.IssueType)
	}
	if !p.AutoApprovable {
		return "caller did not mark the proposal auto-approvable"
	}
	return "auto-approval disabled, non-interactive mode"
}
