package approval

import (
	"time"

	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/proposal"
)

// ProposalReport is the per-proposal line item of a batch report.
type ProposalReport struct {
	ProposalID  events.ProposalID `json:"proposal_id"`
	FilePath    string            `json:"file_path"`
	IssueType   string            `json:"issue_type"`
	Severity    proposal.Severity `json:"severity"`
	SafetyScore int               `json:"safety_score"`
	Decision    proposal.Decision `json:"decision"`
	Reason      string            `json:"reason"`
	Flags       []string          `json:"flags,omitempty"`
}

// BatchReport summarizes one batch run for auditing and for downstream
// threshold tuning. Indicator tallies count what was actually observed,
// per issue type for approvals and per pattern name for rejections.
type BatchReport struct {
	BatchID  events.BatchID `json:"batch_id"`
	Total    int            `json:"total"`
	Approved int            `json:"approved"`
	Rejected int            `json:"rejected"`
	Blocked  int            `json:"blocked"`

	// ApprovalRate is approved over total, zero for an empty batch.
	ApprovalRate float64 `json:"approval_rate"`

	// SafeIndicators tallies issue types among approved proposals.
	SafeIndicators map[string]int `json:"safe_indicators,omitempty"`

	// DangerousIndicators tallies pattern names among flagged proposals.
	DangerousIndicators map[string]int `json:"dangerous_indicators,omitempty"`

	Proposals   []ProposalReport `json:"proposals"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// BuildReport derives the batch report from a result. Outcomes upgraded
// to EmergencyBlocked by the veto stage count as blocked, not rejected.
func BuildReport(result *BatchResult) *BatchReport {
	report := &BatchReport{
		BatchID:             result.BatchID,
		Total:               len(result.Outcomes),
		SafeIndicators:      make(map[string]int),
		DangerousIndicators: make(map[string]int),
		Proposals:           make([]ProposalReport, 0, len(result.Outcomes)),
		GeneratedAt:         time.Now(),
	}

	for _, o := range result.Outcomes {
		switch {
		case o.Decision.Approved():
			report.Approved++
			report.SafeIndicators[o.Proposal.IssueType]++
		case o.Decision == proposal.DecisionEmergencyBlocked:
			report.Blocked++
		default:
			report.Rejected++
		}

		for _, f := range o.Flags {
			report.DangerousIndicators[f.Name]++
		}

		item := ProposalReport{
			ProposalID:  o.Proposal.ID,
			FilePath:    o.Proposal.FilePath,
			IssueType:   o.Proposal.IssueType,
			Severity:    o.Proposal.Severity,
			SafetyScore: o.Proposal.SafetyScore,
			Decision:    o.Decision,
			Reason:      o.Reason,
		}
		for _, f := range o.Flags {
			item.Flags = append(item.Flags, f.Name)
		}
		report.Proposals = append(report.Proposals, item)
	}

	if report.Total > 0 {
		report.ApprovalRate = float64(report.Approved) / float64(report.Total)
	}

	return report
}
