package events

import "time"

// IssueRecord is the untrusted issue description supplied by the external
// analysis collaborator. Every field is advisory until validated at the
// proposal boundary; in particular SafetyScore and AutoApprovable are
// hints, never decisions.
type IssueRecord struct {
	// FilePath is the file the fix targets, relative to the project root.
	FilePath string `json:"file_path"`

	// Type is the issue type tag (e.g. "whitespace_cleanup", "typo_corrections").
	Type string `json:"type"`

	// Severity is the reported severity. Unknown values are treated as critical.
	Severity string `json:"severity"`

	// Description is a human-readable summary of the issue.
	Description string `json:"description"`

	// OriginalCode is the content being replaced.
	OriginalCode string `json:"original_code"`

	// ProposedFix is the replacement content.
	ProposedFix string `json:"proposed_fix"`

	// Line is the 1-based line number the fix anchors at.
	Line uint `json:"line"`

	// Explanation is the analyzer's rationale for the fix.
	Explanation string `json:"explanation"`

	// SafetyScore is the analyzer's 0-100 confidence that the fix is safe.
	SafetyScore int `json:"safety_score"`

	// Context is a free-form tag such as "production" or "test".
	Context string `json:"context,omitempty"`

	// AutoApprovable hints that the fix may qualify for automatic approval.
	AutoApprovable bool `json:"auto_approvable"`
}

// FixBatchRequestedPayload is the payload for a fix batch authorization request.
type FixBatchRequestedPayload struct {
	// BatchID identifies the batch.
	BatchID BatchID `json:"batch_id"`

	// RequestedBy identifies the submitting collaborator.
	RequestedBy string `json:"requested_by,omitempty"`

	// RequestedAt is when the batch was submitted.
	RequestedAt time.Time `json:"requested_at"`

	// Issues are the candidate fixes awaiting authorization.
	Issues []IssueRecord `json:"issues"`
}

// ProposalDecisionSummary records the final decision for one proposal.
type ProposalDecisionSummary struct {
	ProposalID ProposalID `json:"proposal_id"`
	FilePath   string     `json:"file_path"`
	IssueType  string     `json:"issue_type"`
	Decision   string     `json:"decision"`
	Reason     string     `json:"reason,omitempty"`
	Applied    bool       `json:"applied"`
}

// FixBatchCompletedPayload is the payload emitted after a batch is processed.
type FixBatchCompletedPayload struct {
	// BatchID identifies the batch.
	BatchID BatchID `json:"batch_id"`

	// Approved is the number of proposals that survived every layer.
	Approved int `json:"approved"`

	// Rejected is the number refused by policy or reviewer.
	Rejected int `json:"rejected"`

	// Blocked is the number vetoed or emergency-blocked.
	Blocked int `json:"blocked"`

	// Decisions lists the per-proposal outcomes.
	Decisions []ProposalDecisionSummary `json:"decisions"`

	// ApprovalRate is approved / total, in [0,1].
	ApprovalRate float64 `json:"approval_rate"`

	// CompletedAt is when processing finished.
	CompletedAt time.Time `json:"completed_at"`
}

// FixBatchAbortedPayload is emitted when a batch is halted mid-flight.
type FixBatchAbortedPayload struct {
	// BatchID identifies the batch.
	BatchID BatchID `json:"batch_id"`

	// Reason is the emergency stop reason.
	Reason string `json:"reason"`

	// Processed is how many proposals were decided before the halt.
	Processed int `json:"processed"`

	// AbortedAt is when the halt was observed.
	AbortedAt time.Time `json:"aborted_at"`
}

// ProposalBlockedPayload is emitted when the final veto blocks an
// already-approved proposal.
type ProposalBlockedPayload struct {
	BatchID    BatchID    `json:"batch_id"`
	ProposalID ProposalID `json:"proposal_id"`
	FilePath   string     `json:"file_path"`
	IssueType  string     `json:"issue_type"`

	// Patterns names the veto patterns that fired.
	Patterns []string `json:"patterns"`

	BlockedAt time.Time `json:"blocked_at"`
}

// EmergencyStopActivatedPayload is emitted when the stop flag is raised.
type EmergencyStopActivatedPayload struct {
	Reason      string    `json:"reason"`
	ActivatedBy string    `json:"activated_by,omitempty"`
	ActivatedAt time.Time `json:"activated_at"`
}

// EmergencyStopClearedPayload is emitted on explicit reset.
type EmergencyStopClearedPayload struct {
	ClearedBy string    `json:"cleared_by,omitempty"`
	ClearedAt time.Time `json:"cleared_at"`
}
