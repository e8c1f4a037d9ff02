// Package proposal defines the validated record of a candidate code edit.
// A Proposal is constructed once at the trust boundary from an untrusted
// issue record and is never mutated afterwards; corrections require
// constructing a new one.
package proposal

import (
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/events"
)

// Severity classifies how serious the underlying issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityCosmetic Severity = "cosmetic"
)

// ParseSeverity maps a reported severity string to a known value.
// Unknown severities map to critical, never to the least restrictive.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityCosmetic:
		return SeverityCosmetic
	default:
		return SeverityCritical
	}
}

// Decision is the authorization state of a proposal.
type Decision string

const (
	DecisionPending          Decision = "pending"
	DecisionAutoApproved     Decision = "auto_approved"
	DecisionPendingReview    Decision = "pending_review"
	DecisionUserApproved     Decision = "user_approved"
	DecisionUserRejected     Decision = "user_rejected"
	DecisionEmergencyBlocked Decision = "emergency_blocked"
)

// Approved reports whether the decision permits application.
// EmergencyBlocked is terminal and never approved.
func (d Decision) Approved() bool {
	return d == DecisionAutoApproved || d == DecisionUserApproved
}

// ValidationError reports a malformed issue record rejected at construction.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid proposal: field %q %s", e.Field, e.Reason)
}

// Proposal is the typed record of a candidate edit and its metadata.
// The safety score is always within [0,100]; the auto-approvable flag is
// an advisory hint from the caller and is never sufficient on its own.
type Proposal struct {
	ID              events.ProposalID `json:"id"`
	FilePath        string            `json:"file_path"`
	IssueType       string            `json:"issue_type"`
	Severity        Severity          `json:"severity"`
	Description     string            `json:"description"`
	OriginalContent string            `json:"original_content"`
	ProposedContent string            `json:"proposed_content"`
	LineNumber      uint              `json:"line_number"`
	Rationale       string            `json:"rationale"`
	SafetyScore     int               `json:"safety_score"`
	Context         string            `json:"context,omitempty"`
	AutoApprovable  bool              `json:"auto_approvable"`
	CreatedAt       time.Time         `json:"created_at"`
}

// New validates an external issue record and constructs a Proposal.
// It fails with a *ValidationError when file_path, type, or proposed_fix
// is empty. The safety score is clamped to [0,100]. No side effects.
func New(rec events.IssueRecord) (*Proposal, error) {
	if strings.TrimSpace(rec.FilePath) == "" {
		return nil, &ValidationError{Field: "file_path", Reason: "must not be empty"}
	}
	if strings.TrimSpace(rec.Type) == "" {
		return nil, &ValidationError{Field: "type", Reason: "must not be empty"}
	}
	if rec.ProposedFix == "" {
		return nil, &ValidationError{Field: "proposed_fix", Reason: "must not be empty"}
	}

	return &Proposal{
		ID:              events.NewProposalID(),
		FilePath:        rec.FilePath,
		IssueType:       rec.Type,
		Severity:        ParseSeverity(rec.Severity),
		Description:     rec.Description,
		OriginalContent: rec.OriginalCode,
		ProposedContent: rec.ProposedFix,
		LineNumber:      rec.Line,
		Rationale:       rec.Explanation,
		SafetyScore:     clampScore(rec.SafetyScore),
		Context:         rec.Context,
		AutoApprovable:  rec.AutoApprovable,
		CreatedAt:       time.Now(),
	}, nil
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
