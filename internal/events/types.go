package events

// EventType identifies the type of event.
// Format: {domain}.{aggregate}.{action}
type EventType string

const (
	// === BATCH LIFECYCLE ===

	// FixBatchRequested marks a new batch of proposals submitted for authorization.
	FixBatchRequested EventType = "fix.batch.requested"

	// FixBatchCompleted marks a batch fully processed with a final report.
	FixBatchCompleted EventType = "fix.batch.completed"

	// FixBatchAborted marks a batch halted by the emergency controller.
	FixBatchAborted EventType = "fix.batch.aborted"

	// === PROPOSAL DECISIONS ===

	// FixProposalApproved marks a proposal cleared for application.
	FixProposalApproved EventType = "fix.proposal.approved"

	// FixProposalRejected marks a proposal refused by policy or reviewer.
	FixProposalRejected EventType = "fix.proposal.rejected"

	// FixProposalBlocked marks a proposal vetoed after approval.
	FixProposalBlocked EventType = "fix.proposal.blocked"

	// === EMERGENCY ===

	// EmergencyStopActivated marks the global stop flag being raised.
	EmergencyStopActivated EventType = "emergency.stop.activated"

	// EmergencyStopCleared marks an explicit reset of the stop flag.
	EmergencyStopCleared EventType = "emergency.stop.cleared"
)

// String returns the event type as a string.
func (t EventType) String() string {
	return string(t)
}
