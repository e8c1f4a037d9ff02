package config

import (
	"strings"
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/wardenhq/warden/internal/approval"
	"github.com/wardenhq/warden/internal/emergency"
)

// WardenConfig defines configuration for the fix authorization service.
// The service consumes fix batches, decides each proposal, and applies
// the survivors inside the project boundary.
type WardenConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Queue Configuration
	// ==========================================================================

	// Fix batch queue (incoming from the analysis collaborator)
	QueueFixBatchName string `envDefault:"fix.batch.requests" env:"QUEUE_FIX_BATCH_NAME"`
	QueueFixBatchURI  string `envDefault:"mem://fix.batch.requests" env:"QUEUE_FIX_BATCH_URI"`

	// Batch result queue (outgoing reports)
	QueueBatchResultName string `envDefault:"fix.batch.results" env:"QUEUE_BATCH_RESULT_NAME"`
	QueueBatchResultURI  string `envDefault:"mem://fix.batch.results" env:"QUEUE_BATCH_RESULT_URI"`

	// Control events queue (emergency stop activations and clears)
	QueueControlEventsName string `envDefault:"fix.control" env:"QUEUE_CONTROL_EVENTS_NAME"`
	QueueControlEventsURI  string `envDefault:"mem://fix.control" env:"QUEUE_CONTROL_EVENTS_URI"`

	// ==========================================================================
	// Approval Policy
	// ==========================================================================

	// AutoApproveSafe enables the automatic approval path.
	AutoApproveSafe bool `envDefault:"true" env:"AUTO_APPROVE_SAFE"`

	// InteractiveMode routes undecided proposals to a reviewer.
	InteractiveMode bool `envDefault:"false" env:"INTERACTIVE_MODE"`

	// AutoApproveThreshold is the minimum safety score for auto-approval.
	AutoApproveThreshold int `envDefault:"70" env:"AUTO_APPROVE_THRESHOLD"`

	// AutoApprovableTypes is the comma-separated set of issue types
	// eligible for auto-approval.
	AutoApprovableTypes string `envDefault:"whitespace_cleanup,typo_corrections,unused_imports,missing_docstrings" env:"AUTO_APPROVABLE_TYPES"`

	// ==========================================================================
	// Emergency Controls
	// ==========================================================================

	// MaxRecursionDepth is the deepest allowed operation nesting.
	MaxRecursionDepth int `envDefault:"3" env:"MAX_RECURSION_DEPTH"`

	// MaxOperationSeconds is the wall-clock allowance per operation.
	MaxOperationSeconds int `envDefault:"300" env:"MAX_OPERATION_SECONDS"`

	// BreakerFailureThreshold is consecutive apply failures before the
	// circuit opens.
	BreakerFailureThreshold int `envDefault:"3" env:"BREAKER_FAILURE_THRESHOLD"`

	// BreakerRecoverySeconds is how long the circuit stays open.
	BreakerRecoverySeconds int `envDefault:"60" env:"BREAKER_RECOVERY_SECONDS"`

	// StopStoreRedisURI points the shared stop flag at Redis. Empty keeps
	// the flag process-local.
	StopStoreRedisURI string `envDefault:"" env:"STOP_STORE_REDIS_URI"`

	// ==========================================================================
	// Boundary and Execution Policy
	// ==========================================================================

	// ProjectRoot is the directory edits are confined to.
	ProjectRoot string `envDefault:"." env:"PROJECT_ROOT"`

	// ProcessAllowPrograms is a comma-separated allowlist of program
	// names. Empty means denylist-only mode.
	ProcessAllowPrograms string `envDefault:"" env:"PROCESS_ALLOW_PROGRAMS"`

	// ApplyRatePerSecond caps how many edits are applied per second.
	ApplyRatePerSecond float64 `envDefault:"10" env:"APPLY_RATE_PER_SECOND"`

	// ApplyBurst is the rate limiter burst size.
	ApplyBurst int `envDefault:"5" env:"APPLY_BURST"`
}

// ApprovalConfig maps the policy fields onto the approval engine's config.
func (c *WardenConfig) ApprovalConfig() approval.Config {
	return approval.Config{
		AutoApproveSafe:      c.AutoApproveSafe,
		Interactive:          c.InteractiveMode,
		AutoApproveThreshold: c.AutoApproveThreshold,
		AutoApprovableTypes:  splitSet(c.AutoApprovableTypes),
	}
}

// EmergencyLimits maps the control fields onto the controller's limits.
func (c *WardenConfig) EmergencyLimits() emergency.Limits {
	return emergency.Limits{
		MaxRecursionDepth: c.MaxRecursionDepth,
		MaxOperationTime:  time.Duration(c.MaxOperationSeconds) * time.Second,
	}
}

// AllowedPrograms returns the parsed process allowlist, nil when empty.
func (c *WardenConfig) AllowedPrograms() []string {
	return splitList(c.ProcessAllowPrograms)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, p := range splitList(s) {
		set[p] = true
	}
	return set
}
