package proposal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/events"
)

func validRecord() events.IssueRecord {
	return events.IssueRecord{
		FilePath:       "pkg/server/handler.go",
		Type:           "unused_imports",
		Severity:       "low",
		Description:    "unused import",
		OriginalCode:   "import \"os\"",
		ProposedFix:    "",
		Line:           3,
		Explanation:    "import is never referenced",
		SafetyScore:    90,
		AutoApprovable: true,
	}
}

func TestNew_ValidRecord(t *testing.T) {
	rec := validRecord()
	rec.ProposedFix = "// import removed"

	p, err := New(rec)

	require.NoError(t, err)
	assert.False(t, p.ID.IsZero())
	assert.Equal(t, "pkg/server/handler.go", p.FilePath)
	assert.Equal(t, SeverityLow, p.Severity)
	assert.Equal(t, 90, p.SafetyScore)
	assert.True(t, p.AutoApprovable)
}

func TestNew_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*events.IssueRecord)
		field  string
	}{
		{"empty file path", func(r *events.IssueRecord) { r.FilePath = "" }, "file_path"},
		{"blank file path", func(r *events.IssueRecord) { r.FilePath = "   " }, "file_path"},
		{"empty type", func(r *events.IssueRecord) { r.Type = "" }, "type"},
		{"empty proposed fix", func(r *events.IssueRecord) { r.ProposedFix = "" }, "proposed_fix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			rec.ProposedFix = "x := 1"
			tt.mutate(&rec)

			p, err := New(rec)

			require.Error(t, err)
			assert.Nil(t, p)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNew_SafetyScoreClamped(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"negative", -40, 0},
		{"zero", 0, 0},
		{"in range", 73, 73},
		{"hundred", 100, 100},
		{"above range", 250, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			rec.ProposedFix = "x := 1"
			rec.SafetyScore = tt.in

			p, err := New(rec)

			require.NoError(t, err)
			assert.Equal(t, tt.want, p.SafetyScore)
			assert.GreaterOrEqual(t, p.SafetyScore, 0)
			assert.LessOrEqual(t, p.SafetyScore, 100)
		})
	}
}

func TestParseSeverity_UnknownDefaultsToCritical(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity("catastrophic"))
	assert.Equal(t, SeverityCritical, ParseSeverity(""))
	assert.Equal(t, SeverityCritical, ParseSeverity("COSMIC"))
}

func TestParseSeverity_KnownValues(t *testing.T) {
	assert.Equal(t, SeverityHigh, ParseSeverity("High"))
	assert.Equal(t, SeverityMedium, ParseSeverity(" medium "))
	assert.Equal(t, SeverityCosmetic, ParseSeverity("cosmetic"))
}

func TestDecision_Approved(t *testing.T) {
	assert.True(t, DecisionAutoApproved.Approved())
	assert.True(t, DecisionUserApproved.Approved())
	assert.False(t, DecisionPending.Approved())
	assert.False(t, DecisionUserRejected.Approved())
	assert.False(t, DecisionEmergencyBlocked.Approved())
}
