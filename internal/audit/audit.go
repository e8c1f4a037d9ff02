// Package audit persists every authorization decision. The audit trail is
// append-only: records are written once at decision time and never updated.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"

	"github.com/wardenhq/warden/internal/proposal"
)

// ErrDatabaseUnavailable is returned when the database connection is not available.
var ErrDatabaseUnavailable = errors.New("database connection is not available")

// DecisionRecord is one row of the audit trail.
type DecisionRecord struct {
	ID          string            `json:"id"           gorm:"primaryKey"`
	BatchID     string            `json:"batch_id"     gorm:"index"`
	ProposalID  string            `json:"proposal_id"  gorm:"index"`
	FilePath    string            `json:"file_path"`
	IssueType   string            `json:"issue_type"`
	Severity    string            `json:"severity"`
	SafetyScore int               `json:"safety_score"`
	Decision    proposal.Decision `json:"decision"`
	Reason      string            `json:"reason"`
	Flags       string            `json:"flags,omitempty"`
	Applied     bool              `json:"applied"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TableName returns the table name for the DecisionRecord model.
func (DecisionRecord) TableName() string {
	return "decision_records"
}

// DecisionRepository defines the interface for decision persistence.
type DecisionRepository interface {
	Record(ctx context.Context, record *DecisionRecord) error
	GetByProposalID(ctx context.Context, proposalID string) (*DecisionRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]*DecisionRecord, error)
	MarkApplied(ctx context.Context, proposalID string) error
}

// PGDecisionRepository is the PostgreSQL implementation of DecisionRepository.
type PGDecisionRepository struct {
	pool pool.Pool
}

// NewDecisionRepository creates a decision repository. With a database
// pool it persists to PostgreSQL; without one it keeps records in memory.
func NewDecisionRepository(_ context.Context, p pool.Pool) DecisionRepository {
	if p != nil {
		return &PGDecisionRepository{pool: p}
	}
	return &MemoryDecisionRepository{
		records: make(map[string]*DecisionRecord),
	}
}

func (r *PGDecisionRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	if r.pool == nil {
		return nil
	}
	return r.pool.DB(ctx, readOnly)
}

// Record appends one decision to the audit trail.
func (r *PGDecisionRepository) Record(ctx context.Context, record *DecisionRecord) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	record.CreatedAt = time.Now()
	return db.Create(record).Error
}

// GetByProposalID retrieves the decision for one proposal.
func (r *PGDecisionRepository) GetByProposalID(
	ctx context.Context,
	proposalID string,
) (*DecisionRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var rec DecisionRecord
	if err := db.First(&rec, "proposal_id = ?", proposalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("decision not found: %s", proposalID)
		}
		return nil, err
	}
	return &rec, nil
}

// ListByBatch lists every decision recorded for a batch.
func (r *PGDecisionRepository) ListByBatch(
	ctx context.Context,
	batchID string,
) ([]*DecisionRecord, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, ErrDatabaseUnavailable
	}

	var records []*DecisionRecord
	err := db.Where("batch_id = ?", batchID).
		Order("created_at asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkApplied marks a decision's edit as applied to disk. This is the one
// mutable bit of a record; the decision itself never changes.
func (r *PGDecisionRepository) MarkApplied(ctx context.Context, proposalID string) error {
	db := r.db(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}

	return db.Model(&DecisionRecord{}).
		Where("proposal_id = ?", proposalID).
		Update("applied", true).
		Error
}

// MemoryDecisionRepository is an in-memory decision repository for testing.
type MemoryDecisionRepository struct {
	mu      sync.RWMutex
	records map[string]*DecisionRecord
}

// Record appends one decision to the audit trail.
func (r *MemoryDecisionRepository) Record(_ context.Context, record *DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.CreatedAt = time.Now()
	r.records[record.ProposalID] = record
	return nil
}

// GetByProposalID retrieves the decision for one proposal.
func (r *MemoryDecisionRepository) GetByProposalID(
	_ context.Context,
	proposalID string,
) (*DecisionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[proposalID]
	if !ok {
		return nil, fmt.Errorf("decision not found: %s", proposalID)
	}
	return rec, nil
}

// ListByBatch lists every decision recorded for a batch.
func (r *MemoryDecisionRepository) ListByBatch(
	_ context.Context,
	batchID string,
) ([]*DecisionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*DecisionRecord
	for _, rec := range r.records {
		if rec.BatchID == batchID {
			result = append(result, rec)
		}
	}
	return result, nil
}

// MarkApplied marks a decision's edit as applied to disk.
func (r *MemoryDecisionRepository) MarkApplied(_ context.Context, proposalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[proposalID]; ok {
		rec.Applied = true
	}
	return nil
}
