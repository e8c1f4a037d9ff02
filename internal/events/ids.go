// Package events defines the wire-level types exchanged with the analysis,
// review, and apply collaborators: typed identifiers, event names, and
// JSON payloads.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// BatchID identifies one submitted batch of fix proposals.
// XIDs are time-ordered, 20 character, URL-safe identifiers that need
// no coordination between producers.
type BatchID struct {
	id xid.ID
}

// NewBatchID generates a new batch ID.
func NewBatchID() BatchID {
	return BatchID{id: xid.New()}
}

// ParseBatchID parses a batch ID from its string form.
func ParseBatchID(s string) (BatchID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return BatchID{}, fmt.Errorf("invalid batch ID %q: %w", s, err)
	}
	return BatchID{id: id}, nil
}

// String returns the string representation.
func (b BatchID) String() string {
	return b.id.String()
}

// IsZero reports whether this is the zero value.
func (b BatchID) IsZero() bool {
	return b.id.IsNil()
}

// Time returns the timestamp embedded in the ID.
func (b BatchID) Time() time.Time {
	return b.id.Time()
}

// MarshalJSON implements json.Marshaler.
func (b BatchID) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BatchID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	b.id = id
	return nil
}

// ProposalID identifies a single fix proposal within the system.
type ProposalID struct {
	id xid.ID
}

// NewProposalID generates a new proposal ID.
func NewProposalID() ProposalID {
	return ProposalID{id: xid.New()}
}

// ParseProposalID parses a proposal ID from its string form.
func ParseProposalID(s string) (ProposalID, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return ProposalID{}, fmt.Errorf("invalid proposal ID %q: %w", s, err)
	}
	return ProposalID{id: id}, nil
}

// String returns the string representation.
func (p ProposalID) String() string {
	return p.id.String()
}

// Short returns the first 8 characters for human-readable contexts.
func (p ProposalID) Short() string {
	s := p.id.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// IsZero reports whether this is the zero value.
func (p ProposalID) IsZero() bool {
	return p.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (p ProposalID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ProposalID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	p.id = id
	return nil
}

// OperationID identifies a guarded unit of work registered with the
// emergency controller.
type OperationID struct {
	id xid.ID
}

// NewOperationID generates a new operation ID.
func NewOperationID() OperationID {
	return OperationID{id: xid.New()}
}

// String returns the string representation.
func (o OperationID) String() string {
	return o.id.String()
}

// IsZero reports whether this is the zero value.
func (o OperationID) IsZero() bool {
	return o.id.IsNil()
}

// MarshalJSON implements json.Marshaler.
func (o OperationID) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OperationID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := xid.FromString(s)
	if err != nil {
		return err
	}
	o.id = id
	return nil
}
