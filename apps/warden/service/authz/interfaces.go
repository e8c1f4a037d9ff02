package authz

import (
	"context"
)

// EventsEmitter emits events.
type EventsEmitter interface {
	Emit(ctx context.Context, eventName string, payload any) error
}

// Applier writes an approved edit to its validated target path.
// Implementations receive the canonical path produced by the boundary
// check, never the raw path from the proposal.
type Applier interface {
	Apply(ctx context.Context, canonicalPath, original, proposed string) error
}
