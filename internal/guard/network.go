package guard

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// NetworkDeniedError is returned for every network operation attempted
// while the guard denies egress.
type NetworkDeniedError struct {
	Network string
	Address string
}

// Error implements error.
func (e *NetworkDeniedError) Error() string {
	return fmt.Sprintf("network egress denied: %s %s", e.Network, e.Address)
}

// Dialer is the outbound connection capability. Components that need
// network access receive one explicitly; nothing in the pipeline reaches
// for the net package directly.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// guardedPrimitives is the number of network call sites the guard
// intercepts: DialContext, Dial, and LookupHost.
const guardedPrimitives = 3

// NetworkStatus reports the guard's current posture.
type NetworkStatus struct {
	// Active reports whether total denial is switched on.
	Active bool `json:"active"`

	// GuardedPrimitives is how many call sites are intercepted.
	GuardedPrimitives int `json:"guarded_primitives"`

	// DeniedCalls counts operations refused so far.
	DeniedCalls uint64 `json:"denied_calls"`
}

// NetworkGuard is the process's only path to outbound network primitives.
// Constructed without an upstream dialer it denies everything, which is
// the default posture; Activate makes denial total for the guard's
// lifetime even when an upstream capability was provided. There is no
// allowlist at this layer.
type NetworkGuard struct {
	mu       sync.Mutex
	upstream Dialer
	active   bool
	denied   uint64
}

// NewNetworkGuard creates a guard around an optional upstream dialer.
// A nil upstream means deny-by-default.
func NewNetworkGuard(upstream Dialer) *NetworkGuard {
	return &NetworkGuard{upstream: upstream}
}

// Activate switches the guard to total denial. It is not reversible and
// not bypassable by any in-process caller.
func (g *NetworkGuard) Activate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
}

// Status reports whether the guard is active and how many call sites are
// intercepted.
func (g *NetworkGuard) Status() NetworkStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return NetworkStatus{
		Active:            g.active,
		GuardedPrimitives: guardedPrimitives,
		DeniedCalls:       g.denied,
	}
}

func (g *NetworkGuard) denies() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active || g.upstream == nil {
		g.denied++
		return true
	}
	return false
}

// DialContext opens a connection through the upstream capability, or
// fails with *NetworkDeniedError while denial is in effect.
func (g *NetworkGuard) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if g.denies() {
		return nil, &NetworkDeniedError{Network: network, Address: address}
	}
	return g.upstream.DialContext(ctx, network, address)
}

// Dial is the context-free variant of DialContext.
func (g *NetworkGuard) Dial(network, address string) (net.Conn, error) {
	return g.DialContext(context.Background(), network, address)
}

// LookupHost resolves a hostname, or fails with *NetworkDeniedError while
// denial is in effect. DNS is an egress channel too.
func (g *NetworkGuard) LookupHost(ctx context.Context, host string) ([]string, error) {
	if g.denies() {
		return nil, &NetworkDeniedError{Network: "dns", Address: host}
	}
	return net.DefaultResolver.LookupHost(ctx, host)
}
