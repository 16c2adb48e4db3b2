package consensus

import "sync/atomic"

// Readiness is the predicate/notifier pair §6 calls out as an external
// collaborator: the Broadcaster must not send before IsReady() returns
// true, and the node must call MarkReady() once its HTTP listener is
// bound. In-process it's a single cohort-wide gate; cmd/cohort realizes
// the cross-process version of the same contract by polling /status
// instead (see cmd/cohort/main.go).
//
// This mirrors the reference's impl/ibft/transport.go, where a
// sync.WaitGroup seeded with the peer count is Done() once per Subscribe()
// and Wait()ed on by WaitForReady() — the same "block the first broadcast
// until the mesh is up" gate, expressed here as a level-triggered flag
// instead of a one-shot WaitGroup so a late Start (after the gate already
// opened) doesn't block at all.
type Readiness struct {
	ready atomic.Bool
}

// NewReadiness returns a gate that starts closed.
func NewReadiness() *Readiness {
	return &Readiness{}
}

// IsReady reports whether the network is ready for broadcasts.
func (r *Readiness) IsReady() bool {
	return r.ready.Load()
}

// MarkReady opens the gate. Idempotent.
func (r *Readiness) MarkReady() {
	r.ready.Store(true)
}
