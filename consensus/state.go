package consensus

import (
	"sync"

	"github.com/arvidsson/benor-agreement/core"
)

// NodeState is the mutable record described in §3: killed, x, decided and k.
// Nullability is modeled with pointers, mirroring the reference's own
// State.PreparedValue/PreparedRound optionality (nil meaning "unset"), so a
// faulty node's permanently-nil x/decided/k is representable without a
// separate sentinel.
//
// Mutation is confined to the Engine after boot (§5 "Shared resources");
// the mutex exists for reader safety — the HTTP control surface's getState
// handler, and a concurrent message handler reading killed — not writer
// contention.
type NodeState struct {
	mu sync.RWMutex

	killed  bool
	x       *core.Value
	decided *bool
	k       *Round
}

// Round is a local alias of core.Round, used for the k field and its
// accessors.
type Round = core.Round

// NewNodeState creates the state a node boots into. A faulty node gets
// permanently-nil x/decided/k per invariant 4; a non-faulty node starts at
// round 1 with x set to its configured initial value.
func NewNodeState(cfg Config) *NodeState {
	s := &NodeState{}
	if cfg.IsFaulty {
		return s
	}
	x := cfg.InitialValue
	decided := false
	k := Round(1)
	s.x = &x
	s.decided = &decided
	s.k = &k
	return s
}

// Killed reports whether the node has been permanently stopped.
func (s *NodeState) Killed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killed
}

// Kill sets killed = true. Monotonic: calling it again is a no-op.
func (s *NodeState) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed = true
}

// Snapshot is an immutable copy of the state at one instant, safe to read
// without holding the lock afterward.
type Snapshot struct {
	Killed  bool
	X       *core.Value
	Decided *bool
	K       *Round
}

// Snapshot returns a copy of the current state.
func (s *NodeState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Killed:  s.killed,
		X:       copyValue(s.x),
		Decided: copyBool(s.decided),
		K:       copyRound(s.k),
	}
}

// X returns the current proposal, or nil for a faulty node.
func (s *NodeState) X() *core.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyValue(s.x)
}

// Decided reports whether a terminal decision has been latched. Always
// false for a faulty node (the caller must separately check for faulty-ness
// via nil X/K if it needs to distinguish "not yet decided" from "faulty").
func (s *NodeState) Decided() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decided != nil && *s.decided
}

// Round returns the current round number, or 0 for a faulty node.
func (s *NodeState) Round() Round {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.k == nil {
		return 0
	}
	return *s.k
}

// setX updates the proposal value. Invariant 1 forbids calling this once
// decided == true (under the safe fault count); the Engine enforces that by
// construction — it only ever calls setX before the decision rule latches,
// or from the coin-flip branch, which only runs when the round did not
// decide.
func (s *NodeState) setX(v core.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x = &v
}

// latch sets x and decided together, the one mutation that transitions a
// node into its terminal state (§3 invariant 1).
func (s *NodeState) latch(v core.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x = &v
	decided := true
	s.decided = &decided
}

// advanceRound sets k to the next round number (§3 invariant 2:
// non-decreasing).
func (s *NodeState) advanceRound(k Round) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.k = &k
}

func copyValue(v *core.Value) *core.Value {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}

func copyRound(r *Round) *Round {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
