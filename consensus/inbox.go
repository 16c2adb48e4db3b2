package consensus

import (
	"sync"

	"github.com/arvidsson/benor-agreement/core"
)

// tally is the per-(phase,round) counter set, one slot per value in V.
type tally struct {
	counts [3]int // indexed by core.Value (Zero, One, Unknown)
}

type roundKey struct {
	phase core.MessageType
	round core.Round
}

// Inbox accumulates per-(phase, round, value) message counts (§4.2). It is
// the generalization of the reference's Store — which kept full messages
// keyed by a string for later quorum lookup (impl/ibft/store.go,
// AddMessage/GetMessagesByKey) — into a pure counter, since the decision
// rule here only ever needs counts, never message replay.
//
// Safe for concurrent use: the consensus loop's wait-loop samples counts
// while HTTP handlers record incoming messages concurrently (§5).
type Inbox struct {
	mu     sync.Mutex
	tallys map[roundKey]*tally
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{tallys: make(map[roundKey]*tally)}
}

// Prepare idempotently ensures both (R, round) and (P, round) tallies exist,
// zeroed. The Engine calls this at the top of every round; Record also
// calls it so an out-of-order or early-arriving message never panics on a
// missing map entry.
func (ib *Inbox) Prepare(round core.Round) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.prepareLocked(core.PhaseR, round)
	ib.prepareLocked(core.PhaseP, round)
}

func (ib *Inbox) prepareLocked(phase core.MessageType, round core.Round) *tally {
	key := roundKey{phase, round}
	t, ok := ib.tallys[key]
	if !ok {
		t = &tally{}
		ib.tallys[key] = t
	}
	return t
}

// Record increments the counter for (phase, round, val) by one. No
// deduplication by sender is performed (§4.2, §9): a peer retransmitting the
// same vote is counted twice.
func (ib *Inbox) Record(phase core.MessageType, round core.Round, val core.Value) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	t := ib.prepareLocked(phase, round)
	t.counts[val]++
}

// Count reads the current counter for (phase, round, val); 0 if the round
// was never prepared.
func (ib *Inbox) Count(phase core.MessageType, round core.Round, val core.Value) int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	key := roundKey{phase, round}
	t, ok := ib.tallys[key]
	if !ok {
		return 0
	}
	return t.counts[val]
}

// BinarySum returns Count(phase,round,Zero) + Count(phase,round,One), the
// quantity the phase-wait loop blocks on reaching N-F (§4.1 steps 4/8).
func (ib *Inbox) BinarySum(phase core.MessageType, round core.Round) int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	key := roundKey{phase, round}
	t, ok := ib.tallys[key]
	if !ok {
		return 0
	}
	return t.counts[core.Zero] + t.counts[core.One]
}
