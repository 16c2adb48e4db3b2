package consensus

import "github.com/arvidsson/benor-agreement/core"

// Config holds the protocol parameters that are immutable over a node's
// lifetime (§3). Unlike the reference IBFT's Config (a bare N feeding a
// 3F+1 quorum computation), this protocol's quorum math is all in terms of
// the declared fault bound F and the classical majority threshold.
type Config struct {
	N            int
	F            int
	NodeID       core.NodeID
	InitialValue core.Value
	IsFaulty     bool
}

// ToleranceThreshold is floor((N-1)/2): the largest F under which agreement
// is guaranteed.
func (c Config) ToleranceThreshold() int {
	return (c.N - 1) / 2
}

// ExceedingFaultLimit reports whether the declared F exceeds the safe
// threshold; when true the engine keeps running after it latches a decision
// instead of stopping.
func (c Config) ExceedingFaultLimit() bool {
	return c.F > c.ToleranceThreshold()
}

// QuorumSize is the N-F threshold a phase wait blocks for (§4.1 steps 4/8).
func (c Config) QuorumSize() int {
	return c.N - c.F
}

// MajorityThreshold is floor(N/2), the strict-majority bar a Phase-R tally
// must clear to produce a non-"?" confirm value (§4.1 step 5).
func (c Config) MajorityThreshold() int {
	return c.N / 2
}
