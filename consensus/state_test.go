package consensus_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arvidsson/benor-agreement/consensus"
	"github.com/arvidsson/benor-agreement/core"
)

func TestNewNodeStateNonFaulty(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.One}
	s := consensus.NewNodeState(cfg)

	require.False(t, s.Killed())
	require.False(t, s.Decided())
	require.Equal(t, core.Round(1), s.Round())
	require.NotNil(t, s.X())
	require.Equal(t, core.One, *s.X())
}

func TestNewNodeStateFaulty(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 1, NodeID: 2, IsFaulty: true}
	s := consensus.NewNodeState(cfg)

	require.Nil(t, s.X())
	require.False(t, s.Decided())
	require.Equal(t, core.Round(0), s.Round())

	snap := s.Snapshot()
	require.Nil(t, snap.X)
	require.Nil(t, snap.Decided)
	require.Nil(t, snap.K)
}

func TestKillIsMonotonic(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	s := consensus.NewNodeState(cfg)

	s.Kill()
	require.True(t, s.Killed())
	s.Kill()
	require.True(t, s.Killed())
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	s := consensus.NewNodeState(cfg)

	snap := s.Snapshot()
	*snap.X = core.One
	require.Equal(t, core.Zero, *s.X())
}
