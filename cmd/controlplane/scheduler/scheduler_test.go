package scheduler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeon/renderplane/cmd/controlplane/models"
)

func ranked(load, maxQueue int) *rankedNode {
	return &rankedNode{
		node: &models.WorkerNode{ID: uuid.New(), MaxQueue: maxQueue},
		load: load,
	}
}

func TestPickNode_SpreadsAcrossFleet(t *testing.T) {
	a := ranked(0, 2)
	b := ranked(0, 2)
	fleet := []*rankedNode{a, b}

	first := pickNode(fleet)
	require.NotNil(t, first)

	second := pickNode(fleet)
	require.NotNil(t, second)

	// two picks at equal load land on different nodes
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, a.load)
	assert.Equal(t, 1, b.load)
}

func TestPickNode_RespectsQueueCapacity(t *testing.T) {
	a := ranked(1, 1)
	fleet := []*rankedNode{a}

	assert.Nil(t, pickNode(fleet))
}

func TestPickNode_DrainsToNil(t *testing.T) {
	a := ranked(0, 1)
	b := ranked(0, 2)
	fleet := []*rankedNode{a, b}

	for i := 0; i < 3; i++ {
		require.NotNil(t, pickNode(fleet), "pick %d", i)
	}
	assert.Nil(t, pickNode(fleet))
}

func TestDispatchLimit_CappedBySpareCapacity(t *testing.T) {
	// One node, one free slot, five claimable jobs: only one may be
	// claimed; the rest stay QUEUED for the next tick instead of erroring.
	fleet := []*rankedNode{ranked(0, 1)}
	assert.Equal(t, 1, dispatchLimit(fleet, 5))

	// Every claimed job must land on a node
	for i := 0; i < dispatchLimit(fleet, 5); i++ {
		require.NotNil(t, pickNode(fleet))
	}
	assert.Nil(t, pickNode(fleet))
}

func TestDispatchLimit_BatchBound(t *testing.T) {
	fleet := []*rankedNode{ranked(0, 4), ranked(1, 4)}
	assert.Equal(t, 5, dispatchLimit(fleet, 8))
	assert.Equal(t, 3, dispatchLimit(fleet, 3))
	assert.Equal(t, 0, dispatchLimit(nil, 3))
}

func TestPickNode_PrefersLeastLoaded(t *testing.T) {
	busy := ranked(3, 10)
	idle := ranked(0, 10)
	fleet := []*rankedNode{busy, idle}

	got := pickNode(fleet)
	require.NotNil(t, got)
	assert.Equal(t, idle.node.ID, got.ID)
}
