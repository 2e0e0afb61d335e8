package server

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxQueueDropsNewestFrame(t *testing.T) {
	q := newRxQueue(2, prometheus.NewRegistry())
	assert.True(t, q.pushFrame(1, []byte{1}))
	assert.True(t, q.pushFrame(1, []byte{2}))
	assert.False(t, q.pushFrame(1, []byte{3}))
	assert.Equal(t, uint64(1), q.Dropped())

	items := q.drain()
	require.Len(t, items, 2)
	assert.Equal(t, []byte{1}, items[0].frame)
	assert.Equal(t, []byte{2}, items[1].frame)

	// room again once drained
	assert.True(t, q.pushFrame(1, []byte{4}))
}

func TestRxQueueKeepsTopologyOrder(t *testing.T) {
	q := newRxQueue(1, prometheus.NewRegistry())
	q.pushEvent(TopologyEvent{Kind: TopoPortState, Port: 1})
	assert.True(t, q.pushFrame(2, []byte{0xaa}))
	// the frame bound does not apply to events
	q.pushEvent(TopologyEvent{Kind: TopoPortRole, Port: 3})
	q.pushEvent(TopologyEvent{Kind: TopoMstiMap})
	assert.False(t, q.pushFrame(2, []byte{0xbb}))

	items := q.drain()
	require.Len(t, items, 4)
	assert.Equal(t, TopoPortState, items[0].event.Kind)
	assert.Nil(t, items[1].event)
	assert.Equal(t, uint32(2), items[1].port)
	assert.Equal(t, TopoPortRole, items[2].event.Kind)
	assert.Equal(t, TopoMstiMap, items[3].event.Kind)
}

func TestRxQueueCopiesFrame(t *testing.T) {
	q := newRxQueue(4, prometheus.NewRegistry())
	buf := []byte{1, 2, 3}
	q.pushFrame(1, buf)
	buf[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, q.drain()[0].frame)
}

func TestRxQueueClear(t *testing.T) {
	q := newRxQueue(4, prometheus.NewRegistry())
	q.pushFrame(1, []byte{1})
	q.pushEvent(TopologyEvent{Kind: TopoVlanAdmin})
	q.clear()
	assert.Empty(t, q.drain())
	select {
	case <-q.notify:
		t.Fatal("notification left after clear")
	default:
	}
}
