package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork_PeersSeeEachOther(t *testing.T) {
	n := NewNetwork()
	ctx := context.Background()

	var aSaw, bSaw []string

	ra, err := n.Joiner("a").Join(ctx, "room-1")
	require.NoError(t, err)
	ra.OnPeerJoin(func(p string) { aSaw = append(aSaw, p) })

	rb, err := n.Joiner("b").Join(ctx, "room-1")
	require.NoError(t, err)
	rb.OnPeerJoin(func(p string) { bSaw = append(bSaw, p) })

	// a learns about b at b's join time; b learned about a synchronously
	// inside Join, before its handler was registered, so the roster still
	// carries it.
	assert.Equal(t, []string{"b"}, aSaw)
	assert.Equal(t, []string{"a"}, rb.Peers())
	assert.Equal(t, 2, n.OpenConns())
}

func TestNetwork_ActionFanOutExcludesSender(t *testing.T) {
	n := NewNetwork()
	ctx := context.Background()

	ra, _ := n.Joiner("a").Join(ctx, "room-1")
	rb, _ := n.Joiner("b").Join(ctx, "room-1")
	rc, _ := n.Joiner("c").Join(ctx, "other-room")

	send, _ := ra.MakeAction("chat")

	var got []string
	_, recvB := rb.MakeAction("chat")
	recvB(func(from string, payload []byte) {
		got = append(got, from+":"+string(payload))
	})
	_, recvC := rc.MakeAction("chat")
	recvC(func(from string, payload []byte) {
		t.Error("peer in another room must not receive the action")
	})

	var selfGot int
	_, recvA := ra.MakeAction("chat")
	recvA(func(string, []byte) { selfGot++ })

	require.NoError(t, send(ctx, []byte("hi")))
	assert.Equal(t, []string{"a:hi"}, got)
	assert.Zero(t, selfGot)
}

func TestNetwork_LeaveFiresPeerLeaveAndDecrements(t *testing.T) {
	n := NewNetwork()
	ctx := context.Background()

	ra, _ := n.Joiner("a").Join(ctx, "room-1")
	rb, _ := n.Joiner("b").Join(ctx, "room-1")

	var left []string
	ra.OnPeerLeave(func(p string) { left = append(left, p) })

	require.NoError(t, rb.Leave())
	require.NoError(t, rb.Leave()) // idempotent

	assert.Equal(t, []string{"b"}, left)
	assert.Equal(t, 1, n.OpenConns())
	assert.Empty(t, ra.Peers())
	assert.True(t, rb.(*MemoryRoom).Left())

	send, _ := rb.MakeAction("chat")
	assert.Error(t, send(ctx, nil))
}

func TestNetwork_ProbeErrorBlocksJoin(t *testing.T) {
	n := NewNetwork()
	boom := errors.New("tracker down")
	n.SetProbeError(boom)

	j := n.Joiner("a")
	assert.ErrorIs(t, j.Probe(context.Background()), boom)

	_, err := j.Join(context.Background(), "room-1")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n.OpenConns())
}
