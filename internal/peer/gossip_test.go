package peer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	from    peer.ID
	payload []byte
}

func setupGossips(ctx context.Context, t *testing.T, n int, cfg Config) ([]*Gossip, []chan received) {
	t.Helper()

	mn, err := mocknet.FullMeshLinked(n)
	require.NoError(t, err)
	t.Cleanup(func() { mn.Close() })

	gossips := make([]*Gossip, n)
	inboxes := make([]chan received, n)
	for i := range gossips {
		inbox := make(chan received, 16)
		inboxes[i] = inbox
		g, err := NewGossipFromHost(ctx, mn.Hosts()[i], cfg, func(from peer.ID, payload []byte) {
			inbox <- received{from: from, payload: payload}
		})
		require.NoError(t, err)
		t.Cleanup(func() { g.Close() })
		gossips[i] = g
	}

	require.NoError(t, mn.ConnectAllButSelf())
	return gossips, inboxes
}

func TestGossip_BroadcastReachesPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	gossips, inboxes := setupGossips(ctx, t, 2, Config{MinPeers: 1})
	g0, g1 := gossips[0], gossips[1]

	payload := []byte("signed-tx-bytes")
	require.NoError(t, g0.Broadcast(ctx, payload))

	select {
	case msg := <-inboxes[1]:
		assert.Equal(t, g0.ID(), msg.from)
		assert.True(t, bytes.Equal(payload, msg.payload))
	case <-ctx.Done():
		t.Fatal("peer did not receive broadcast")
	}

	assert.Contains(t, g1.Peers(), g0.ID())

	select {
	case msg := <-inboxes[0]:
		t.Fatalf("own broadcast delivered to handler: %v", msg)
	default:
	}
}

func TestGossip_OversizedPayloadIsPermanent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	gossips, _ := setupGossips(ctx, t, 1, Config{MaxMessageSize: 64})

	err := gossips[0].Broadcast(ctx, make([]byte, 65))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestGossip_EmptyPayloadIsPermanent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	gossips, _ := setupGossips(ctx, t, 1, Config{})

	err := gossips[0].Broadcast(ctx, nil)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestGossip_NoPeersTimesOutTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	gossips, _ := setupGossips(ctx, t, 1, Config{MinPeers: 1, PublishTimeout: 100 * time.Millisecond})

	err := gossips[0].Broadcast(ctx, []byte("tx"))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGossip_CloseIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	gossips, _ := setupGossips(ctx, t, 1, Config{})
	require.NoError(t, gossips[0].Close())
	assert.NoError(t, gossips[0].Close())
}

func TestParseAddrs(t *testing.T) {
	addrs, err := parseAddrs([]string{"/ip4/127.0.0.1/tcp/4001", " ", ""})
	require.NoError(t, err)
	assert.Len(t, addrs, 1)

	_, err = parseAddrs([]string{"not-a-multiaddr"})
	assert.Error(t, err)
}
