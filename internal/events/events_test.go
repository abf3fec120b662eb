package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	a := hub.Subscribe(ctx)
	b := hub.Subscribe(ctx)
	require.Equal(t, 2, hub.Subscribers())

	evt := Event{Kind: KindDecided, RequestID: "r1", Status: "approved"}
	require.NoError(t, hub.Publish(ctx, evt))
	assert.Equal(t, evt, <-a)
	assert.Equal(t, evt, <-b)

	cancel()
	_, open := <-a
	assert.False(t, open)
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := hub.Subscribe(ctx)

	for i := 0; i < 40; i++ {
		require.NoError(t, hub.Publish(ctx, Event{Kind: KindSubmitted}))
	}
	assert.Len(t, ch, cap(ch))
}

func TestRedisPublishAndRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	sub := hub.Subscribe(ctx)
	require.NoError(t, Relay(ctx, client, "mototumen:moderation", hub))

	evt := Event{
		Kind:      KindDecided,
		RequestID: "01HXREQ",
		OrgType:   "shop",
		From:      "pending",
		Status:    "rejected",
		ActorID:   "u-ceo",
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, NewRedisPublisher(client, "mototumen:moderation").Publish(ctx, evt))

	select {
	case got := <-sub:
		assert.Equal(t, evt, got)
	case <-time.After(2 * time.Second):
		t.Fatal("relayed event not received")
	}
}

func TestRedisPublishFailsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := NewRedisPublisher(client, "c").Publish(context.Background(), Event{Kind: KindSubmitted})
	assert.Error(t, err)
}
