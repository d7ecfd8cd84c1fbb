package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := hub.Subscribe(ctx, OrderChannel("o-1"))
	b := hub.Subscribe(ctx, OrderChannel("o-1"))

	hub.Publish(OrderChannel("o-1"), Event{Type: EventOrderUpdated, Data: "payload"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			assert.Equal(t, EventOrderUpdated, evt.Type)
			assert.Equal(t, "payload", evt.Data)
			assert.False(t, evt.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orderCh := hub.Subscribe(ctx, OrderChannel("o-1"))
	convCh := hub.Subscribe(ctx, ConversationChannel("c-1"))

	hub.Publish(ConversationChannel("c-1"), Event{Type: EventMessageNew})

	select {
	case <-convCh:
	case <-time.After(time.Second):
		t.Fatal("conversation subscriber did not receive event")
	}

	select {
	case evt := <-orderCh:
		t.Fatalf("order subscriber received foreign event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelClosesOnlyThatSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())

	keepCtx, keepCancel := context.WithCancel(context.Background())
	defer keepCancel()
	dropCtx, dropCancel := context.WithCancel(context.Background())

	kept := hub.Subscribe(keepCtx, OrderChannel("o-1"))
	dropped := hub.Subscribe(dropCtx, OrderChannel("o-1"))

	dropCancel()

	// The dropped stream closes.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-dropped:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(OrderChannel("o-1")) == 1
	}, time.Second, 10*time.Millisecond)

	// The remaining subscriber still receives events.
	hub.Publish(OrderChannel("o-1"), Event{Type: EventOrderUpdated})
	select {
	case evt, open := <-kept:
		require.True(t, open)
		assert.Equal(t, EventOrderUpdated, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber did not receive event")
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			subCtx, subCancel := context.WithCancel(ctx)
			ch := hub.Subscribe(subCtx, OrderChannel("o-1"))
			subCancel()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish(OrderChannel("o-1"), Event{Type: EventOrderUpdated})
			}
		}()
	}
	wg.Wait()
}
