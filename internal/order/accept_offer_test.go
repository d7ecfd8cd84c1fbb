package order

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/conversation"
)

func TestAcceptOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg := env.seedOffer(t, "buyer-1", "seller-1", 150)

	o, err := env.engine.AcceptOffer(ctx, msg.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", o.BuyerID)
	assert.Equal(t, "seller-1", o.SellerID)
	assert.Equal(t, int64(150), o.Amount)
	assert.Equal(t, StatusPendingRequirements, o.Status)
	require.NotNil(t, o.SourceMessageID)
	assert.Equal(t, msg.ID, *o.SourceMessageID)

	stored, err := env.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, conversation.OfferConsumed, stored.Offer.Status)
}

func TestAcceptOfferUnknownMessage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.AcceptOffer(context.Background(), "no-such-message", "buyer-1")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestAcceptOfferOnTextMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conv, err := env.store.CreateConversation(ctx, "buyer-1", "seller-1")
	require.NoError(t, err)
	msg, err := env.store.AppendText(ctx, conv.ID, "seller-1", "hello there")
	require.NoError(t, err)

	_, err = env.engine.AcceptOffer(ctx, msg.ID, "buyer-1")
	assert.True(t, apperr.Is(err, apperr.CodeNotAnOffer))
}

func TestAcceptOfferByOutsider(t *testing.T) {
	env := newTestEnv(t)

	msg := env.seedOffer(t, "buyer-1", "seller-1", 150)

	_, err := env.engine.AcceptOffer(context.Background(), msg.ID, "stranger")
	assert.True(t, apperr.Is(err, apperr.CodeNotAParticipant))
}

func TestAcceptOwnOffer(t *testing.T) {
	env := newTestEnv(t)

	msg := env.seedOffer(t, "buyer-1", "seller-1", 150)

	_, err := env.engine.AcceptOffer(context.Background(), msg.ID, "seller-1")
	assert.True(t, apperr.Is(err, apperr.CodeSelfAcceptance))
}

func TestAcceptOfferTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg := env.seedOffer(t, "buyer-1", "seller-1", 150)

	_, err := env.engine.AcceptOffer(ctx, msg.ID, "buyer-1")
	require.NoError(t, err)

	_, err = env.engine.AcceptOffer(ctx, msg.ID, "buyer-1")
	assert.True(t, apperr.Is(err, apperr.CodeOfferAlreadyConsumed))
	assert.Equal(t, 1, env.store.orderCount())
}

// A duplicated network retry: many concurrent acceptances of the same
// offer produce exactly one order; every other caller gets
// OfferAlreadyConsumed.
func TestAcceptOfferConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg := env.seedOffer(t, "buyer-1", "seller-1", 150)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.AcceptOffer(ctx, msg.ID, "buyer-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, consumed int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.Is(err, apperr.CodeOfferAlreadyConsumed):
			consumed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, consumed)
	assert.Equal(t, 1, env.store.orderCount())
}
