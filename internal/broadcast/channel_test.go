package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"storefront-admin/internal/localstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestChannel(t *testing.T, mr *miniredis.Miniredis) (*Channel, *localstore.Store) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := localstore.New(rdb, "test", time.Hour, zap.NewNop())
	return New(store, "test:events", zap.NewNop()), store
}

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func TestPublishDeliversByNameAndKey(t *testing.T) {
	mr := startMiniredis(t)
	channel, _ := newTestChannel(t, mr)

	var byName, byKey int32
	channel.Subscribe(EventCouponsUpdated, func(e Event) { atomic.AddInt32(&byName, 1) })
	channel.Subscribe(localstore.KeyCoupons, func(e Event) { atomic.AddInt32(&byKey, 1) })

	channel.Publish(context.Background(), EventCouponsUpdated, localstore.KeyCoupons, []string{"SAVE10"})

	if atomic.LoadInt32(&byName) != 1 || atomic.LoadInt32(&byKey) != 1 {
		t.Errorf("Expected one delivery per subscription, got name=%d key=%d", byName, byKey)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	mr := startMiniredis(t)
	channel, _ := newTestChannel(t, mr)

	var calls int32
	unsubscribe := channel.Subscribe(EventProductsUpdated, func(e Event) { atomic.AddInt32(&calls, 1) })

	channel.Publish(context.Background(), EventProductsUpdated, localstore.KeyProducts, nil)
	unsubscribe()
	channel.Publish(context.Background(), EventProductsUpdated, localstore.KeyProducts, nil)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestPublishBumpsSyncTrigger(t *testing.T) {
	mr := startMiniredis(t)
	channel, store := newTestChannel(t, mr)
	ctx := context.Background()

	channel.Publish(ctx, EventSyncTrigger, "", nil)

	if store.GetString(ctx, localstore.KeySyncTrigger) == "" {
		t.Error("Expected sync trigger entry to be set")
	}
}

func TestPanickingHandlerDoesNotBreakOthers(t *testing.T) {
	mr := startMiniredis(t)
	channel, _ := newTestChannel(t, mr)

	var delivered int32
	channel.Subscribe(EventCouponsUpdated, func(e Event) { panic("boom") })
	channel.Subscribe(EventCouponsUpdated, func(e Event) { atomic.AddInt32(&delivered, 1) })

	channel.Publish(context.Background(), EventCouponsUpdated, "", nil)

	if delivered != 1 {
		t.Errorf("Expected healthy handler to run, got %d", delivered)
	}
}

func TestRunDeliversEventsFromOtherInstances(t *testing.T) {
	mr := startMiniredis(t)
	sender, _ := newTestChannel(t, mr)
	receiver, _ := newTestChannel(t, mr)

	received := make(chan Event, 4)
	receiver.Subscribe(EventCategoryImagesUpdated, func(e Event) { received <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)

	// Wait until the subscription is registered before publishing
	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sender.Publish(ctx, EventCategoryImagesUpdated, localstore.KeyCategoryImages, map[string]string{"engines": "e.png"})

	select {
	case e := <-received:
		if !receiver.IsRemote(e) {
			t.Error("Event from sender should be remote for receiver")
		}
		var payload map[string]string
		if err := json.Unmarshal(e.Payload, &payload); err != nil || payload["engines"] != "e.png" {
			t.Errorf("Unexpected payload %s", e.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for remote event")
	}
}

func TestRunIgnoresOwnEvents(t *testing.T) {
	mr := startMiniredis(t)
	channel, _ := newTestChannel(t, mr)

	var calls int32
	channel.Subscribe(EventSubcategoriesUpdated, func(e Event) { atomic.AddInt32(&calls, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go channel.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	channel.Publish(ctx, EventSubcategoriesUpdated, localstore.KeySubcategories, nil)
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected only the local delivery, got %d", got)
	}
}

// failPublish makes every PUBLISH fail while other commands go through
type failPublish struct{}

func (failPublish) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (failPublish) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "publish" {
			err := errors.New("publish unavailable")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failPublish) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestPublishFailureRewritesKey(t *testing.T) {
	mr := startMiniredis(t)
	channel, store := newTestChannel(t, mr)
	store.Client().AddHook(failPublish{})
	ctx := context.Background()

	mr.Set(store.Key(localstore.KeyCoupons), `["OLD"]`)

	var delivered int32
	channel.Subscribe(EventCouponsUpdated, func(e Event) { atomic.AddInt32(&delivered, 1) })

	channel.Publish(ctx, EventCouponsUpdated, localstore.KeyCoupons, []string{"SAVE10"})

	if atomic.LoadInt32(&delivered) != 1 {
		t.Errorf("Expected local subscriber to receive the event, got %d deliveries", delivered)
	}

	got, err := mr.Get(store.Key(localstore.KeyCoupons))
	if err != nil {
		t.Fatalf("Expected key to exist after rewrite: %v", err)
	}
	if got != `["SAVE10"]` {
		t.Errorf("Expected key to hold the event payload, got %s", got)
	}
	if store.GetString(ctx, localstore.KeySyncTrigger) == "" {
		t.Error("Expected sync trigger entry to be set")
	}
}
