package reconcile

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fixture struct {
	store      *localstore.Store
	bus        *broadcast.Channel
	backend    *repository.MemoryBackend
	modules    admin.Modules
	reconciler *Reconciler
}

type fakeDeployer struct {
	calls int32
	err   error
}

func (d *fakeDeployer) Configured() bool { return true }

func (d *fakeDeployer) TriggerDeployment(ctx context.Context, force bool) error {
	atomic.AddInt32(&d.calls, 1)
	return d.err
}

func newFixture(t *testing.T, deployer Deployer) fixture {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	logger := zap.NewNop()
	store := localstore.New(rdb, "test", time.Hour, logger)
	bus := broadcast.New(store, "test:events", logger)
	backend := repository.NewMemoryBackend()

	modules := admin.Modules{
		Products:       admin.NewProducts(ctx, store, bus, backend, nil, logger),
		CategoryImages: admin.NewCategoryImages(ctx, store, bus, backend, nil, nil, logger),
		Subcategories:  admin.NewSubcategories(ctx, store, bus, logger),
		Coupons:        admin.NewCoupons(ctx, store, bus, logger),
	}

	return fixture{
		store:      store,
		bus:        bus,
		backend:    backend,
		modules:    modules,
		reconciler: NewReconciler(backend, store, bus, modules, deployer, Options{}, logger),
	}
}

func (f fixture) seedRemote(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if err := f.backend.UpsertProducts(ctx, []domain.Product{
		{ID: uuid.NewString(), Name: "V8", Price: 100, Category: "Engines", Subcategory: "A Class"},
	}); err != nil {
		t.Fatalf("Failed to seed products: %v", err)
	}
	_ = f.backend.UpsertCoupons(ctx, []domain.Coupon{{ID: uuid.NewString(), Code: "SAVE10", DiscountPercentage: 10, Active: true}})
	_ = f.backend.UpsertCategoryImages(ctx, domain.CategoryImageMap{"engines": "e.png"})
	_ = f.backend.UpsertSubcategories(ctx, domain.SubcategoryMap{"Engines": {"A Class"}})
}

func TestPullAllTreatsFailedCollectionAsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	f.seedRemote(t)
	f.backend.FailCollection(domain.CollectionCoupons, errors.New("timeout"))

	result, err := f.reconciler.PullAll(context.Background())
	if err != nil {
		t.Fatalf("Failed collection must not fail the pull: %v", err)
	}
	if len(result.Coupons) != 0 {
		t.Errorf("Expected empty coupons, got %v", result.Coupons)
	}
	if !slices.Equal(result.Failed, []string{domain.CollectionCoupons}) {
		t.Errorf("Expected coupons listed as failed, got %v", result.Failed)
	}
	if len(result.Products) != 1 || result.CategoryImages["engines"] != "e.png" {
		t.Errorf("Other collections should be pulled, got %+v", result.Snapshot)
	}
}

func TestPullAllUnreachableRemote(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.SetUnavailable(repository.ErrBackendUnavailable)

	if _, err := f.reconciler.PullAll(context.Background()); !errors.Is(err, ErrRemoteUnavailable) {
		t.Errorf("Expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestReloadAllReplacesLocalState(t *testing.T) {
	f := newFixture(t, nil)
	f.seedRemote(t)
	ctx := context.Background()

	f.modules.Coupons.Create(ctx, domain.Coupon{Code: "LOCAL", DiscountPercentage: 5, Active: true})

	result, err := f.reconciler.ReloadAll(ctx, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Synced || result.Degraded {
		t.Errorf("Unexpected result: %+v", result)
	}

	if products := f.modules.Products.All(); len(products) != 1 || products[0].Name != "V8" {
		t.Errorf("Expected remote products, got %v", products)
	}
	if coupons := f.modules.Coupons.All(); len(coupons) != 1 || coupons[0].Code != "SAVE10" {
		t.Errorf("Expected remote coupons, got %v", coupons)
	}
	if f.store.HasPendingChanges(ctx) {
		t.Error("Reload should clear pending changes")
	}
	if _, ok := f.store.Time(ctx, localstore.KeyLastSync); !ok {
		t.Error("Reload should record the sync time")
	}
	if f.store.Held(ctx, localstore.KeySyncInProgress) {
		t.Error("Sync lease should be released")
	}
}

func TestReloadAllKeepsLocalCopyOfFailedCollection(t *testing.T) {
	f := newFixture(t, nil)
	f.seedRemote(t)
	ctx := context.Background()

	f.modules.Coupons.Create(ctx, domain.Coupon{Code: "LOCAL", DiscountPercentage: 5, Active: true})
	f.backend.FailCollection(domain.CollectionCoupons, errors.New("timeout"))

	result, err := f.reconciler.ReloadAll(ctx, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !slices.Contains(result.Failed, domain.CollectionCoupons) {
		t.Errorf("Expected coupons reported as failed, got %v", result.Failed)
	}
	if _, ok := f.modules.Coupons.Validate("local"); !ok {
		t.Error("Local coupons should survive a failed pull")
	}
}

// Two immediate reloads produce the same state and announce only once
func TestReloadAllIsIdempotentAndThrottled(t *testing.T) {
	f := newFixture(t, nil)
	f.seedRemote(t)
	ctx := context.Background()

	var triggers int32
	f.bus.Subscribe(broadcast.EventSyncTrigger, func(broadcast.Event) { atomic.AddInt32(&triggers, 1) })

	if _, err := f.reconciler.ReloadAll(ctx, false); err != nil {
		t.Fatalf("First reload failed: %v", err)
	}
	first := f.modules.Snapshot()

	if _, err := f.reconciler.ReloadAll(ctx, false); err != nil {
		t.Fatalf("Second reload failed: %v", err)
	}
	second := f.modules.Snapshot()

	if len(first.Products) != len(second.Products) || first.Products[0].ID != second.Products[0].ID {
		t.Errorf("Products differ between reloads: %v vs %v", first.Products, second.Products)
	}
	if first.CategoryImages["engines"] != second.CategoryImages["engines"] {
		t.Error("Category images differ between reloads")
	}
	if !slices.Equal(first.Subcategories["Engines"], second.Subcategories["Engines"]) {
		t.Error("Subcategories differ between reloads")
	}
	if len(first.Coupons) != len(second.Coupons) || first.Coupons[0].ID != second.Coupons[0].ID {
		t.Error("Coupons differ between reloads")
	}

	if got := atomic.LoadInt32(&triggers); got != 1 {
		t.Errorf("Expected one sync trigger within the throttle window, got %d", got)
	}
}

func TestReloadAllThrottleWindowExpires(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	f.reconciler.now = func() time.Time { return clock }

	var triggers int32
	f.bus.Subscribe(broadcast.EventSyncTrigger, func(broadcast.Event) { atomic.AddInt32(&triggers, 1) })

	_, _ = f.reconciler.ReloadAll(ctx, false)
	clock = clock.Add(6 * time.Second)
	_, _ = f.reconciler.ReloadAll(ctx, false)

	if got := atomic.LoadInt32(&triggers); got != 2 {
		t.Errorf("Expected a trigger per reload outside the throttle window, got %d", got)
	}
}

func TestReloadAllDegradedReloadsFromLocalStore(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// another writer updated the shared store
	_ = f.store.Save(ctx, localstore.KeyCoupons, []domain.Coupon{{ID: uuid.NewString(), Code: "SHARED", DiscountPercentage: 10, Active: true}})
	f.backend.SetUnavailable(repository.ErrBackendUnavailable)

	result, err := f.reconciler.ReloadAll(ctx, false)
	if err != nil {
		t.Fatalf("Degraded reload must not error: %v", err)
	}
	if result.Synced || !result.Degraded || result.Error == "" {
		t.Errorf("Expected degraded result, got %+v", result)
	}
	if _, ok := f.modules.Coupons.Validate("shared"); !ok {
		t.Error("Modules should reload from the local store")
	}
	if !f.store.HasPendingChanges(ctx) {
		t.Error("Degraded reload must not clear pending changes")
	}
}

func TestReloadAllIsExclusive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	lease, err := f.store.Acquire(ctx, localstore.KeySyncInProgress, time.Minute)
	if err != nil {
		t.Fatalf("Failed to acquire lease: %v", err)
	}

	if _, err := f.reconciler.ReloadAll(ctx, false); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress, got %v", err)
	}

	_ = lease.Release(ctx)
	if _, err := f.reconciler.ReloadAll(ctx, false); err != nil {
		t.Errorf("Expected reload after release, got %v", err)
	}
}

func TestReloadAllTriggersDeployment(t *testing.T) {
	deployer := &fakeDeployer{}
	f := newFixture(t, deployer)

	result, err := f.reconciler.ReloadAll(context.Background(), true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Deployed || atomic.LoadInt32(&deployer.calls) != 1 {
		t.Errorf("Expected one deployment, got %+v", result)
	}

	deployer.err = errors.New("webhook down")
	f.reconciler.now = func() time.Time { return time.Now().Add(time.Minute) }
	result, _ = f.reconciler.ReloadAll(context.Background(), true)
	if result.Deployed || result.DeployError == "" {
		t.Errorf("Expected deploy error to be reported, got %+v", result)
	}
}

func TestPushAllUpsertsLocalCollections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.modules.Coupons.Create(ctx, domain.Coupon{Code: "LOCAL", DiscountPercentage: 5, Active: true})
	f.modules.Subcategories.Set(ctx, "Engines", []string{"A Class"})

	if err := f.reconciler.PushAll(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	coupons, _ := f.backend.ListCoupons(ctx)
	if len(coupons) != 1 || coupons[0].Code != "LOCAL" {
		t.Errorf("Expected coupon pushed, got %v", coupons)
	}
	subcategories, _ := f.backend.ListSubcategories(ctx)
	if len(subcategories["Engines"]) != 1 {
		t.Errorf("Expected subcategories pushed, got %v", subcategories)
	}
	if f.store.HasPendingChanges(ctx) {
		t.Error("Successful push should clear pending changes")
	}
}

func TestPushAllFailureKeepsPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.modules.Subcategories.Set(ctx, "Engines", []string{"A Class"})
	f.backend.FailCollection(domain.CollectionSubcategories, errors.New("timeout"))

	if err := f.reconciler.PushAll(ctx); err == nil {
		t.Fatal("Expected push error")
	}
	if !f.store.HasPendingChanges(ctx) {
		t.Error("Failed push must keep pending changes")
	}
}
