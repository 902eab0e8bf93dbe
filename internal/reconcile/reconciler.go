// Package reconcile keeps the local store in step with the hosted database.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrRemoteUnavailable = errors.New("remote database unavailable")
)

// Deployer is the part of the deployment trigger a reload can invoke
type Deployer interface {
	Configured() bool
	TriggerDeployment(ctx context.Context, force bool) error
}

// PullResult is the remote copy of every collection. Collections that could
// not be fetched are empty and listed in Failed.
type PullResult struct {
	domain.Snapshot
	Failed []string `json:"failed,omitempty"`
}

// ReloadResult describes the outcome of ReloadAll
type ReloadResult struct {
	Synced      bool      `json:"synced"`
	Degraded    bool      `json:"degraded"`
	Failed      []string  `json:"failed,omitempty"`
	Error       string    `json:"error,omitempty"`
	Deployed    bool      `json:"deployed"`
	DeployError string    `json:"deployError,omitempty"`
	SyncedAt    time.Time `json:"syncedAt,omitempty"`
}

type Options struct {
	LockTTL         time.Duration
	TriggerThrottle time.Duration
}

type Reconciler struct {
	remote   repository.Backend
	store    *localstore.Store
	bus      *broadcast.Channel
	modules  admin.Modules
	deployer Deployer
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	reloading atomic.Bool

	triggerMu   sync.Mutex
	lastTrigger time.Time
}

func NewReconciler(
	remote repository.Backend,
	store *localstore.Store,
	bus *broadcast.Channel,
	modules admin.Modules,
	deployer Deployer,
	opts Options,
	logger *zap.Logger,
) *Reconciler {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.TriggerThrottle <= 0 {
		opts.TriggerThrottle = 5 * time.Second
	}

	return &Reconciler{
		remote:   remote,
		store:    store,
		bus:      bus,
		modules:  modules,
		deployer: deployer,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PullAll fetches the four collections in parallel. Only an unreachable
// backend is an error; a failing collection comes back empty.
func (r *Reconciler) PullAll(ctx context.Context) (PullResult, error) {
	if err := r.remote.Ping(ctx); err != nil {
		return PullResult{}, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	result := PullResult{
		Snapshot: domain.Snapshot{
			Version:        domain.SnapshotVersion,
			Timestamp:      r.now(),
			Products:       []domain.Product{},
			CategoryImages: domain.CategoryImageMap{},
			Subcategories:  domain.SubcategoryMap{},
			Coupons:        []domain.Coupon{},
		},
	}

	var mu sync.Mutex
	failed := func(collection string, err error) {
		r.logger.Warn("Failed to pull collection", zap.String("collection", collection), zap.Error(err))
		mu.Lock()
		result.Failed = append(result.Failed, collection)
		mu.Unlock()
	}

	var g errgroup.Group
	g.Go(func() error {
		products, err := r.remote.ListProducts(ctx)
		if err != nil {
			failed(domain.CollectionProducts, err)
			return nil
		}
		result.Products = products
		return nil
	})
	g.Go(func() error {
		images, err := r.remote.ListCategoryImages(ctx)
		if err != nil {
			failed(domain.CollectionCategoryImages, err)
			return nil
		}
		result.CategoryImages = images
		return nil
	})
	g.Go(func() error {
		subcategories, err := r.remote.ListSubcategories(ctx)
		if err != nil {
			failed(domain.CollectionSubcategories, err)
			return nil
		}
		result.Subcategories = subcategories
		return nil
	})
	g.Go(func() error {
		coupons, err := r.remote.ListCoupons(ctx)
		if err != nil {
			failed(domain.CollectionCoupons, err)
			return nil
		}
		result.Coupons = coupons
		return nil
	})
	_ = g.Wait()

	return result, nil
}

// PushAll upserts every local collection to the hosted database and clears
// the pending changes flag when all of them succeed
func (r *Reconciler) PushAll(ctx context.Context) error {
	snapshot := r.modules.Snapshot()

	var g errgroup.Group
	g.Go(func() error {
		if err := r.remote.UpsertProducts(ctx, snapshot.Products); err != nil {
			return fmt.Errorf("failed to push products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.remote.UpsertCategoryImages(ctx, snapshot.CategoryImages); err != nil {
			return fmt.Errorf("failed to push category images: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.remote.UpsertSubcategories(ctx, snapshot.Subcategories); err != nil {
			return fmt.Errorf("failed to push subcategories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.remote.UpsertCoupons(ctx, snapshot.Coupons); err != nil {
			return fmt.Errorf("failed to push coupons: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("Push to remote failed", zap.Error(err))
		return err
	}

	if err := r.store.ClearPendingChanges(ctx); err != nil {
		r.logger.Warn("Failed to clear pending changes flag", zap.Error(err))
	}

	r.logger.Info("Pushed local collections",
		zap.Int("products", len(snapshot.Products)),
		zap.Int("coupons", len(snapshot.Coupons)),
	)
	return nil
}

// ReloadAll replaces the local collections with the remote copy. Only one
// reload runs at a time across every instance sharing the store. When the
// remote cannot be reached the modules reload from the local store instead.
func (r *Reconciler) ReloadAll(ctx context.Context, triggerDeploy bool) (ReloadResult, error) {
	if !r.reloading.CompareAndSwap(false, true) {
		return ReloadResult{}, ErrSyncInProgress
	}
	defer r.reloading.Store(false)

	lease, err := r.store.Acquire(ctx, localstore.KeySyncInProgress, r.opts.LockTTL)
	switch {
	case errors.Is(err, localstore.ErrLeaseHeld):
		return ReloadResult{}, ErrSyncInProgress
	case err != nil:
		r.logger.Warn("Sync lease unavailable, continuing without it", zap.Error(err))
	default:
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("Failed to release sync lease", zap.Error(err))
			}
		}()
	}

	pulled, err := r.PullAll(ctx)
	if err != nil {
		r.logger.Warn("Remote pull failed, reloading from local store", zap.Error(err))
		r.modules.ReloadFromStorage(ctx)
		return ReloadResult{Degraded: true, Error: err.Error()}, nil
	}

	r.saveLocal(ctx, pulled)
	r.modules.ReloadFromStorage(ctx)

	now := r.now()
	if err := r.store.ClearPendingChanges(ctx); err != nil {
		r.logger.Warn("Failed to clear pending changes flag", zap.Error(err))
	}
	if err := r.store.SetTime(ctx, localstore.KeyLastSync, now); err != nil {
		r.logger.Warn("Failed to record sync time", zap.Error(err))
	}

	result := ReloadResult{Synced: true, Failed: pulled.Failed, SyncedAt: now}

	r.announce(ctx, now)

	if triggerDeploy && r.deployer != nil && r.deployer.Configured() {
		if err := r.deployer.TriggerDeployment(ctx, false); err != nil {
			result.DeployError = err.Error()
		} else {
			result.Deployed = true
		}
	}

	r.logger.Info("Reloaded collections from remote",
		zap.Int("products", len(pulled.Products)),
		zap.Int("coupons", len(pulled.Coupons)),
		zap.Strings("failed", pulled.Failed),
	)
	return result, nil
}

// saveLocal writes each pulled collection to the local store. Collections
// that failed to pull keep their local copy.
func (r *Reconciler) saveLocal(ctx context.Context, pulled PullResult) {
	skip := make(map[string]bool, len(pulled.Failed))
	for _, c := range pulled.Failed {
		skip[c] = true
	}

	entries := []struct {
		collection string
		key        string
		value      interface{}
	}{
		{domain.CollectionProducts, localstore.KeyProducts, pulled.Products},
		{domain.CollectionCategoryImages, localstore.KeyCategoryImages, pulled.CategoryImages},
		{domain.CollectionSubcategories, localstore.KeySubcategories, pulled.Subcategories},
		{domain.CollectionCoupons, localstore.KeyCoupons, pulled.Coupons},
	}

	for _, e := range entries {
		if skip[e.collection] {
			continue
		}
		if err := r.store.Save(ctx, e.key, e.value); err != nil {
			r.logger.Warn("Failed to store pulled collection", zap.String("collection", e.collection), zap.Error(err))
		}
	}
}

// announce publishes the sync trigger at most once per throttle window
func (r *Reconciler) announce(ctx context.Context, now time.Time) {
	r.triggerMu.Lock()
	if !r.lastTrigger.IsZero() && now.Sub(r.lastTrigger) < r.opts.TriggerThrottle {
		r.triggerMu.Unlock()
		r.logger.Debug("Sync trigger throttled")
		return
	}
	r.lastTrigger = now
	r.triggerMu.Unlock()

	r.bus.Publish(ctx, broadcast.EventSyncTrigger, localstore.KeySyncTrigger, now.UnixMilli())
}
