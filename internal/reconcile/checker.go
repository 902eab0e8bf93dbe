package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/repository"

	"go.uber.org/zap"
)

// collection keys whose change on another instance forces a reload
var watchedKeys = []string{
	localstore.KeyProducts,
	localstore.KeyCategoryImages,
	localstore.KeySubcategories,
	localstore.KeyCoupons,
}

type CheckerOptions struct {
	StartupDelay time.Duration
	PollInterval time.Duration
	Debounce     time.Duration
}

// Checker decides when the remote holds changes this instance has not seen
type Checker struct {
	reconciler *Reconciler
	remote     repository.ProductRepository
	store      *localstore.Store
	bus        *broadcast.Channel
	opts       CheckerOptions
	logger     *zap.Logger

	syncing atomic.Bool
}

func NewChecker(
	reconciler *Reconciler,
	remote repository.ProductRepository,
	store *localstore.Store,
	bus *broadcast.Channel,
	opts CheckerOptions,
	logger *zap.Logger,
) *Checker {
	if opts.StartupDelay <= 0 {
		opts.StartupDelay = 3 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Minute
	}
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}

	return &Checker{
		reconciler: reconciler,
		remote:     remote,
		store:      store,
		bus:        bus,
		opts:       opts,
		logger:     logger,
	}
}

// CheckForUpdates reloads from the remote when its latest product change is
// newer than the last local sync and no local edits are pending, or
// unconditionally when force is set.
// Overlapping calls return immediately. It reports whether a reload ran.
func (c *Checker) CheckForUpdates(ctx context.Context, force bool) (bool, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		c.logger.Debug("Update check already running")
		return false, nil
	}
	defer c.syncing.Store(false)

	if !force {
		latest, err := c.remote.LatestProductChange(ctx)
		if err != nil {
			c.logger.Warn("Failed to read remote change time", zap.Error(err))
			return false, err
		}

		lastSync, ok := c.store.Time(ctx, localstore.KeyLastSync)
		if ok && !latest.After(lastSync) {
			return false, nil
		}
		if c.store.HasPendingChanges(ctx) {
			c.logger.Info("Remote has newer changes, keeping unpushed local edits",
				zap.Time("remote", latest),
				zap.Time("last_sync", lastSync),
			)
			return false, nil
		}
		c.logger.Info("Remote has newer changes",
			zap.Time("remote", latest),
			zap.Time("last_sync", lastSync),
		)
	}

	result, err := c.reconciler.ReloadAll(ctx, false)
	if err != nil {
		return false, err
	}
	return result.Synced, nil
}

// Run performs one check after the startup delay, then polls. Changes
// announced by other instances are debounced into a single check. Collection
// changes force a reload; sync triggers only compare timestamps so reloads on
// different instances do not keep re-triggering each other.
func (c *Checker) Run(ctx context.Context) {
	triggers := make(chan bool, 16)
	notify := func(force bool) broadcast.Handler {
		return func(e broadcast.Event) {
			if !c.bus.IsRemote(e) {
				return
			}
			select {
			case triggers <- force:
			default:
			}
		}
	}

	// A remote sync trigger only compares timestamps. Forcing here would make
	// every reload announce a trigger that forces a reload elsewhere.
	unsubscribe := []func(){c.bus.Subscribe(broadcast.EventSyncTrigger, notify(false))}
	for _, key := range watchedKeys {
		unsubscribe = append(unsubscribe, c.bus.Subscribe(key, notify(true)))
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	startup := time.NewTimer(c.opts.StartupDelay)
	defer startup.Stop()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	debounce := time.NewTimer(c.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	force := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-startup.C:
			c.check(ctx, false)
		case <-ticker.C:
			c.check(ctx, false)
		case f := <-triggers:
			force = force || f
			debounce.Reset(c.opts.Debounce)
		case <-debounce.C:
			c.followRemote(ctx, force)
			force = false
		}
	}
}

func (c *Checker) check(ctx context.Context, force bool) {
	if _, err := c.CheckForUpdates(ctx, force); err != nil {
		c.logger.Warn("Update check failed", zap.Bool("force", force), zap.Error(err))
	}
}

// followRemote picks up collections another instance wrote to the shared
// store, then checks the remote. Unpushed local edits are never discarded by
// a forced reload.
func (c *Checker) followRemote(ctx context.Context, force bool) {
	c.reconciler.modules.ReloadFromStorage(ctx)
	if force && c.store.HasPendingChanges(ctx) {
		c.logger.Debug("Pending local changes, skipping forced reload")
		force = false
	}
	c.check(ctx, force)
}
