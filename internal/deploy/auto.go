package deploy

import (
	"context"
	"sync"
	"time"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/localstore"

	"go.uber.org/zap"
)

var collectionEvents = []string{
	broadcast.EventProductsUpdated,
	broadcast.EventCategoryImagesUpdated,
	broadcast.EventSubcategoriesUpdated,
	broadcast.EventCouponsUpdated,
}

// AutoDeployer triggers a deployment after local admin changes while the
// auto-deploy entry is enabled. Bursts of changes within delay collapse into
// one deployment.
type AutoDeployer struct {
	trigger *Trigger
	store   *localstore.Store
	bus     *broadcast.Channel
	delay   time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewAutoDeployer(trigger *Trigger, store *localstore.Store, bus *broadcast.Channel, delay time.Duration, logger *zap.Logger) *AutoDeployer {
	return &AutoDeployer{
		trigger: trigger,
		store:   store,
		bus:     bus,
		delay:   delay,
		logger:  logger,
	}
}

func (a *AutoDeployer) Enabled(ctx context.Context) bool {
	return a.store.Flag(ctx, localstore.KeyAutoDeploy)
}

func (a *AutoDeployer) SetEnabled(ctx context.Context, enabled bool) error {
	return a.store.SetFlag(ctx, localstore.KeyAutoDeploy, enabled)
}

// Run listens for collection changes until ctx is done
func (a *AutoDeployer) Run(ctx context.Context) {
	var unsubscribe []func()
	for _, name := range collectionEvents {
		unsubscribe = append(unsubscribe, a.bus.Subscribe(name, func(e broadcast.Event) {
			a.onChange(ctx, e)
		}))
	}

	<-ctx.Done()

	for _, fn := range unsubscribe {
		fn()
	}
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
}

func (a *AutoDeployer) onChange(ctx context.Context, e broadcast.Event) {
	// other instances deploy their own edits
	if a.bus.IsRemote(e) || !a.trigger.Configured() || !a.Enabled(ctx) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, func() { a.deploy(ctx) })
}

func (a *AutoDeployer) deploy(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := a.trigger.TriggerDeployment(ctx, false); err != nil {
		a.logger.Warn("Auto deployment failed", zap.Error(err))
	}
}
