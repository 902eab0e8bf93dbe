// Package admin holds the in-memory owners of each admin collection. Every
// mutation updates memory first, then persists to the local store and
// broadcasts the new collection value.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/localstore"

	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrUnknownCategory = errors.New("unknown category")

	// ErrRemotePush reports that a change was kept locally but not confirmed
	// by the hosted database.
	ErrRemotePush = errors.New("remote push failed")
)

// ImageResolver turns an image reference into the form that gets stored,
// e.g. uploading embedded data and returning a hosted URL
type ImageResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

type persister struct {
	store  *localstore.Store
	bus    *broadcast.Channel
	logger *zap.Logger

	// writeMu is held from computing a new collection value until it has
	// been committed, so the local store never lags behind memory
	writeMu sync.Mutex
}

// commit writes value to the local store and announces it.
// Callers hold writeMu.
func (p *persister) commit(ctx context.Context, key, event string, value interface{}) {
	if err := p.store.Save(ctx, key, value); err != nil {
		p.logger.Warn("Failed to persist collection locally", zap.String("key", key), zap.Error(err))
	}
	p.bus.Publish(ctx, event, key, value)
}

func remotePushError(collection string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemotePush, collection, err)
}

func resolveImage(ctx context.Context, resolver ImageResolver, ref string) (string, error) {
	if resolver == nil || ref == "" {
		return ref, nil
	}
	return resolver.Resolve(ctx, ref)
}
