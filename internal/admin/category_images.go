package admin

import (
	"context"
	"fmt"
	"sync"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/repository"

	"go.uber.org/zap"
)

// CategoryImages owns the category slug to image mapping
type CategoryImages struct {
	persister
	remote   repository.CategoryRepository
	resolver ImageResolver
	known    map[string]bool

	mu     sync.RWMutex
	images domain.CategoryImageMap
}

// NewCategoryImages loads the mapping from the local store. Keys are limited
// to the slugs of categories; an empty list accepts any slug.
func NewCategoryImages(
	ctx context.Context,
	store *localstore.Store,
	bus *broadcast.Channel,
	remote repository.CategoryRepository,
	resolver ImageResolver,
	categories []string,
	logger *zap.Logger,
) *CategoryImages {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[domain.Slugify(c)] = true
	}

	m := &CategoryImages{
		persister: persister{store: store, bus: bus, logger: logger},
		remote:    remote,
		resolver:  resolver,
		known:     known,
	}
	m.ReloadFromStorage(ctx)
	return m
}

// All returns a copy of the mapping
func (m *CategoryImages) All() domain.CategoryImageMap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.images.Clone()
}

// Get returns the image for slug
func (m *CategoryImages) Get(slug string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	image, ok := m.images[slug]
	return image, ok
}

// Upsert sets the image of one category and pushes it to the hosted database.
// On a push failure the local change stays and ErrRemotePush is returned.
func (m *CategoryImages) Upsert(ctx context.Context, slug, image string) error {
	if !m.isKnown(slug) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, slug)
	}

	resolved, err := resolveImage(ctx, m.resolver, image)
	if err != nil {
		return fmt.Errorf("failed to resolve image for %s: %w", slug, err)
	}

	m.writeMu.Lock()
	m.mu.Lock()
	next := m.images.Clone()
	next[slug] = resolved
	m.images = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCategoryImages, broadcast.EventCategoryImagesUpdated, next)
	m.writeMu.Unlock()

	if err := m.remote.UpsertCategoryImages(ctx, domain.CategoryImageMap{slug: resolved}); err != nil {
		m.logger.Warn("Category image kept locally, remote push failed", zap.String("slug", slug), zap.Error(err))
		return remotePushError(domain.CollectionCategoryImages, err)
	}

	return nil
}

// Delete removes the image of one category locally and remotely
func (m *CategoryImages) Delete(ctx context.Context, slug string) error {
	m.writeMu.Lock()
	m.mu.Lock()
	if _, ok := m.images[slug]; !ok {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return nil
	}
	next := m.images.Clone()
	delete(next, slug)
	m.images = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCategoryImages, broadcast.EventCategoryImagesUpdated, next)
	m.writeMu.Unlock()

	if err := m.remote.DeleteCategoryImage(ctx, slug); err != nil {
		m.logger.Warn("Category image removed locally, remote delete failed", zap.String("slug", slug), zap.Error(err))
		return remotePushError(domain.CollectionCategoryImages, err)
	}

	return nil
}

// Merge upserts every entry of images whose slug is known; unknown slugs are skipped
func (m *CategoryImages) Merge(ctx context.Context, images domain.CategoryImageMap) {
	m.writeMu.Lock()
	m.mu.Lock()
	next := m.images.Clone()
	for slug, image := range images {
		if !m.isKnown(slug) {
			m.logger.Warn("Skipping image for unknown category", zap.String("slug", slug))
			continue
		}
		next[slug] = image
	}
	m.images = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCategoryImages, broadcast.EventCategoryImagesUpdated, next)
	m.writeMu.Unlock()
}

// ReloadFromStorage replaces the in-memory mapping with the local store copy
func (m *CategoryImages) ReloadFromStorage(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	images := localstore.Load(ctx, m.store, localstore.KeyCategoryImages, domain.CategoryImageMap{})
	if images == nil {
		images = domain.CategoryImageMap{}
	}

	m.mu.Lock()
	m.images = images
	m.mu.Unlock()
}

func (m *CategoryImages) isKnown(slug string) bool {
	return len(m.known) == 0 || m.known[slug]
}
