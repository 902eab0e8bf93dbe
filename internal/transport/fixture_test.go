package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/repository"
	"storefront-admin/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var testCategories = []string{"Engines", "Brakes"}

type fixture struct {
	store   *localstore.Store
	bus     *broadcast.Channel
	backend *repository.MemoryBackend
	modules admin.Modules
	catalog service.CatalogService
	router  chi.Router
}

func newFixture(t *testing.T) *fixture {
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
		CategoryImages: admin.NewCategoryImages(ctx, store, bus, backend, nil, testCategories, logger),
		Subcategories:  admin.NewSubcategories(ctx, store, bus, logger),
		Coupons:        admin.NewCoupons(ctx, store, bus, logger),
	}
	catalog := service.NewCatalogService(modules, logger)

	router := chi.NewRouter()
	products := NewProductHandler(modules.Products, logger)
	catalogHandler := NewCatalogHandler(modules, catalog, logger)
	coupons := NewCouponHandler(modules.Coupons, catalog, logger)

	products.RegisterPublicRoutes(router)
	catalogHandler.RegisterPublicRoutes(router)
	coupons.RegisterPublicRoutes(router)
	router.Route("/api/admin", func(r chi.Router) {
		products.RegisterAdminRoutes(r)
		catalogHandler.RegisterAdminRoutes(r)
		coupons.RegisterAdminRoutes(r)
	})

	return &fixture{
		store:   store,
		bus:     bus,
		backend: backend,
		modules: modules,
		catalog: catalog,
		router:  router,
	}
}

// do sends a request through the fixture router. body is JSON encoded
// unless it is already a []byte.
func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, f.router, method, path, body)
}

func serve(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

type errorBody struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}
