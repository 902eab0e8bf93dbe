package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/middleware"
	"storefront-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CategoryImageRequest sets the image of one category. Embedded data URIs
// are uploaded when media hosting is configured.
type CategoryImageRequest struct {
	Image string `json:"image" validate:"required"`
}

// SubcategoriesRequest replaces the subcategory list of one category
type SubcategoriesRequest struct {
	Subcategories []string `json:"subcategories" validate:"required,dive,required,max=100"`
}

// SubcategoryRequest adds one subcategory
type SubcategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// SubcategoriesResponse reports the stored list and how many products lost
// a subcategory that was removed
type SubcategoriesResponse struct {
	Category        string   `json:"category"`
	Subcategories   []string `json:"subcategories"`
	ClearedProducts int      `json:"clearedProducts"`
}

// CatalogHandler serves category images and subcategories
type CatalogHandler struct {
	modules admin.Modules
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewCatalogHandler(modules admin.Modules, catalog service.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{modules: modules, catalog: catalog, logger: logger}
}

func (h *CatalogHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/api/catalog/category-images", h.ListCategoryImages)
	r.Get("/api/catalog/subcategories", h.ListSubcategories)
}

func (h *CatalogHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/category-images", func(r chi.Router) {
		r.Get("/", h.ListCategoryImages)
		r.Put("/{slug}", h.PutCategoryImage)
		r.Delete("/{slug}", h.DeleteCategoryImage)
	})
	r.Route("/subcategories", func(r chi.Router) {
		r.Get("/", h.ListSubcategories)
		r.Put("/{category}", h.PutSubcategories)
		r.Post("/{category}", h.AddSubcategory)
		r.Delete("/{category}/{name}", h.RemoveSubcategory)
	})
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
}

func (h *CatalogHandler) ListCategoryImages(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.modules.CategoryImages.All())
}

func (h *CatalogHandler) PutCategoryImage(w http.ResponseWriter, r *http.Request) {
	var req CategoryImageRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	slug := chi.URLParam(r, "slug")
	err := h.modules.CategoryImages.Upsert(r.Context(), slug, req.Image)
	image, _ := h.modules.CategoryImages.Get(slug)
	if err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "image", image)
			return
		}
		respondError(w, h.logger, err, "failed to update category image")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"slug": slug, "image": image})
}

func (h *CatalogHandler) DeleteCategoryImage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := h.modules.CategoryImages.Delete(r.Context(), slug); err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "slug", slug)
			return
		}
		respondError(w, h.logger, err, "failed to delete category image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) ListSubcategories(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		middleware.RespondWithJSON(w, http.StatusOK, h.modules.Subcategories.For(category))
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, h.modules.Subcategories.All())
}

func (h *CatalogHandler) PutSubcategories(w http.ResponseWriter, r *http.Request) {
	var req SubcategoriesRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	category := chi.URLParam(r, "category")
	cleared, err := h.catalog.UpdateSubcategories(r.Context(), category, trimNames(req.Subcategories))
	h.respondSubcategories(w, category, cleared, err)
}

func (h *CatalogHandler) AddSubcategory(w http.ResponseWriter, r *http.Request) {
	var req SubcategoryRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	category := chi.URLParam(r, "category")
	if !h.modules.Subcategories.Add(r.Context(), category, strings.TrimSpace(req.Name)) {
		middleware.RespondWithError(w, http.StatusConflict, fmt.Sprintf("subcategory %q already exists", req.Name))
		return
	}
	h.respondSubcategories(w, category, 0, nil)
}

func (h *CatalogHandler) RemoveSubcategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	cleared, err := h.catalog.RemoveSubcategory(r.Context(), category, chi.URLParam(r, "name"))
	h.respondSubcategories(w, category, cleared, err)
}

func (h *CatalogHandler) respondSubcategories(w http.ResponseWriter, category string, cleared int, err error) {
	resp := SubcategoriesResponse{
		Category:        category,
		Subcategories:   h.modules.Subcategories.For(category),
		ClearedProducts: cleared,
	}
	if err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "subcategories", resp)
			return
		}
		respondError(w, h.logger, err, "failed to update subcategories")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, resp)
}

// Export downloads every collection as one snapshot file
func (h *CatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	snapshot := h.catalog.Export()
	filename := fmt.Sprintf("storefront-admin-%s.json", snapshot.Timestamp.Format("2006-01-02"))

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

// Import replaces the products and merges the other collections of an
// exported snapshot
func (h *CatalogHandler) Import(w http.ResponseWriter, r *http.Request) {
	var snapshot domain.Snapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes)).Decode(&snapshot); err != nil {
		h.logger.Debug("Import body rejected", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid snapshot file")
		return
	}

	result, err := h.catalog.Import(r.Context(), snapshot)
	if err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "imported", result)
			return
		}
		respondError(w, h.logger, err, "failed to import snapshot")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

func trimNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
