package transport

import (
	"errors"
	"net/http"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ProductRequest represents the create/update product payload
type ProductRequest struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name" validate:"required,max=200"`
	Description     string                 `json:"description"`
	LongDescription string                 `json:"longDescription"`
	Price           float64                `json:"price" validate:"gte=0"`
	Category        string                 `json:"category" validate:"required"`
	Subcategory     string                 `json:"subcategory"`
	InStock         bool                   `json:"inStock"`
	Featured        bool                   `json:"featured"`
	Rating          float64                `json:"rating" validate:"gte=0,lte=5"`
	Images          []string               `json:"images"`
	Specifications  []domain.Specification `json:"specifications"`
	Reviews         []domain.Review        `json:"reviews"`
}

func (req ProductRequest) toDomain() domain.Product {
	return domain.Product{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		LongDescription: req.LongDescription,
		Price:           req.Price,
		Category:        req.Category,
		Subcategory:     req.Subcategory,
		InStock:         req.InStock,
		Featured:        req.Featured,
		Rating:          req.Rating,
		Images:          req.Images,
		Specifications:  req.Specifications,
		Reviews:         req.Reviews,
	}
}

// ProductHandler serves the product catalog
type ProductHandler struct {
	products *admin.Products
	logger   *zap.Logger
}

func NewProductHandler(products *admin.Products, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

// RegisterPublicRoutes registers the read-only storefront routes
func (h *ProductHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/api/products", h.List)
	r.Get("/api/products/{id}", h.Get)
}

// RegisterAdminRoutes registers product management on an admin router
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products := h.products.All()

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]domain.Product, 0, len(products))
		for _, p := range products {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, ok := h.products.Get(chi.URLParam(r, "id"))
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, admin.ErrProductNotFound.Error())
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	product, err := h.products.Create(r.Context(), req.toDomain())
	if err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "product", product)
			return
		}
		respondError(w, h.logger, err, "failed to create product")
		return
	}

	h.logger.Info("Product created", zap.String("id", product.ID), zap.String("name", product.Name))
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	req.ID = chi.URLParam(r, "id")

	product, err := h.products.Update(r.Context(), req.toDomain())
	if err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "product", product)
			return
		}
		respondError(w, h.logger, err, "failed to update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.products.Delete(r.Context(), id); err != nil {
		if errors.Is(err, admin.ErrRemotePush) {
			respondLocalOnly(w, h.logger, err, "id", id)
			return
		}
		respondError(w, h.logger, err, "failed to delete product")
		return
	}

	h.logger.Info("Product deleted", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}
