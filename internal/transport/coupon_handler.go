package transport

import (
	"net/http"
	"strings"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/middleware"
	"storefront-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CouponRequest represents the create/update coupon payload
type CouponRequest struct {
	Code               string `json:"code" validate:"required,max=50"`
	DiscountPercentage int    `json:"discountPercentage" validate:"required,min=1,max=100"`
	Active             bool   `json:"active"`
	Description        string `json:"description" validate:"max=500"`
}

// ValidateCouponRequest is the checkout coupon lookup payload
type ValidateCouponRequest struct {
	Code string `json:"code" validate:"required"`
}

// ValidateCouponResponse carries the matching coupon when the code is valid
type ValidateCouponResponse struct {
	Valid  bool           `json:"valid"`
	Coupon *domain.Coupon `json:"coupon,omitempty"`
}

type CouponHandler struct {
	coupons *admin.Coupons
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewCouponHandler(coupons *admin.Coupons, catalog service.CatalogService, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, catalog: catalog, logger: logger}
}

func (h *CouponHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/api/coupons/validate", h.Validate)
}

func (h *CouponHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, h.coupons.All())
}

func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	coupon := h.coupons.Create(r.Context(), req.toDomain(""))
	h.logger.Info("Coupon created", zap.String("id", coupon.ID), zap.String("code", coupon.Code))
	middleware.RespondWithJSON(w, http.StatusCreated, coupon)
}

func (h *CouponHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	coupon := req.toDomain(chi.URLParam(r, "id"))
	if err := h.coupons.Update(r.Context(), coupon); err != nil {
		respondError(w, h.logger, err, "failed to update coupon")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, coupon)
}

func (h *CouponHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.logger, err, "failed to delete coupon")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate looks up an active coupon by code. Unknown or inactive codes are
// reported as invalid rather than as an error.
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	coupon, ok := h.catalog.ValidateCoupon(req.Code)
	if !ok {
		middleware.RespondWithJSON(w, http.StatusOK, ValidateCouponResponse{Valid: false})
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, ValidateCouponResponse{Valid: true, Coupon: &coupon})
}

func (req CouponRequest) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:                 id,
		Code:               strings.TrimSpace(req.Code),
		DiscountPercentage: req.DiscountPercentage,
		Active:             req.Active,
		Description:        req.Description,
	}
}
