package transport

import (
	"errors"
	"net/http"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/deploy"
	"storefront-admin/internal/middleware"
	"storefront-admin/internal/reconcile"
	"storefront-admin/internal/service"

	"go.uber.org/zap"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, admin.ErrProductNotFound), errors.Is(err, admin.ErrCouponNotFound):
		return http.StatusNotFound
	case errors.Is(err, admin.ErrUnknownCategory), errors.Is(err, service.ErrUnsupportedSnapshot):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrSyncInProgress), errors.Is(err, deploy.ErrDeploymentInProgress):
		return http.StatusConflict
	case errors.Is(err, deploy.ErrWebhookNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, reconcile.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, admin.ErrRemotePush), errors.Is(err, deploy.ErrDeploymentFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Server-side failures are
// logged and their message replaced by fallback.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, status, fallback)
		return
	}
	middleware.RespondWithError(w, status, err.Error())
}

// respondLocalOnly reports a change that was applied locally but not
// confirmed by the hosted database, returning the stored value as details
func respondLocalOnly(w http.ResponseWriter, logger *zap.Logger, err error, name string, value interface{}) {
	logger.Warn("Change saved locally only", zap.String("resource", name), zap.Error(err))
	middleware.RespondWithSavedLocally(w, err.Error(), name, value)
}

// decodeRequest decodes and validates the body into dst, writing the 400
// response itself when that fails
func decodeRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst interface{}) bool {
	if err := middleware.DecodeAndValidate(r, dst); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
