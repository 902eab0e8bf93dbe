package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"storefront-admin/internal/deploy"
	"storefront-admin/internal/middleware"
	"storefront-admin/internal/reconcile"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Syncer reconciles the local collections with the hosted database
type Syncer interface {
	ReloadAll(ctx context.Context, triggerDeploy bool) (reconcile.ReloadResult, error)
	PushAll(ctx context.Context) error
}

// UpdateChecker compares the hosted database against the last sync
type UpdateChecker interface {
	CheckForUpdates(ctx context.Context, force bool) (bool, error)
}

// Deployments starts deployments and reports their progress
type Deployments interface {
	TriggerDeployment(ctx context.Context, force bool) error
	Status(ctx context.Context) deploy.Status
}

// AutoDeploySwitch toggles deployment after each local change
type AutoDeploySwitch interface {
	Enabled(ctx context.Context) bool
	SetEnabled(ctx context.Context, enabled bool) error
}

// DeployRequest is the optional body of a deployment request
type DeployRequest struct {
	Force bool `json:"force"`
}

// AutoDeployRequest toggles automatic deployment
type AutoDeployRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// DeployStatusResponse extends the trigger status with the auto-deploy flag
type DeployStatusResponse struct {
	deploy.Status
	AutoDeploy bool `json:"autoDeploy"`
}

// SyncHandler exposes reconciliation and deployment to the admin console
type SyncHandler struct {
	syncer  Syncer
	checker UpdateChecker
	deploys Deployments
	auto    AutoDeploySwitch
	logger  *zap.Logger
}

func NewSyncHandler(syncer Syncer, checker UpdateChecker, deploys Deployments, auto AutoDeploySwitch, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncer:  syncer,
		checker: checker,
		deploys: deploys,
		auto:    auto,
		logger:  logger,
	}
}

func (h *SyncHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Post("/reload", h.Reload)
		r.Post("/push", h.Push)
		r.Post("/check", h.Check)
	})
	r.Route("/deploy", func(r chi.Router) {
		r.Post("/", h.Deploy)
		r.Get("/status", h.DeployStatus)
		r.Put("/auto", h.SetAutoDeploy)
	})
}

// Reload pulls every collection from the hosted database. A degraded reload
// from local storage is still a 200 with degraded set.
func (h *SyncHandler) Reload(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.ReloadAll(r.Context(), queryBool(r, "deploy"))
	if err != nil {
		respondError(w, h.logger, err, "failed to reload data")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.PushAll(r.Context()); err != nil {
		h.logger.Warn("Push requested from console failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"pushed": true})
}

func (h *SyncHandler) Check(w http.ResponseWriter, r *http.Request) {
	updated, err := h.checker.CheckForUpdates(r.Context(), queryBool(r, "force"))
	if err != nil {
		respondError(w, h.logger, err, "failed to check for updates")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

// Deploy writes the admin data files and calls the deployment webhook.
// The body is optional.
func (h *SyncHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if r.ContentLength != 0 {
		if err := middleware.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if queryBool(r, "force") {
		req.Force = true
	}

	if err := h.deploys.TriggerDeployment(r.Context(), req.Force); err != nil {
		respondError(w, h.logger, err, "failed to trigger deployment")
		return
	}
	h.DeployStatus(w, r)
}

func (h *SyncHandler) DeployStatus(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, DeployStatusResponse{
		Status:     h.deploys.Status(r.Context()),
		AutoDeploy: h.auto.Enabled(r.Context()),
	})
}

func (h *SyncHandler) SetAutoDeploy(w http.ResponseWriter, r *http.Request) {
	var req AutoDeployRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	if err := h.auto.SetEnabled(r.Context(), *req.Enabled); err != nil {
		respondError(w, h.logger, err, "failed to update auto deploy")
		return
	}
	h.logger.Info("Auto deploy toggled", zap.Bool("enabled", *req.Enabled))
	h.DeployStatus(w, r)
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
