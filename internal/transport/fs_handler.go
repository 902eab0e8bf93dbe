package transport

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"storefront-admin/internal/deploy"
	"storefront-admin/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var ErrFSDisabled = errors.New("filesystem API is disabled")

// FSWriteRequest writes data to path below the root. Data may be empty
// but must be present.
type FSWriteRequest struct {
	Path string  `json:"path" validate:"required"`
	Data *string `json:"data" validate:"required"`
}

// FSHandler reads and writes files below a root directory. It backs the
// deployment writer of instances that do not share the data directory.
type FSHandler struct {
	fs      afero.Fs
	writer  *deploy.DirWriter
	enabled bool
	logger  *zap.Logger
}

// NewFSHandler serves files of root on fsys. A disabled handler answers
// every request with 500.
func NewFSHandler(fsys afero.Fs, root string, enabled bool, logger *zap.Logger) *FSHandler {
	return &FSHandler{
		fs:      afero.NewBasePathFs(fsys, root),
		writer:  deploy.NewDirWriter(fsys, root),
		enabled: enabled,
		logger:  logger,
	}
}

// RegisterRoutes mounts the endpoint with open CORS
func (h *FSHandler) RegisterRoutes(r chi.Router) {
	r.Handle("/api/fs", middleware.OpenCORS()(h))
}

func (h *FSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		middleware.RespondWithError(w, http.StatusInternalServerError, ErrFSDisabled.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.read(w, r)
	case http.MethodPost:
		h.write(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		middleware.RespondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// read returns JSON files as-is and anything else wrapped as {content}
func (h *FSHandler) read(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "path is required")
		return
	}
	name, err := deploy.CleanPath(raw)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := afero.ReadFile(h.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			middleware.RespondWithError(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("Failed to read file", zap.String("path", name), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	if json.Valid(data) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"content": string(data)})
}

func (h *FSHandler) write(w http.ResponseWriter, r *http.Request) {
	var req FSWriteRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	if err := h.writer.WriteFile(r.Context(), req.Path, []byte(*req.Data)); err != nil {
		if errors.Is(err, deploy.ErrPathOutsideRoot) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to write file", zap.String("path", req.Path), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to write file")
		return
	}

	h.logger.Debug("File written", zap.String("path", req.Path), zap.Int("bytes", len(*req.Data)))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "path": req.Path})
}
