// Package deploy publishes the admin collections to the site sources and
// asks the hosting platform to rebuild.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"

	"go.uber.org/zap"
)

var (
	ErrWebhookNotConfigured = errors.New("deployment webhook url is not configured")
	ErrDeploymentFailed     = errors.New("deployment failed")
	ErrDeploymentInProgress = errors.New("deployment already in progress")
)

const triggerName = "admin-panel"

// CombinedFile holds every collection in one document
const CombinedFile = "adminData.json"

type State string

const (
	StateIdle           State = "idle"
	StateWritingData    State = "writing-data"
	StateCallingWebhook State = "calling-webhook"
	StateDeployed       State = "deployed"
	StateFailed         State = "failed"
)

// SnapshotSource returns the current value of every admin collection
type SnapshotSource interface {
	Snapshot() domain.Snapshot
}

// Status is the progress of the latest deployment. Only LastDeployment
// survives a restart.
type Status struct {
	State          State      `json:"state"`
	LastDeployment *time.Time `json:"lastDeployment,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	PendingChanges bool       `json:"pendingChanges"`
	WebhookEnabled bool       `json:"webhookEnabled"`
}

type webhookPayload struct {
	Force     bool   `json:"force"`
	Timestamp string `json:"timestamp"`
	Trigger   string `json:"trigger"`
}

type Trigger struct {
	source     SnapshotSource
	writer     FileWriter
	store      *localstore.Store
	client     *http.Client
	webhookURL string
	dataDir    string
	logger     *zap.Logger
	now        func() time.Time

	running sync.Mutex

	mu        sync.RWMutex
	state     State
	lastError string
}

type Options struct {
	WebhookURL string
	DataDir    string
	Timeout    time.Duration
}

func NewTrigger(source SnapshotSource, writer FileWriter, store *localstore.Store, opts Options, logger *zap.Logger) *Trigger {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Trigger{
		source:     source,
		writer:     writer,
		store:      store,
		client:     &http.Client{Timeout: timeout},
		webhookURL: opts.WebhookURL,
		dataDir:    opts.DataDir,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		state:      StateIdle,
	}
}

// Configured reports whether a webhook url is set
func (t *Trigger) Configured() bool {
	return t.webhookURL != ""
}

func (t *Trigger) Status(ctx context.Context) Status {
	t.mu.RLock()
	status := Status{State: t.state, LastError: t.lastError, WebhookEnabled: t.Configured()}
	t.mu.RUnlock()

	if last, ok := t.store.Time(ctx, localstore.KeyLastDeployment); ok {
		status.LastDeployment = &last
	}
	status.PendingChanges = t.store.HasPendingChanges(ctx)
	return status
}

// WriteAdminData serializes each collection and the combined document through
// the file writer. A failed file is logged and the rest are still written.
// It reports whether every file was written.
func (t *Trigger) WriteAdminData(ctx context.Context) bool {
	snapshot := t.source.Snapshot()

	files := []struct {
		name  string
		value interface{}
	}{
		{domain.CollectionProducts + ".json", snapshot.Products},
		{domain.CollectionCategoryImages + ".json", snapshot.CategoryImages},
		{domain.CollectionSubcategories + ".json", snapshot.Subcategories},
		{domain.CollectionCoupons + ".json", snapshot.Coupons},
		{CombinedFile, snapshot},
	}

	ok := true
	for _, f := range files {
		name := path.Join(t.dataDir, f.name)

		data, err := json.MarshalIndent(f.value, "", "  ")
		if err != nil {
			t.logger.Error("Failed to serialize admin data", zap.String("file", name), zap.Error(err))
			ok = false
			continue
		}

		if err := t.writer.WriteFile(ctx, name, data); err != nil {
			t.logger.Error("Failed to write admin data", zap.String("file", name), zap.Error(err))
			ok = false
			continue
		}

		t.logger.Debug("Wrote admin data", zap.String("file", name), zap.Int("bytes", len(data)))
	}

	return ok
}

// TriggerDeployment writes the admin data and calls the webhook once. A 2xx
// response clears pending changes and records the deployment time.
func (t *Trigger) TriggerDeployment(ctx context.Context, force bool) error {
	if !t.Configured() {
		t.setState(StateFailed, ErrWebhookNotConfigured)
		return ErrWebhookNotConfigured
	}

	if !t.running.TryLock() {
		return ErrDeploymentInProgress
	}
	defer t.running.Unlock()

	t.setState(StateWritingData, nil)
	if !t.WriteAdminData(ctx) {
		t.logger.Warn("Some admin data files were not written, calling webhook anyway")
	}

	t.setState(StateCallingWebhook, nil)
	if err := t.callWebhook(ctx, force); err != nil {
		t.setState(StateFailed, err)
		t.logger.Error("Deployment failed", zap.Error(err))
		return err
	}

	now := t.now()
	if err := t.store.ClearPendingChanges(ctx); err != nil {
		t.logger.Warn("Failed to clear pending changes flag", zap.Error(err))
	}
	if err := t.store.SetTime(ctx, localstore.KeyLastDeployment, now); err != nil {
		t.logger.Warn("Failed to record deployment time", zap.Error(err))
	}

	t.setState(StateDeployed, nil)
	t.logger.Info("Deployment triggered", zap.Bool("force", force), zap.Time("at", now))
	return nil
}

func (t *Trigger) callWebhook(ctx context.Context, force bool) error {
	now := t.now()

	target, err := url.Parse(t.webhookURL)
	if err != nil {
		return fmt.Errorf("%w: invalid webhook url: %w", ErrDeploymentFailed, err)
	}
	query := target.Query()
	query.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	target.RawQuery = query.Encode()

	body, err := json.Marshal(webhookPayload{
		Force:     force,
		Timestamp: now.Format(time.RFC3339Nano),
		Trigger:   triggerName,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeploymentFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeploymentFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook responded %d", ErrDeploymentFailed, resp.StatusCode)
	}
	return nil
}

func (t *Trigger) setState(state State, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	if err != nil {
		t.lastError = err.Error()
	} else if state != StateFailed {
		t.lastError = ""
	}
}
