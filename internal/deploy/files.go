package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrPathOutsideRoot = errors.New("path escapes root")

// FileWriter stores a serialized collection at a path relative to the site root
type FileWriter interface {
	WriteFile(ctx context.Context, name string, data []byte) error
}

// DirWriter writes files directly beneath a root directory
type DirWriter struct {
	fs afero.Fs
}

// NewDirWriter confines writes to root on fs
func NewDirWriter(fs afero.Fs, root string) *DirWriter {
	return &DirWriter{fs: afero.NewBasePathFs(fs, root)}
}

func (w *DirWriter) WriteFile(ctx context.Context, name string, data []byte) error {
	clean, err := CleanPath(name)
	if err != nil {
		return err
	}
	if err := w.fs.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", clean, err)
	}
	if err := afero.WriteFile(w.fs, clean, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", clean, err)
	}
	return nil
}

// FSClient writes files through the filesystem endpoint of a running server
type FSClient struct {
	endpoint string
	client   *http.Client
}

func NewFSClient(endpoint string, client *http.Client) *FSClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &FSClient{endpoint: endpoint, client: client}
}

type fsWriteRequest struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

func (c *FSClient) WriteFile(ctx context.Context, name string, data []byte) error {
	body, err := json.Marshal(fsWriteRequest{Path: name, Data: string(data)})
	if err != nil {
		return fmt.Errorf("failed to encode write request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to write %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// CleanPath normalizes a slash separated relative path and rejects any path
// that is empty, absolute or leaves the root
func CleanPath(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || clean == "." || clean == ".." || path.IsAbs(clean) ||
		strings.HasPrefix(clean, "../") || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideRoot, name)
	}
	return filepath.FromSlash(clean), nil
}
