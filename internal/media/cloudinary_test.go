package media

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

func newTestResolver(fn uploadFunc) *Resolver {
	return &Resolver{upload: fn, folder: "storefront/test", logger: zap.NewNop()}
}

func TestResolvePassesThroughURLs(t *testing.T) {
	calls := 0
	r := newTestResolver(func(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
		calls++
		return nil, nil
	})

	got, err := r.Resolve(context.Background(), "https://example.com/a.png")
	if err != nil || got != "https://example.com/a.png" {
		t.Errorf("Expected URL unchanged, got %q (%v)", got, err)
	}
	if calls != 0 {
		t.Error("URLs must not be uploaded")
	}
}

func TestResolveUploadsDataURIs(t *testing.T) {
	var folder string
	r := newTestResolver(func(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
		folder = params.Folder
		return &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/demo/a.png", PublicID: "a"}, nil
	})

	got, err := r.Resolve(context.Background(), "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "https://res.cloudinary.com/demo/a.png" {
		t.Errorf("Expected hosted URL, got %q", got)
	}
	if folder != "storefront/test" {
		t.Errorf("Expected configured folder, got %q", folder)
	}
}

func TestResolveReportsUploadFailures(t *testing.T) {
	boom := errors.New("quota exceeded")
	r := newTestResolver(func(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
		return nil, boom
	})

	if _, err := r.Resolve(context.Background(), "data:image/png;base64,AAAA"); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped upload error, got %v", err)
	}

	empty := newTestResolver(func(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
		return &uploader.UploadResult{}, nil
	})
	if _, err := empty.Resolve(context.Background(), "data:image/png;base64,AAAA"); !errors.Is(err, ErrEmptyUploadResult) {
		t.Errorf("Expected ErrEmptyUploadResult, got %v", err)
	}
}
