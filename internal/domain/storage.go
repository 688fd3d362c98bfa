package domain

import (
	"context"
	"io"
)

// BlobStorage stores binary objects (voice recordings) under slash-separated keys
type BlobStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// PublicURL resolves the URL clients use to fetch an uploaded object
	PublicURL(key string) string
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
