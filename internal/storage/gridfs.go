package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Rrens/kaif-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStorage keeps blobs in a MongoDB GridFS bucket, one file per key
type GridFSStorage struct {
	client  *mongo.Client
	bucket  *gridfs.Bucket
	baseURL string
}

// NewGridFSStorage connects to MongoDB and opens the named bucket
func NewGridFSStorage(ctx context.Context, uri, database, bucketName, baseURL string) (*GridFSStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucketName))
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}

	return &GridFSStorage{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *GridFSStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "content_type", Value: contentType}})

	stream, err := s.bucket.OpenUploadStream(key, opts)
	if err != nil {
		return fmt.Errorf("failed to open upload stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		stream.SetWriteDeadline(deadline)
	}

	if _, err := stream.Write(data); err != nil {
		stream.Abort()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

func (s *GridFSStorage) PublicURL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *GridFSStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	stream, err := s.bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open download stream: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		stream.SetReadDeadline(deadline)
	}
	return stream, nil
}

// Close disconnects from MongoDB
func (s *GridFSStorage) Close() error {
	return s.client.Disconnect(context.Background())
}
