package storage

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dailyjudge/apiserver/config"
	"google.golang.org/api/option"
)

// GCSClient archives objects to a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    string
	projectID string
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if err := required("gcs", [2]string{"bucket", cfg.Bucket}); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSClient{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

// EnsureBucket creates the bucket when it is missing, which needs a project id.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	bucket := g.client.Bucket(g.bucket)
	_, err := bucket.Attrs(ctx)
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return err
	}
	if err := required("gcs", [2]string{"project id", g.projectID}); err != nil {
		return err
	}
	return bucket.Create(ctx, g.projectID, nil)
}

func (g *GCSClient) Put(ctx context.Context, obj Object) error {
	w := g.client.Bucket(g.bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.Metadata = obj.Metadata
	// Archives are small; upload them in a single request.
	w.ChunkSize = 0
	if _, err := w.Write(obj.Body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSClient) Bucket() string {
	return g.bucket
}
