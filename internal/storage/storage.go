package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dailyjudge/apiserver/config"
)

// Object is a single archive write. Metadata is stored alongside the object
// by both backends and is limited to ASCII keys and values.
type Object struct {
	Key         string
	Body        []byte
	ContentType string
	Metadata    map[string]string
}

// Backend is an object store bound to one bucket.
type Backend interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, obj Object) error
	Bucket() string
}

// Storage is the archive the worker writes terminal submissions to.
type Storage struct {
	backend Backend
}

func NewStorage(backend Backend) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend named in cfg and makes sure its bucket exists.
// It returns nil and no error when the backend is "none" or empty.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend Backend
		err     error
	)
	switch name := strings.ToLower(strings.TrimSpace(cfg.Backend)); name {
	case "", "none":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}

	s := NewStorage(backend)
	if err := s.backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}

// Put writes obj, replacing any object stored under the same key.
func (s *Storage) Put(ctx context.Context, obj Object) error {
	if strings.TrimSpace(obj.Key) == "" {
		return errors.New("object key is required")
	}
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}
	return s.backend.Put(ctx, obj)
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// required reports the first blank field as "<backend> <name> is required".
func required(backend string, fields ...[2]string) error {
	for _, field := range fields {
		if strings.TrimSpace(field[1]) == "" {
			return fmt.Errorf("%s %s is required", backend, field[0])
		}
	}
	return nil
}
