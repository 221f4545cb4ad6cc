// Package storage keeps raw scrape files in MinIO (or any S3-compatible
// store) and exposes them to the loaders.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// ObjectStore reads and writes objects of one bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// NewObjectStore connects to the configured endpoint. It does not touch
// the bucket; call EnsureBucket for that.
func NewObjectStore(cfg config.MinIOConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &ObjectStore{client: client, bucket: cfg.BucketName}, nil
}

// Bucket returns the bucket name.
func (s *ObjectStore) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket when it does not exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		log.Infof("[Storage] bucket '%s' already exists", s.bucket)
		return nil
	}
	log.Infof("[Storage] bucket '%s' not found, creating it", s.bucket)
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put stores size bytes of r under key.
func (s *ObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get opens the object stored under key.
func (s *ObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// List returns the keys under prefix in lexical order.
func (s *ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// PresignedURL returns a temporary download link for key.
func (s *ObjectStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		log.Errorf("[Storage] presign %s failed: %v", key, err)
		return "", err
	}
	return u.String(), nil
}

// ObjectKey returns the key a raw file is uploaded under.
func ObjectKey(prefix, fileMD5, name string) string {
	return path.Join(prefix, fileMD5, path.Base(name))
}

// objectReader is the part of ObjectStore an ObjectSource needs.
type objectReader interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ObjectSource lists and opens the objects under a prefix. It implements
// the loader's Source interface.
type ObjectSource struct {
	store  objectReader
	prefix string
	keys   []string
}

// NewObjectSource returns a source over every object under prefix.
func NewObjectSource(store *ObjectStore, prefix string) *ObjectSource {
	return &ObjectSource{store: store, prefix: prefix}
}

// NewObjectKeys returns a source over the given keys only.
func NewObjectKeys(store *ObjectStore, keys ...string) *ObjectSource {
	return &ObjectSource{store: store, keys: keys}
}

// List returns the object keys of the source.
func (o *ObjectSource) List(ctx context.Context) ([]string, error) {
	if o.keys != nil {
		return append([]string(nil), o.keys...), nil
	}
	return o.store.List(ctx, o.prefix)
}

// SourceName returns the identifier of the document stored under key: the
// key below the source prefix, without the content hash directory that
// ObjectKey inserts.
func (o *ObjectSource) SourceName(key string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, o.prefix), "/")
	parts := strings.Split(rel, "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if isMD5(parts[i]) {
			return strings.Join(parts[i+1:], "/")
		}
	}
	return rel
}

func isMD5(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// Open opens the object stored under key.
func (o *ObjectSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return o.store.Get(ctx, key)
}
