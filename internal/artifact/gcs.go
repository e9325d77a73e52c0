package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore writes artifacts to a Cloud Storage bucket with a DoesNotExist precondition,
// so a retried save of the same key never overwrites.
type GCSStore struct {
	bucket  *storage.BucketHandle
	name    string
	prefix  string
	baseURL string
	logger  *slog.Logger
}

// NewGCSStore wraps an existing client. baseURL defaults to the public storage.googleapis.com address.
func NewGCSStore(client *storage.Client, bucket, prefix, baseURL string, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil || bucket == "" {
		return nil, errors.New("artifact: gcs store needs a client and bucket")
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + bucket
	}
	return &GCSStore{
		bucket:  client.Bucket(bucket),
		name:    bucket,
		prefix:  prefix,
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

func (s *GCSStore) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *GCSStore) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	obj := s.objectName(key)
	w := s.bucket.Object(obj).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			s.logger.Info("artifact already exists", "bucket", s.name, "object", obj)
			return joinURL(s.baseURL, obj), nil
		}
		return "", fmt.Errorf("artifact: gcs write %s: %w", obj, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.logger.Info("artifact already exists", "bucket", s.name, "object", obj)
			return joinURL(s.baseURL, obj), nil
		}
		return "", fmt.Errorf("artifact: gcs finalize %s: %w", obj, err)
	}

	s.logger.Debug("artifact saved", "bucket", s.name, "object", obj, "bytes", len(data))
	return joinURL(s.baseURL, obj), nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	obj := s.objectName(key)
	if err := s.bucket.Object(obj).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifact: gcs delete %s: %w", obj, err)
	}
	s.logger.Debug("artifact deleted", "bucket", s.name, "object", obj)
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
