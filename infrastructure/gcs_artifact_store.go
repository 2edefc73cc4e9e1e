package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

const gcsRefScheme = "gs://"

// GCSArtifactStore keeps artifacts as objects in one bucket. References are
// "gs://<bucket>/<key>".
type GCSArtifactStore struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

// NewGCSArtifactStore uses the credentials file when given and application
// default credentials otherwise.
func NewGCSArtifactStore(ctx context.Context, bucket, credentialsFile string, log *logger.Logger, extra ...option.ClientOption) (*GCSArtifactStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile = strings.TrimSpace(credentialsFile); credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "GCSArtifactStore")
	serviceLog.Info("object storage initialized", "bucket", bucket)
	return &GCSArtifactStore{client: client, bucket: bucket, log: serviceLog}, nil
}

func (s *GCSArtifactStore) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload %s: %w", key, err)
	}
	return gcsRefScheme + s.bucket + "/" + key, nil
}

func (s *GCSArtifactStore) Get(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseGCSRef(ref)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return body, nil
}

func (s *GCSArtifactStore) Close() error {
	return s.client.Close()
}

func parseGCSRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, gcsRefScheme)
	if ok {
		bucket, key, ok = strings.Cut(rest, "/")
	}
	if !ok || bucket == "" || key == "" {
		return "", "", domain.Wrap(domain.ErrValidation, "artifacts", "get", "not a gs:// reference: "+ref, nil)
	}
	return bucket, key, nil
}
