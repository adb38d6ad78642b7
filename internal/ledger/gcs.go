package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

// GCSSource reads a CSV ledger from a Cloud Storage bucket.
// When Object ends with "/", the lexically last object under that prefix is used,
// which picks the newest export for date-stamped object names.
type GCSSource struct {
	client *storage.Client
	Bucket string
	Object string
}

// NewGCSClient creates a storage client. An empty endpoint uses the default
// credentials chain; a non-empty one targets an emulator without authentication.
func NewGCSClient(ctx context.Context, endpoint string) (*storage.Client, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

// NewGCSSource binds a ledger object in bucket.
func NewGCSSource(client *storage.Client, bucket, object string) *GCSSource {
	return &GCSSource{client: client, Bucket: bucket, Object: object}
}

// ReadTable implements Source.
func (s *GCSSource) ReadTable(ctx context.Context) ([]string, [][]string, error) {
	name := s.Object
	if strings.HasSuffix(name, "/") {
		latest, err := latestObject(ctx, s.client.Bucket(s.Bucket), name)
		if err != nil {
			return nil, nil, err
		}
		name = latest
	}

	r, err := s.client.Bucket(s.Bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, nil, gcsError("open ledger object", s.Bucket, name, err)
	}
	defer r.Close()

	return readCSV(r)
}

// Describe implements Source.
func (s *GCSSource) Describe() string {
	return fmt.Sprintf("gs://%s/%s", s.Bucket, s.Object)
}

// GCSLabels reads the JSON label table from a Cloud Storage object.
type GCSLabels struct {
	client *storage.Client
	Bucket string
	Object string
}

// NewGCSLabels binds a label object in bucket.
func NewGCSLabels(client *storage.Client, bucket, object string) *GCSLabels {
	return &GCSLabels{client: client, Bucket: bucket, Object: object}
}

// ReadLabels implements LabelSource.
func (l *GCSLabels) ReadLabels(ctx context.Context) (map[int64]bool, error) {
	r, err := l.client.Bucket(l.Bucket).Object(l.Object).NewReader(ctx)
	if err != nil {
		return nil, gcsError("open label object", l.Bucket, l.Object, err)
	}
	defer r.Close()

	return decodeLabels(r)
}

func latestObject(ctx context.Context, bkt *storage.BucketHandle, prefix string) (string, error) {
	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	var latest string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: list %s: %v", domain.ErrInternal, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		if attrs.Name > latest {
			latest = attrs.Name
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w: no ledger objects under %s", domain.ErrNotFound, prefix)
	}
	return latest, nil
}

func gcsError(op, bucket, object string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: gs://%s/%s", domain.ErrNotFound, bucket, object)
	}
	return fmt.Errorf("%w: %s gs://%s/%s: %v", domain.ErrInternal, op, bucket, object, err)
}
