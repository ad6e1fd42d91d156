// Package s3store keeps daily digest snapshots as JSON objects in an
// S3-compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// ObjectAPI is the subset of *s3.Client the snapshot store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient builds an S3 client. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewClient(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3opts...), nil
}

// SnapshotStore implements store.SnapshotStore with one object per day at
// <prefix>/<date>.json.
type SnapshotStore struct {
	client ObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

// Compile-time check that SnapshotStore implements store.SnapshotStore.
var _ store.SnapshotStore = (*SnapshotStore)(nil)

// New returns a snapshot store over client.
func New(client ObjectAPI, bucket, prefix string) *SnapshotStore {
	return &SnapshotStore{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

func (s *SnapshotStore) key(date string) string {
	return path.Join(s.prefix, date+".json")
}

// GetSnapshot returns store.ErrNotFound when the object does not exist or has
// expired, and wraps every other failure in store.ErrStoreAccess. Expired
// objects are left for the bucket's lifecycle rules to remove.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, date string) (*model.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(date)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get snapshot %s: %w", date, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get snapshot %s: %w: %w", date, store.ErrStoreAccess, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w: %w", date, store.ErrStoreAccess, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w: %w", date, store.ErrStoreAccess, err)
	}
	if !snap.ExpiresAt.IsZero() && !s.now().Before(snap.ExpiresAt) {
		return nil, fmt.Errorf("get snapshot %s: expired: %w", date, store.ErrNotFound)
	}
	return &snap, nil
}

// PutSnapshot overwrites the object for snap.Date.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Date, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(snap.Date)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w: %w", snap.Date, store.ErrStoreAccess, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
