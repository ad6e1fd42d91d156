package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// fakeS3 is an in-memory ObjectAPI.
type fakeS3 struct {
	objects map[string][]byte
	getErr  error
	putErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := New(fake, "digests", "snapshots")
	ctx := context.Background()

	at := time.Date(2025, 10, 21, 6, 0, 0, 0, time.UTC)
	snap := &model.Snapshot{
		Date:        "2025-10-21",
		GeneratedAt: at,
		Digest:      model.Digest{Reminders: []model.Reminder{{Text: "Bring a coat", AddedAt: at}}},
	}
	if err := s.PutSnapshot(ctx, snap); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	if _, ok := fake.objects["digests/snapshots/2025-10-21.json"]; !ok {
		t.Fatalf("object not written at expected key; have %v", fake.objects)
	}

	got, err := s.GetSnapshot(ctx, "2025-10-21")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(got.Digest.Reminders) != 1 || !got.GeneratedAt.Equal(at) {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestSnapshotStore_Errors(t *testing.T) {
	for _, tc := range []struct {
		name       string
		getErr     error
		wantAbsent bool
	}{
		{"MissingKey", nil, true},
		{"APINotFound", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"Network", errors.New("dial tcp: timeout"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := New(&fakeS3{objects: map[string][]byte{}, getErr: tc.getErr}, "b", "")
			_, err := s.GetSnapshot(context.Background(), "2025-10-20")
			if errors.Is(err, store.ErrNotFound) != tc.wantAbsent {
				t.Errorf("errors.Is(ErrNotFound) = %v, want %v (err=%v)", !tc.wantAbsent, tc.wantAbsent, err)
			}
			if errors.Is(err, store.ErrStoreAccess) == tc.wantAbsent {
				t.Errorf("errors.Is(ErrStoreAccess) mismatch for %v", err)
			}
		})
	}
}

func TestSnapshotStore_CorruptObject(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"b/2025-10-20.json": []byte("{not json")}}
	_, err := New(fake, "b", "").GetSnapshot(context.Background(), "2025-10-20")
	if !errors.Is(err, store.ErrStoreAccess) {
		t.Errorf("err = %v, want ErrStoreAccess", err)
	}
}

func TestSnapshotStore_Expired(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := New(fake, "digests", "snapshots")
	now := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for date, expires := range map[string]time.Time{
		"2025-10-20": now,
		"2025-10-21": now.Add(time.Hour),
	} {
		if err := s.PutSnapshot(ctx, &model.Snapshot{Date: date, ExpiresAt: expires}); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.GetSnapshot(ctx, "2025-10-20"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired snapshot: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetSnapshot(ctx, "2025-10-21"); err != nil {
		t.Errorf("live snapshot: %v", err)
	}
}
