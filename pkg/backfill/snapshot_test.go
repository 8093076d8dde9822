package backfill

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket string
	key    string
	body   []byte
	err    error
	calls  int
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(params.Bucket)
	f.key = aws.ToString(params.Key)
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestFileSnapshotterWritesJSONLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")

	snap, err := NewFileSnapshotter(path)
	require.NoError(t, err)
	require.NoError(t, snap.Save(ctx, SnapshotRecord{PrincipalID: "a", Role: "broker", Overrides: map[string]bool{"nav_leads": true}}))
	require.NoError(t, snap.Save(ctx, SnapshotRecord{PrincipalID: "b", Role: "assistant"}))
	require.NoError(t, snap.Close(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec SnapshotRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		ids = append(ids, rec.PrincipalID)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestS3SnapshotterUploadsOnClose(t *testing.T) {
	ctx := context.Background()
	putter := &fakePutter{}
	snap := newS3Snapshotter(putter, "grant-snapshots", "backfill/run.jsonl")

	require.NoError(t, snap.Save(ctx, SnapshotRecord{PrincipalID: "a", Overrides: map[string]bool{"nav_crm": false}}))
	assert.Zero(t, putter.calls)

	require.NoError(t, snap.Close(ctx))
	assert.Equal(t, 1, putter.calls)
	assert.Equal(t, "grant-snapshots", putter.bucket)
	assert.Equal(t, "backfill/run.jsonl", putter.key)
	assert.Contains(t, string(putter.body), `"principal_id":"a"`)
}

func TestS3SnapshotterSkipsEmptyUpload(t *testing.T) {
	putter := &fakePutter{}
	snap := newS3Snapshotter(putter, "bucket", "key")
	require.NoError(t, snap.Close(context.Background()))
	assert.Zero(t, putter.calls)
}

func TestS3SnapshotterReportsUploadFailure(t *testing.T) {
	ctx := context.Background()
	putter := &fakePutter{err: errors.New("access denied")}
	snap := newS3Snapshotter(putter, "bucket", "key")

	require.NoError(t, snap.Save(ctx, SnapshotRecord{PrincipalID: "a"}))
	err := snap.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestSnapshotKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "backfill-20260304T050607Z.jsonl", snapshotKey("", at))
	assert.Equal(t, "grant/backfill-20260304T050607Z.jsonl", snapshotKey("grant", at))
}

func TestNewS3SnapshotterRequiresBucket(t *testing.T) {
	_, err := NewS3Snapshotter(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
