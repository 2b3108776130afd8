package integrationtests

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucketName = "test-datasets"

func setupTestObjectStore(t *testing.T, ctx context.Context) *storage.S3ObjectStore {
	t.Helper()
	skipShort(t)

	endpoint := setupMinioContainer(t, ctx)

	objectStore, err := storage.NewS3ObjectStore(ctx, bucketName, t.TempDir(), storage.S3ClientConfig{
		Endpoint:        endpoint,
		Region:          "us-east-1",
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)

	require.NoError(t, objectStore.CreateBucket(ctx))
	return objectStore
}

func TestS3ObjectStore_CreateBucketTwice(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)
	assert.NoError(t, objectStore.CreateBucket(ctx))
}

func TestS3ObjectStore_PutObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	key := "runs/abc/train-images-idx3-ubyte"
	content := []byte("Test content")

	require.NoError(t, objectStore.PutObject(ctx, key, bytes.NewReader(content)))

	obj, err := objectStore.GetObject(ctx, key)
	require.NoError(t, err)
	defer obj.Close()

	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestS3ObjectStore_LocalDir(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	files := []string{"runs/a/file1", "runs/a/file2", "runs/a/sub/file3", "runs/b/file4"}
	for _, file := range files {
		require.NoError(t, objectStore.PutObject(ctx, file, bytes.NewReader([]byte("content: "+file))))
	}

	dir, err := objectStore.LocalDir(ctx, "runs/a")
	require.NoError(t, err)

	for _, file := range []string{"file1", "file2", "sub/file3"} {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(file)))
		require.NoError(t, err)
		assert.Equal(t, "content: runs/a/"+file, string(data))
	}

	_, err = os.Stat(filepath.Join(dir, "file4"))
	assert.True(t, os.IsNotExist(err))

	// A second download replaces stale files.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale"), []byte("x"), 0644))
	dir, err = objectStore.LocalDir(ctx, "runs/a/")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "stale"))
	assert.True(t, os.IsNotExist(err))
}

func TestS3ObjectStore_DeleteObjects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	objectStore := setupTestObjectStore(t, ctx)

	files := []string{"runs/a/file1", "runs/a/sub/file2", "runs/b/file3"}
	for _, file := range files {
		require.NoError(t, objectStore.PutObject(ctx, file, bytes.NewReader([]byte("content: "+file))))
	}

	require.NoError(t, objectStore.DeleteObjects(ctx, "runs/a"))

	_, err := objectStore.GetObject(ctx, "runs/a/file1")
	assert.Error(t, err)

	obj, err := objectStore.GetObject(ctx, "runs/b/file3")
	require.NoError(t, err)
	obj.Close()
}
