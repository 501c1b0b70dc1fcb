package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dinver-app/dinver-media/internal/entities"
	"github.com/dinver-app/dinver-media/internal/processor"
	"github.com/dinver-app/dinver-media/internal/queue"
)

type fakeStorage struct {
	failAfter int // fail the Nth put (1-based), 0 disables
	putCalls  int
	puts      map[string][]byte
	deleted   []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{puts: make(map[string][]byte)}
}

func (f *fakeStorage) Put(ctx context.Context, key, contentType string, payload []byte) error {
	f.putCalls++
	if f.failAfter > 0 && f.putCalls == f.failAfter {
		return fmt.Errorf("%w: injected", entities.ErrStorage)
	}
	f.puts[key] = payload
	return nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	delete(f.puts, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeQueue struct {
	enqueued []entities.JobPayload
	jobID    string
}

func (f *fakeQueue) Enqueue(ctx context.Context, payload entities.JobPayload, prio queue.Priority) (string, error) {
	f.enqueued = append(f.enqueued, payload)
	return f.jobID, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, storageKey string, variant entities.VariantName) string {
	return "https://cdn.example.com/" + storageKey + "?sig=x"
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func newTestUploader(storage *fakeStorage, jobs *fakeQueue) *Uploader {
	return New(processor.NewGenerator(), storage, jobs, fakeResolver{}, nil, 1280)
}

func TestUploadOptimistic(t *testing.T) {
	storage := newFakeStorage()
	jobs := &fakeQueue{jobID: "job-42"}
	u := newTestUploader(storage, jobs)

	res, err := u.Upload(context.Background(), testJPEG(t, 1600, 1200), "blog_images", StrategyOptimistic, Options{})
	require.NoError(t, err)

	require.Equal(t, entities.UploadStatusProcessing, res.Status)
	require.Equal(t, "job-42", res.JobID)
	require.Empty(t, res.Variants)

	// Placeholder URLs for the three default variants, sharing one baseName.
	require.Len(t, res.URLs, 3)
	base := res.Asset.BaseName
	require.NotEmpty(t, base)
	for _, suffix := range []string{"-thumb", "-medium", "-full"} {
		found := false
		for _, url := range res.URLs {
			if strings.Contains(url, "blog_images/"+base+suffix+".jpg") {
				found = true
			}
		}
		require.True(t, found, "no placeholder URL with suffix %s", suffix)
	}

	// The work went to the queue, not to storage.
	require.Len(t, jobs.enqueued, 1)
	require.Equal(t, base, jobs.enqueued[0].BaseName)
	require.Equal(t, "blog_images", jobs.enqueued[0].Folder)
	require.NotEmpty(t, jobs.enqueued[0].Data)
	require.Empty(t, storage.puts)
}

func TestUploadOptimisticDefaultStrategy(t *testing.T) {
	jobs := &fakeQueue{jobID: "job-1"}
	u := newTestUploader(newFakeStorage(), jobs)

	res, err := u.Upload(context.Background(), testJPEG(t, 100, 100), "avatars", "", Options{})
	require.NoError(t, err)
	require.Equal(t, entities.UploadStatusProcessing, res.Status)
}

func TestUploadSyncStoresAllVariants(t *testing.T) {
	storage := newFakeStorage()
	jobs := &fakeQueue{}
	u := newTestUploader(storage, jobs)

	res, err := u.Upload(context.Background(), testJPEG(t, 2000, 1500), "receipts", StrategySync, Options{KeepOriginal: true})
	require.NoError(t, err)

	require.Equal(t, entities.UploadStatusCompleted, res.Status)
	require.Empty(t, res.JobID)
	require.Len(t, res.Variants, 4)
	require.Len(t, storage.puts, 4)
	require.Empty(t, jobs.enqueued)

	for _, v := range res.Variants {
		require.Contains(t, storage.puts, v.StorageKey)
		require.Greater(t, v.ByteSize, int64(0))
		require.LessOrEqual(t, v.Width, 2000)
	}
}

func TestUploadSyncRollsBackOnPartialFailure(t *testing.T) {
	storage := newFakeStorage()
	storage.failAfter = 2 // second variant write fails
	u := newTestUploader(storage, &fakeQueue{})

	_, err := u.Upload(context.Background(), testJPEG(t, 2000, 1500), "blog_images", StrategySync, Options{})
	require.Error(t, err)
	require.True(t, errors.Is(err, entities.ErrStorage))

	// The first write was rolled back; no key for the baseName survives.
	require.Empty(t, storage.puts)
	require.Len(t, storage.deleted, 1)
}

func TestUploadQuick(t *testing.T) {
	storage := newFakeStorage()
	jobs := &fakeQueue{}
	u := newTestUploader(storage, jobs)

	res, err := u.Upload(context.Background(), testPNG(t, 2000, 1000), "profile_images", StrategyQuick, Options{})
	require.NoError(t, err)

	require.Equal(t, entities.UploadStatusCompleted, res.Status)
	require.Len(t, res.Variants, 1)
	require.Len(t, storage.puts, 1)
	require.Empty(t, jobs.enqueued)

	record := res.Variants[0]
	require.Equal(t, entities.VariantFullscreen, record.Name)
	require.Contains(t, record.StorageKey, "-full.jpg")
	require.LessOrEqual(t, record.Width, 1280)

	// Re-encoded as canonical JPEG regardless of PNG input.
	stored := storage.puts[record.StorageKey]
	_, format, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestUploadQuickSmallSourceNotUpscaled(t *testing.T) {
	storage := newFakeStorage()
	u := newTestUploader(storage, &fakeQueue{})

	res, err := u.Upload(context.Background(), testPNG(t, 400, 300), "profile_images", StrategyQuick, Options{})
	require.NoError(t, err)
	require.Equal(t, 400, res.Variants[0].Width)
}

func TestUploadRejectsGarbage(t *testing.T) {
	storage := newFakeStorage()
	jobs := &fakeQueue{}
	u := newTestUploader(storage, jobs)

	for _, strategy := range []Strategy{StrategyOptimistic, StrategySync, StrategyQuick} {
		_, err := u.Upload(context.Background(), []byte("not an image at all"), "blog_images", strategy, Options{})
		require.Error(t, err, "strategy %s", strategy)
		require.True(t, errors.Is(err, entities.ErrUnsupportedFormat), "strategy %s", strategy)
	}

	// Validation failures leave no side effects on any path.
	require.Empty(t, storage.puts)
	require.Zero(t, storage.putCalls)
	require.Empty(t, jobs.enqueued)
}

func TestUploadUnknownStrategy(t *testing.T) {
	u := newTestUploader(newFakeStorage(), &fakeQueue{})

	_, err := u.Upload(context.Background(), testJPEG(t, 10, 10), "blog_images", Strategy("eventually"), Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown upload strategy")
}
