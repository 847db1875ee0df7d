package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/domain"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fetch func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fetch(ctx, req, platform, stagingDir)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTranscoder struct {
	compress func(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome
}

func (f *fakeTranscoder) Compress(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
	return f.compress(ctx, file, ceilingBytes)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*domain.RequestRecord
}

func (f *fakeHistory) Create(record *domain.RequestRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeHistory) FindRecent(limit int) ([]*domain.RequestRecord, error) { return f.records, nil }
func (f *fakeHistory) Stats() (*domain.RequestStats, error)                 { return &domain.RequestStats{}, nil }
func (f *fakeHistory) Close() error                                         { return nil }

func (f *fakeHistory) last() *domain.RequestRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return nil
	}
	return f.records[len(f.records)-1]
}

func testConfig(t *testing.T) *domain.Config {
	t.Helper()
	config := domain.DefaultConfig()
	base := t.TempDir()
	config.Staging.BaseDir = filepath.Join(base, "staging")
	config.Staging.CompletedDir = filepath.Join(base, "completed")
	config.Limits.SizeCeilingBytes = 1000
	config.Limits.PerRequestWorkers = 2
	config.Limits.GlobalProcessCap = 4
	config.Fetch.Retries = 0
	require.NoError(t, os.MkdirAll(config.Staging.BaseDir, 0755))
	return config
}

// stageItems writes real files into stagingDir and returns matching items.
func stageItems(t *testing.T, stagingDir string, specs []domain.StagedFile) []domain.FetchedItem {
	t.Helper()
	items := make([]domain.FetchedItem, 0, len(specs))
	for _, spec := range specs {
		path := filepath.Join(stagingDir, filepath.Base(spec.Path))
		require.NoError(t, os.WriteFile(path, make([]byte, spec.SizeBytes), 0644))
		items = append(items, domain.FetchedItem{
			File: domain.StagedFile{
				Path:      path,
				SizeBytes: spec.SizeBytes,
				MediaType: spec.MediaType,
				Index:     spec.Index,
			},
		})
	}
	return items
}

func passthroughTranscoder() *fakeTranscoder {
	return &fakeTranscoder{
		compress: func(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
			return domain.Unchanged()
		},
	}
}

func TestSubmitDownload_RejectsUnknownURL(t *testing.T) {
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			t.Fatal("fetcher must not be called for unknown URLs")
			return nil, nil
		},
	}
	history := &fakeHistory{}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, history, testConfig(t), zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://youtube.com/watch?v=abc")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrUnknownPlatform)
	assert.Equal(t, 0, fetcher.callCount())

	record := history.last()
	require.NotNil(t, record)
	assert.Equal(t, domain.BatchFailure, record.State)
}

func TestSubmitDownload_ImageCarouselOrderedAndPublished(t *testing.T) {
	config := testConfig(t)
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "01_a.jpg", SizeBytes: 100, MediaType: domain.MediaImage, Index: 0},
				{Path: "02_b.jpg", SizeBytes: 200, MediaType: domain.MediaImage, Index: 1},
				{Path: "03_c.jpg", SizeBytes: 300, MediaType: domain.MediaImage, Index: 2},
				{Path: "04_d.jpg", SizeBytes: 400, MediaType: domain.MediaImage, Index: 3},
			}), nil
		},
	}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://www.instagram.com/p/Cxyz123AbCd/")

	require.NoError(t, err)
	assert.Equal(t, domain.BatchSuccess, result.State)
	require.Len(t, result.Ready, 4)
	assert.Empty(t, result.Failures)

	for i, item := range result.Ready {
		assert.Equal(t, i, item.File.Index, "ready items must be in carousel order")
		assert.FileExists(t, item.File.Path)
		assert.Equal(t, config.Staging.CompletedDir, filepath.Dir(item.File.Path))
		assert.Equal(t, domain.CompressionUnchanged, item.Compression.Status)
	}

	// The request's staging namespace must be gone.
	_, statErr := os.Stat(filepath.Join(config.Staging.BaseDir, result.RequestID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSubmitDownload_OversizedVideoCompressed(t *testing.T) {
	config := testConfig(t)
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "01_big.mp4", SizeBytes: 5000, MediaType: domain.MediaVideo, Index: 0},
			}), nil
		},
	}
	transcoder := &fakeTranscoder{
		compress: func(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
			out := file.Path + ".small.mp4"
			require.NoError(t, os.WriteFile(out, make([]byte, 800), 0644))
			return domain.Compressed(out, 800, 3)
		},
	}
	o := NewOrchestrator(fetcher, transcoder, nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")

	require.NoError(t, err)
	assert.Equal(t, domain.BatchSuccess, result.State)
	require.Len(t, result.Ready, 1)

	item := result.Ready[0]
	assert.Equal(t, domain.CompressionCompressed, item.Compression.Status)
	assert.Equal(t, 3, item.Compression.Attempts)
	assert.Equal(t, int64(800), item.File.SizeBytes)
	assert.FileExists(t, item.File.Path)
}

func TestSubmitDownload_PartialFailure(t *testing.T) {
	config := testConfig(t)
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "01_small.jpg", SizeBytes: 100, MediaType: domain.MediaImage, Index: 0},
				{Path: "02_huge.mp4", SizeBytes: 9000, MediaType: domain.MediaVideo, Index: 1},
			}), nil
		},
	}
	transcoder := &fakeTranscoder{
		compress: func(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
			return domain.CompressionFailed(domain.ReasonAllAttemptsExceedCeiling, "")
		},
	}
	o := NewOrchestrator(fetcher, transcoder, nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")

	require.NoError(t, err, "partial failure still yields a result")
	assert.Equal(t, domain.BatchPartial, result.State)
	require.Len(t, result.Ready, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Total())
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, "too large after compression", result.Failures[0].Reason)
}

func TestSubmitDownload_DeadPostNotRetried(t *testing.T) {
	config := testConfig(t)
	config.Fetch.Retries = 2
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return nil, domain.NewFetchError(domain.FetchNotFound, platform, "content not found")
		},
	}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")

	assert.Nil(t, result)
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, domain.FetchNotFound, fetchErr.Kind)
	assert.Equal(t, 1, fetcher.callCount(), "dead posts must not be retried")
}

func TestSubmitDownload_TransientFetchFailureRetried(t *testing.T) {
	config := testConfig(t)
	config.Fetch.Retries = 1
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return nil, domain.NewFetchError(domain.FetchToolFailure, platform, "network reset")
		},
	}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, nil, config, zap.NewNop())

	_, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")

	require.Error(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestSubmitDownload_ResourceErrorNotRetried(t *testing.T) {
	config := testConfig(t)
	config.Fetch.Retries = 2
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return nil, &domain.ResourceError{Op: "read staging namespace", Err: assert.AnError}
		},
	}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")

	assert.Nil(t, result)
	var resErr *domain.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, 1, fetcher.callCount(), "staging failures are fatal, never retried")
}

func TestSubmitDownload_DuplicateURLRejected(t *testing.T) {
	config := testConfig(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			once.Do(func() {
				close(started)
				<-release
			})
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "01_a.jpg", SizeBytes: 10, MediaType: domain.MediaImage, Index: 0},
			}), nil
		},
	}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, nil, config, zap.NewNop())

	url := "https://x.com/user/status/999"
	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitDownload(context.Background(), url)
		done <- err
	}()

	<-started
	_, err := o.SubmitDownload(context.Background(), url)
	assert.ErrorIs(t, err, domain.ErrRequestInFlight)

	close(release)
	require.NoError(t, <-done)

	// Lock released: the same URL is accepted again.
	_, err = o.SubmitDownload(context.Background(), url)
	require.NoError(t, err)
}

func TestSubmitDownload_CancellationAbortsRequest(t *testing.T) {
	config := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			cancel()
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "01_a.jpg", SizeBytes: 10, MediaType: domain.MediaImage, Index: 0},
			}), nil
		},
	}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(ctx, "https://x.com/user/status/123")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)

	// Staging must still be cleaned up on the cancellation path.
	entries, readErr := os.ReadDir(config.Staging.BaseDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSubmitDownload_ConcurrencyBounded(t *testing.T) {
	config := testConfig(t)
	config.Limits.PerRequestWorkers = 2
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			specs := make([]domain.StagedFile, 6)
			for i := range specs {
				specs[i] = domain.StagedFile{
					Path:      filepath.Join(stagingDir, string(rune('a'+i))+".mp4"),
					SizeBytes: 5000,
					MediaType: domain.MediaVideo,
					Index:     i,
				}
			}
			return stageItems(t, stagingDir, specs), nil
		},
	}

	var active, peak int32
	transcoder := &fakeTranscoder{
		compress: func(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)

			out := file.Path + ".small.mp4"
			if err := os.WriteFile(out, make([]byte, 100), 0644); err != nil {
				return domain.CompressionFailed(domain.ReasonToolFailure, err.Error())
			}
			return domain.Compressed(out, 100, 1)
		},
	}
	o := NewOrchestrator(fetcher, transcoder, nil, nil, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")

	require.NoError(t, err)
	assert.Equal(t, domain.BatchSuccess, result.State)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2), "per-request worker bound exceeded")
}

func TestSubmitDownload_GlobalProcessCapSharedAcrossRequests(t *testing.T) {
	config := testConfig(t)
	config.Limits.PerRequestWorkers = 2
	config.Limits.GlobalProcessCap = 1
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "001_a.mp4", SizeBytes: 5000, MediaType: domain.MediaVideo, Index: 0},
				{Path: "002_b.mp4", SizeBytes: 5000, MediaType: domain.MediaVideo, Index: 1},
			}), nil
		},
	}

	var active, peak int32
	transcoder := &fakeTranscoder{
		compress: func(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)

			out := file.Path + ".small.mp4"
			if err := os.WriteFile(out, make([]byte, 100), 0644); err != nil {
				return domain.CompressionFailed(domain.ReasonToolFailure, err.Error())
			}
			return domain.Compressed(out, 100, 1)
		},
	}
	o := NewOrchestrator(fetcher, transcoder, nil, nil, config, zap.NewNop())

	urls := []string{
		"https://x.com/user/status/1",
		"https://x.com/user/status/2",
	}
	errs := make(chan error, len(urls))
	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			_, err := o.SubmitDownload(context.Background(), url)
			errs <- err
		}(url)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(1),
		"external-process cap is shared across concurrent requests")
}

func TestPublishReady_RollsBackOnFailure(t *testing.T) {
	config := testConfig(t)
	o := NewOrchestrator(nil, nil, nil, nil, config, zap.NewNop())

	req := domain.NewMediaRequest("https://x.com/user/status/1")
	stagingDir := filepath.Join(config.Staging.BaseDir, req.ID)
	require.NoError(t, os.MkdirAll(stagingDir, 0755))

	good := filepath.Join(stagingDir, "001_a.jpg")
	require.NoError(t, os.WriteFile(good, make([]byte, 10), 0644))

	result := &domain.BatchResult{
		Ready: []domain.ReadyItem{
			{File: domain.StagedFile{Path: good, Index: 0}},
			{File: domain.StagedFile{Path: filepath.Join(stagingDir, "002_missing.mp4"), Index: 1}},
		},
	}

	err := o.publishReady(req, result)

	var resErr *domain.ResourceError
	require.ErrorAs(t, err, &resErr)

	// The file moved before the failure must not linger in the completed
	// directory.
	entries, readErr := os.ReadDir(config.Staging.CompletedDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSubmitDownload_RecordsHistory(t *testing.T) {
	config := testConfig(t)
	fetcher := &fakeFetcher{
		fetch: func(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
			return stageItems(t, stagingDir, []domain.StagedFile{
				{Path: "01_a.jpg", SizeBytes: 10, MediaType: domain.MediaImage, Index: 0},
			}), nil
		},
	}
	history := &fakeHistory{}
	o := NewOrchestrator(fetcher, passthroughTranscoder(), nil, history, config, zap.NewNop())

	result, err := o.SubmitDownload(context.Background(), "https://x.com/user/status/123")
	require.NoError(t, err)

	record := history.last()
	require.NotNil(t, record)
	assert.Equal(t, result.RequestID, record.ID)
	assert.Equal(t, domain.BatchSuccess, record.State)
	assert.Equal(t, domain.PlatformTwitter, record.Platform)
	assert.Equal(t, 1, record.ReadyCount)
}
