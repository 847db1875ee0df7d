package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/domain"
)

// Orchestrator drives one request through the pipeline: classify, fetch,
// per-file size policy and compression, assembly. It is the sole owner of
// every staged file for the duration of a request and guarantees the staging
// namespace is gone by the time SubmitDownload returns, whatever the
// outcome. Ready files are moved to the completed directory first.
type Orchestrator struct {
	fetcher    domain.Fetcher
	transcoder domain.Transcoder
	policy     domain.SizePolicy
	events     domain.EventSink
	history    domain.HistoryRepository
	config     *domain.Config
	logger     *zap.Logger
	locks      *requestLocks
	procSlots  chan struct{} // global cap on concurrent external processes
}

// NewOrchestrator creates an orchestrator. events and history may be nil.
func NewOrchestrator(
	fetcher domain.Fetcher,
	transcoder domain.Transcoder,
	events domain.EventSink,
	history domain.HistoryRepository,
	config *domain.Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		fetcher:    fetcher,
		transcoder: transcoder,
		policy:     domain.SizePolicy{CeilingBytes: config.Limits.SizeCeilingBytes},
		events:     events,
		history:    history,
		config:     config,
		logger:     logger,
		locks:      newRequestLocks(),
		procSlots:  make(chan struct{}, config.Limits.GlobalProcessCap),
	}
}

// SubmitDownload runs the full pipeline for one URL. It returns a BatchResult
// on success or partial success, or a terminal error when nothing could be
// delivered (unknown platform, fetch failure, resource failure,
// cancellation).
func (o *Orchestrator) SubmitDownload(ctx context.Context, url string) (*domain.BatchResult, error) {
	start := time.Now()
	req := domain.NewMediaRequest(url)

	// Classifying: reject before any external call.
	platform := domain.ClassifyURL(url)
	if platform == domain.PlatformUnknown {
		o.finishFailed(req, platform, domain.ErrUnknownPlatform, start)
		return nil, domain.ErrUnknownPlatform
	}

	if !o.locks.TryAcquire(url) {
		return nil, domain.ErrRequestInFlight
	}
	defer o.locks.Release(url)

	o.logger.Info("processing download request",
		zap.String("request_id", req.ID),
		zap.String("url", url),
		zap.String("platform", string(platform)))

	stagingDir := filepath.Join(o.config.Staging.BaseDir, req.ID)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		rerr := &domain.ResourceError{Op: "create staging namespace", Err: err}
		o.finishFailed(req, platform, rerr, start)
		return nil, rerr
	}
	// Cleanup invariant: nothing in the staging namespace survives the
	// request. Ready files are moved out before this runs.
	defer os.RemoveAll(stagingDir)

	// Fetching: all-or-nothing for the request.
	items, err := o.fetchWithRetry(ctx, req, platform, stagingDir)
	if err != nil {
		o.finishFailed(req, platform, err, start)
		return nil, err
	}

	// PerFileProcessing: bounded concurrency, partial-failure semantics.
	outcomes := o.processFiles(ctx, items)

	if err := ctx.Err(); err != nil {
		o.finishFailed(req, platform, err, start)
		return nil, err
	}

	// Assembling: fold outcomes back into source order.
	result := Assemble(req, platform, items, outcomes)

	if err := o.publishReady(req, result); err != nil {
		o.finishFailed(req, platform, err, start)
		return nil, err
	}

	result.Elapsed = time.Since(start)
	o.finishCompleted(result)
	return result, nil
}

// fetchWithRetry runs the fetch adapter, retrying transient failures up to
// the configured count (default 0). Dead or unsupported posts are never
// retried.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
	var lastErr error
	attempts := o.config.Fetch.Retries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			o.logger.Info("retrying fetch",
				zap.String("request_id", req.ID),
				zap.Int("attempt", attempt))
		}

		release, err := o.acquireProcessSlot(ctx)
		if err != nil {
			return nil, err
		}
		items, fetchErr := o.fetcher.Fetch(ctx, req, platform, stagingDir)
		release()

		if fetchErr == nil {
			return items, nil
		}
		lastErr = fetchErr

		var fe *domain.FetchError
		if errors.As(fetchErr, &fe) && (fe.Kind == domain.FetchNotFound || fe.Kind == domain.FetchUnsupported) {
			return nil, fetchErr
		}

		// Staging-area failures are fatal to the request, never retried.
		var re *domain.ResourceError
		if errors.As(fetchErr, &re) {
			return nil, fetchErr
		}
	}

	return nil, lastErr
}

// processFiles fans the fetched items out over at most PerRequestWorkers
// goroutines. Each outcome lands in the slot matching its item, so source
// order is independent of completion order. A failed file never aborts its
// siblings.
func (o *Orchestrator) processFiles(ctx context.Context, items []domain.FetchedItem) []domain.CompressionOutcome {
	outcomes := make([]domain.CompressionOutcome, len(items))
	workers := make(chan struct{}, o.config.Limits.PerRequestWorkers)
	var wg sync.WaitGroup

	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case workers <- struct{}{}:
				defer func() { <-workers }()
			case <-ctx.Done():
				outcomes[i] = domain.CompressionFailed(domain.ReasonTimeout, "request cancelled")
				return
			}

			outcomes[i] = o.processFile(ctx, items[i])
		}(i)
	}

	wg.Wait()
	return outcomes
}

func (o *Orchestrator) processFile(ctx context.Context, item domain.FetchedItem) domain.CompressionOutcome {
	if o.policy.Classify(item.File) == domain.VerdictFits {
		return domain.Unchanged()
	}

	release, err := o.acquireProcessSlot(ctx)
	if err != nil {
		return domain.CompressionFailed(domain.ReasonTimeout, "request cancelled")
	}
	defer release()

	o.logger.Info("compressing oversized video",
		zap.String("path", item.File.Path),
		zap.Int64("size_bytes", item.File.SizeBytes),
		zap.Int64("ceiling_bytes", o.config.Limits.SizeCeilingBytes))

	return o.transcoder.Compress(ctx, item.File, o.config.Limits.SizeCeilingBytes)
}

// acquireProcessSlot claims a slot under the global external-process cap.
// When the cap is saturated, callers queue here instead of spawning.
func (o *Orchestrator) acquireProcessSlot(ctx context.Context) (func(), error) {
	select {
	case o.procSlots <- struct{}{}:
		return func() { <-o.procSlots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// publishReady moves ready files out of the staging namespace into the
// completed directory, prefixed with the request ID so concurrent requests
// never collide.
func (o *Orchestrator) publishReady(req domain.MediaRequest, result *domain.BatchResult) error {
	if len(result.Ready) == 0 {
		return nil
	}

	dir := o.config.Staging.CompletedDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &domain.ResourceError{Op: "create completed directory", Err: err}
	}

	published := make([]string, 0, len(result.Ready))
	for i := range result.Ready {
		src := result.Ready[i].File.Path
		dest := filepath.Join(dir, req.ID+"_"+filepath.Base(src))
		if err := moveFile(src, dest); err != nil {
			// The request fails terminally; files already moved out must not
			// be left stranded in the completed directory.
			for _, path := range published {
				os.Remove(path)
			}
			return &domain.ResourceError{Op: "publish ready file", Err: err}
		}
		published = append(published, dest)
		result.Ready[i].File.Path = dest
	}

	return nil
}

func (o *Orchestrator) finishCompleted(result *domain.BatchResult) {
	o.logger.Info("request completed",
		zap.String("request_id", result.RequestID),
		zap.String("state", string(result.State)),
		zap.Int("ready", len(result.Ready)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("elapsed", result.Elapsed))

	if o.history != nil {
		if err := o.history.Create(domain.RecordFromResult(result)); err != nil {
			o.logger.Error("failed to record request history", zap.Error(err))
		}
	}

	if o.events != nil {
		o.events.RequestCompleted(domain.RequestEvent{
			RequestID:    result.RequestID,
			SourceURL:    result.SourceURL,
			Platform:     result.Platform,
			State:        result.State,
			ReadyCount:   len(result.Ready),
			FailureCount: len(result.Failures),
			Failures:     result.Failures,
			Elapsed:      result.Elapsed,
		})
	}
}

func (o *Orchestrator) finishFailed(req domain.MediaRequest, platform domain.PlatformKind, err error, start time.Time) {
	elapsed := time.Since(start)

	o.logger.Warn("request failed",
		zap.String("request_id", req.ID),
		zap.String("url", req.SourceURL),
		zap.String("platform", string(platform)),
		zap.Error(err))

	if o.history != nil {
		if dbErr := o.history.Create(domain.RecordFromError(req, platform, err, elapsed)); dbErr != nil {
			o.logger.Error("failed to record request history", zap.Error(dbErr))
		}
	}

	if o.events != nil {
		o.events.RequestCompleted(domain.RequestEvent{
			RequestID: req.ID,
			SourceURL: req.SourceURL,
			Platform:  platform,
			State:     domain.BatchFailure,
			Error:     err.Error(),
			Elapsed:   elapsed,
		})
	}
}

// moveFile renames src to dest, falling back to copy-and-delete when the
// rename crosses filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
