package domain

import (
	"context"
	"time"
)

// Fetcher invokes the external extraction tool for a single URL and stages
// the resulting files under stagingDir. The returned items preserve source
// post order. On any error the fetcher leaves no partial files behind: it
// returns either a complete item list or nothing.
type Fetcher interface {
	Fetch(ctx context.Context, req MediaRequest, platform PlatformKind, stagingDir string) ([]FetchedItem, error)
}

// Transcoder runs the bounded quality ladder against a size ceiling. Output
// is always written to a new path; the input file is left in place for the
// orchestrator to clean up. Failure is encoded in the outcome, not an error.
type Transcoder interface {
	Compress(ctx context.Context, file StagedFile, ceilingBytes int64) CompressionOutcome
}

// RequestEvent is the structured completion event emitted once per request.
type RequestEvent struct {
	RequestID    string        `json:"request_id"`
	SourceURL    string        `json:"source_url"`
	Platform     PlatformKind  `json:"platform"`
	State        BatchState    `json:"state"`
	ReadyCount   int           `json:"ready_count"`
	FailureCount int           `json:"failure_count"`
	Failures     []ItemFailure `json:"failures,omitempty"`
	Error        string        `json:"error,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// EventSink consumes completion events. Implementations must be
// fire-and-forget: they never block and never fail the pipeline.
type EventSink interface {
	RequestCompleted(event RequestEvent)
}

// HistoryRepository persists one record per completed request.
type HistoryRepository interface {
	Create(record *RequestRecord) error
	FindRecent(limit int) ([]*RequestRecord, error)
	Stats() (*RequestStats, error)
	Close() error
}
