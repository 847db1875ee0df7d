package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlatformKind identifies the source platform of a media URL.
type PlatformKind string

const (
	PlatformInstagram PlatformKind = "instagram"
	PlatformTwitter   PlatformKind = "twitter"
	PlatformTikTok    PlatformKind = "tiktok"
	PlatformUnknown   PlatformKind = "unknown"
)

// MediaType tags a staged file as video or image. Determined once at fetch
// time from the file extension and never re-derived downstream.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaImage MediaType = "image"
)

// MediaRequest represents one incoming download request.
type MediaRequest struct {
	ID        string
	SourceURL string
	CreatedAt time.Time
}

// NewMediaRequest creates a request with a fresh ID. The ID doubles as the
// staging namespace name, so two requests for the same URL never share files.
func NewMediaRequest(url string) MediaRequest {
	return MediaRequest{
		ID:        uuid.New().String(),
		SourceURL: url,
		CreatedAt: time.Now(),
	}
}

// StagedFile is one media file on local disk, owned by the orchestrator for
// the lifetime of its request.
type StagedFile struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	MediaType MediaType `json:"media_type"`
	Index     int       `json:"index"` // position within the carousel, 0-based
}

// MediaMetadata carries provenance for a fetched item. Read-only downstream.
type MediaMetadata struct {
	Caption        string       `json:"caption,omitempty"`
	UploaderHandle string       `json:"uploader_handle,omitempty"`
	Platform       PlatformKind `json:"platform"`
}

// FetchedItem pairs a staged file with its metadata, as produced by the
// fetch adapter.
type FetchedItem struct {
	File StagedFile
	Meta MediaMetadata
}

// CompressionStatus is the tag of a CompressionOutcome.
type CompressionStatus string

const (
	CompressionUnchanged  CompressionStatus = "unchanged"
	CompressionCompressed CompressionStatus = "compressed"
	CompressionFailedTag  CompressionStatus = "failed"
)

// CompressionOutcome records what the transcoder did to one file.
type CompressionOutcome struct {
	Status       CompressionStatus `json:"status"`
	OutputPath   string            `json:"output_path,omitempty"`
	NewSizeBytes int64             `json:"new_size_bytes,omitempty"`
	Attempts     int               `json:"attempts,omitempty"`
	Reason       CompressionReason `json:"reason,omitempty"`
	Detail       string            `json:"detail,omitempty"`
}

// Unchanged marks a file that already fit the ceiling.
func Unchanged() CompressionOutcome {
	return CompressionOutcome{Status: CompressionUnchanged}
}

// Compressed marks a successful re-encode.
func Compressed(outputPath string, sizeBytes int64, attempts int) CompressionOutcome {
	return CompressionOutcome{
		Status:       CompressionCompressed,
		OutputPath:   outputPath,
		NewSizeBytes: sizeBytes,
		Attempts:     attempts,
	}
}

// CompressionFailed marks an exhausted or broken ladder.
func CompressionFailed(reason CompressionReason, detail string) CompressionOutcome {
	return CompressionOutcome{
		Status: CompressionFailedTag,
		Reason: reason,
		Detail: detail,
	}
}

// Failed reports whether the outcome is terminal for its file.
func (o CompressionOutcome) Failed() bool {
	return o.Status == CompressionFailedTag
}

// BatchState is the terminal state of one request.
type BatchState string

const (
	BatchSuccess BatchState = "success"
	BatchPartial BatchState = "partial"
	BatchFailure BatchState = "failure"
)

// ReadyItem is one delivery-ready file with its metadata and compression
// history.
type ReadyItem struct {
	File        StagedFile         `json:"file"`
	Meta        MediaMetadata      `json:"meta"`
	Compression CompressionOutcome `json:"compression"`
}

// ItemFailure records one file that could not be delivered.
type ItemFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of one request. Invariant:
// len(Ready)+len(Failures) equals the number of items fetched, and Ready is
// ordered by carousel index.
type BatchResult struct {
	RequestID string        `json:"request_id"`
	SourceURL string        `json:"source_url"`
	Platform  PlatformKind  `json:"platform"`
	State     BatchState    `json:"state"`
	Ready     []ReadyItem   `json:"ready"`
	Failures  []ItemFailure `json:"failures"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Total returns the number of items the fetch produced.
func (r *BatchResult) Total() int {
	return len(r.Ready) + len(r.Failures)
}

// ResolveState derives the terminal state from the ready/failure split.
func ResolveState(readyCount, failureCount int) BatchState {
	switch {
	case readyCount == 0:
		return BatchFailure
	case failureCount == 0:
		return BatchSuccess
	default:
		return BatchPartial
	}
}
