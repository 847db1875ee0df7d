package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trippixn/mediagrab/internal/domain"
)

// Assemble folds per-file outcomes back into a BatchResult ordered by
// carousel index. Pure transformation: it never touches the filesystem.
func Assemble(req domain.MediaRequest, platform domain.PlatformKind, items []domain.FetchedItem, outcomes []domain.CompressionOutcome) *domain.BatchResult {
	result := &domain.BatchResult{
		RequestID: req.ID,
		SourceURL: req.SourceURL,
		Platform:  platform,
		Ready:     []domain.ReadyItem{},
		Failures:  []domain.ItemFailure{},
	}

	for i, item := range items {
		outcome := outcomes[i]
		if outcome.Failed() {
			result.Failures = append(result.Failures, domain.ItemFailure{
				Index:  item.File.Index,
				Reason: failureReason(outcome),
			})
			continue
		}

		file := item.File
		if outcome.Status == domain.CompressionCompressed {
			file.Path = outcome.OutputPath
			file.SizeBytes = outcome.NewSizeBytes
		}
		result.Ready = append(result.Ready, domain.ReadyItem{
			File:        file,
			Meta:        item.Meta,
			Compression: outcome,
		})
	}

	// Reorder by source index, not completion time.
	sort.Slice(result.Ready, func(a, b int) bool {
		return result.Ready[a].File.Index < result.Ready[b].File.Index
	})
	sort.Slice(result.Failures, func(a, b int) bool {
		return result.Failures[a].Index < result.Failures[b].Index
	})

	result.State = domain.ResolveState(len(result.Ready), len(result.Failures))
	return result
}

func failureReason(outcome domain.CompressionOutcome) string {
	switch outcome.Reason {
	case domain.ReasonAllAttemptsExceedCeiling:
		return "too large after compression"
	case domain.ReasonTimeout:
		return "compression timed out"
	default:
		if outcome.Detail != "" {
			return "compression failed: " + outcome.Detail
		}
		return "compression failed"
	}
}

// DeliveryFile is one entry of the delivery-ready payload.
type DeliveryFile struct {
	Path           string                   `json:"path"`
	SizeBytes      int64                    `json:"size_bytes"`
	MediaType      domain.MediaType         `json:"media_type"`
	Index          int                      `json:"index"`
	Caption        string                   `json:"caption,omitempty"`
	UploaderHandle string                   `json:"uploader_handle,omitempty"`
	Compression    domain.CompressionStatus `json:"compression"`
	Attempts       int                      `json:"attempts,omitempty"`
}

// DeliveryPayload is what the caller renders: ordered files plus a
// human-readable summary of any failures.
type DeliveryPayload struct {
	RequestID string                `json:"request_id"`
	SourceURL string                `json:"source_url"`
	Platform  domain.PlatformKind   `json:"platform"`
	State     domain.BatchState     `json:"state"`
	Files     []DeliveryFile        `json:"files"`
	Failures  []domain.ItemFailure  `json:"failures,omitempty"`
	Summary   string                `json:"summary"`
}

// BuildPayload renders a BatchResult into its delivery payload.
func BuildPayload(result *domain.BatchResult) DeliveryPayload {
	files := make([]DeliveryFile, 0, len(result.Ready))
	for _, item := range result.Ready {
		files = append(files, DeliveryFile{
			Path:           item.File.Path,
			SizeBytes:      item.File.SizeBytes,
			MediaType:      item.File.MediaType,
			Index:          item.File.Index,
			Caption:        item.Meta.Caption,
			UploaderHandle: item.Meta.UploaderHandle,
			Compression:    item.Compression.Status,
			Attempts:       item.Compression.Attempts,
		})
	}

	return DeliveryPayload{
		RequestID: result.RequestID,
		SourceURL: result.SourceURL,
		Platform:  result.Platform,
		State:     result.State,
		Files:     files,
		Failures:  result.Failures,
		Summary:   Summarize(result),
	}
}

// Summarize produces the failure summary the command layer shows users,
// e.g. "2 of 4 items downloaded; 2 failed: too large after compression".
func Summarize(result *domain.BatchResult) string {
	total := result.Total()
	ready := len(result.Ready)

	if len(result.Failures) == 0 {
		if total == 1 {
			return "1 item downloaded"
		}
		return fmt.Sprintf("all %d items downloaded", total)
	}

	reasons := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		reasons = append(reasons, f.Reason)
	}
	detail := strings.Join(reasons, "; ")

	if ready == 0 {
		return fmt.Sprintf("no items downloaded; %d failed: %s", len(result.Failures), detail)
	}
	return fmt.Sprintf("%d of %d items downloaded; %d failed: %s", ready, total, len(result.Failures), detail)
}
