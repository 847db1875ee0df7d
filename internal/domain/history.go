package domain

import "time"

// RequestRecord is the persisted trace of one completed request. Media files
// are never persisted; this row is what the stats API reads.
type RequestRecord struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	URL          string       `json:"url" gorm:"not null"`
	Platform     PlatformKind `json:"platform" gorm:"index"`
	State        BatchState   `json:"state" gorm:"not null;index"`
	ReadyCount   int          `json:"ready_count"`
	FailureCount int          `json:"failure_count"`
	ErrorMessage string       `json:"error_message,omitempty"`
	ElapsedMS    int64        `json:"elapsed_ms"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
}

// RecordFromResult builds a history record for a request that reached
// assembly.
func RecordFromResult(result *BatchResult) *RequestRecord {
	return &RequestRecord{
		ID:           result.RequestID,
		URL:          result.SourceURL,
		Platform:     result.Platform,
		State:        result.State,
		ReadyCount:   len(result.Ready),
		FailureCount: len(result.Failures),
		ElapsedMS:    result.Elapsed.Milliseconds(),
	}
}

// RecordFromError builds a history record for a request that failed before
// assembly (classification, fetch, or resource failure).
func RecordFromError(req MediaRequest, platform PlatformKind, err error, elapsed time.Duration) *RequestRecord {
	return &RequestRecord{
		ID:           req.ID,
		URL:          req.SourceURL,
		Platform:     platform,
		State:        BatchFailure,
		ErrorMessage: err.Error(),
		ElapsedMS:    elapsed.Milliseconds(),
	}
}

// RequestStats aggregates completed requests by terminal state.
type RequestStats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Partial   int64 `json:"partial"`
	Failed    int64 `json:"failed"`
}
