package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownPlatform is returned when a URL does not match any supported
// platform. Rejected before any external call.
var ErrUnknownPlatform = errors.New("unsupported URL: only Instagram, Twitter/X, and TikTok are supported")

// ErrRequestInFlight is returned when a download for the same URL is already
// being processed.
var ErrRequestInFlight = errors.New("a download for this URL is already in progress")

// FetchErrorKind classifies why a fetch failed.
type FetchErrorKind string

const (
	FetchNotFound    FetchErrorKind = "not_found"    // dead or private post
	FetchUnsupported FetchErrorKind = "unsupported"  // e.g. live content
	FetchToolFailure FetchErrorKind = "tool_failure" // non-zero exit, malformed output
	FetchTimeout     FetchErrorKind = "timeout"
)

// FetchError is terminal for the whole request: fetch is all-or-nothing.
type FetchError struct {
	Kind     FetchErrorKind
	Platform PlatformKind
	Detail   string
}

func (e *FetchError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("fetch failed (%s): %s", e.Platform, e.Kind)
	}
	return fmt.Sprintf("fetch failed (%s): %s: %s", e.Platform, e.Kind, e.Detail)
}

// NewFetchError builds a typed fetch failure.
func NewFetchError(kind FetchErrorKind, platform PlatformKind, detail string) *FetchError {
	return &FetchError{Kind: kind, Platform: platform, Detail: detail}
}

// CompressionReason classifies why the transcoder ladder failed.
type CompressionReason string

const (
	ReasonAllAttemptsExceedCeiling CompressionReason = "all_attempts_exceed_ceiling"
	ReasonToolFailure              CompressionReason = "tool_failure"
	ReasonTimeout                  CompressionReason = "timeout"
)

// ResourceError marks a staging-area failure (directory unavailable, disk
// exhausted). Fatal to the request, never retried.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource failure during %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
