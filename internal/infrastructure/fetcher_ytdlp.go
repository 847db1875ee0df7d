package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/domain"
)

// Carousel entries are numbered by yt-dlp in source order; the zero-padded
// prefix makes lexical order match post order. Three digits keeps the
// ordering stable even for very large carousels.
const outputTemplate = "%(autonumber)03d_%(id)s.%(ext)s"

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".m4v": true,
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// YTDLPFetcher implements domain.Fetcher by invoking yt-dlp once per
// request. On every error path it removes whatever it staged, so the
// orchestrator only ever sees a complete item list or an empty namespace.
type YTDLPFetcher struct {
	config *domain.FetchConfig
	runner Runner
	logger *zap.Logger
}

// NewYTDLPFetcher creates a fetcher backed by the yt-dlp binary.
func NewYTDLPFetcher(config *domain.FetchConfig, logger *zap.Logger) *YTDLPFetcher {
	return &YTDLPFetcher{
		config: config,
		runner: ExecRunner{},
		logger: logger,
	}
}

// Fetch downloads all media of one post into stagingDir and returns the
// items in source order.
func (f *YTDLPFetcher) Fetch(ctx context.Context, req domain.MediaRequest, platform domain.PlatformKind, stagingDir string) ([]domain.FetchedItem, error) {
	cmd := Command{
		Binary:  f.config.YTDLPBinary,
		Args:    f.buildArgs(req.SourceURL, platform, stagingDir),
		Timeout: f.config.Timeout,
	}

	f.logger.Debug("running fetch command",
		zap.String("request_id", req.ID),
		zap.String("command", cmd.String()))

	result, err := f.runner.Run(ctx, cmd)
	if err != nil {
		f.cleanStaging(stagingDir)
		return nil, f.classifyFailure(platform, result, err)
	}

	items, err := f.collectItems(stagingDir, platform)
	if err != nil {
		f.cleanStaging(stagingDir)
		return nil, err
	}
	if len(items) == 0 {
		f.cleanStaging(stagingDir)
		return nil, domain.NewFetchError(domain.FetchUnsupported, platform, "no downloadable media in this post")
	}

	f.logger.Info("fetch complete",
		zap.String("request_id", req.ID),
		zap.Int("files", len(items)))

	return items, nil
}

// buildArgs assembles the yt-dlp argument vector. Note: exec passes args
// directly to the process, no shell quoting needed.
func (f *YTDLPFetcher) buildArgs(url string, platform domain.PlatformKind, stagingDir string) []string {
	args := []string{
		"--no-warnings",
		"--restrict-filenames",
		"--write-info-json",
		"-o", outputTemplate,
		"-P", stagingDir,
	}

	if f.config.MaxFilesize != "" {
		args = append(args, "--max-filesize", f.config.MaxFilesize)
	}

	switch platform {
	case domain.PlatformInstagram:
		// Instagram requires cookies for authentication.
		if f.config.CookieFile != "" && fileExists(f.config.CookieFile) {
			args = append(args, "--cookies", f.config.CookieFile)
		}
		args = append(args, "--no-check-certificates")
	case domain.PlatformTikTok:
		args = append(args, "--no-check-certificates")
	}

	return append(args, url)
}

// collectItems enumerates the staged media files in lexical (= source)
// order, attaching metadata from yt-dlp's .info.json sidecars. The sidecars
// are adapter garbage and are removed before returning.
func (f *YTDLPFetcher) collectItems(stagingDir string, platform domain.PlatformKind) ([]domain.FetchedItem, error) {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return nil, &domain.ResourceError{Op: "read staging namespace", Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var items []domain.FetchedItem
	for _, name := range names {
		mediaType, ok := mediaTypeOf(name)
		if !ok {
			continue
		}

		path := filepath.Join(stagingDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, &domain.ResourceError{Op: "stat staged file", Err: err}
		}

		meta := f.readSidecarMetadata(path)
		meta.Platform = platform

		items = append(items, domain.FetchedItem{
			File: domain.StagedFile{
				Path:      path,
				SizeBytes: info.Size(),
				MediaType: mediaType,
				Index:     len(items),
			},
			Meta: meta,
		})
	}

	f.removeSidecars(stagingDir, names)
	return items, nil
}

// readSidecarMetadata parses the .info.json next to a media file. Missing or
// malformed sidecars just mean empty metadata.
func (f *YTDLPFetcher) readSidecarMetadata(mediaPath string) domain.MediaMetadata {
	sidecar := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".info.json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return domain.MediaMetadata{}
	}

	var info struct {
		Description string `json:"description"`
		Uploader    string `json:"uploader"`
		UploaderID  string `json:"uploader_id"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.MediaMetadata{}
	}

	handle := info.UploaderID
	if handle == "" {
		handle = info.Uploader
	}
	return domain.MediaMetadata{
		Caption:        info.Description,
		UploaderHandle: handle,
	}
}

func (f *YTDLPFetcher) removeSidecars(stagingDir string, names []string) {
	for _, name := range names {
		if strings.HasSuffix(name, ".json") {
			os.Remove(filepath.Join(stagingDir, name))
		}
	}
}

// classifyFailure maps a failed yt-dlp run onto the fetch error taxonomy,
// turning the tool's stderr into a message fit for users.
func (f *YTDLPFetcher) classifyFailure(platform domain.PlatformKind, result RunResult, err error) *domain.FetchError {
	if result.TimedOut {
		return domain.NewFetchError(domain.FetchTimeout, platform, "fetch timed out")
	}

	stderr := strings.ToLower(string(result.Stderr))
	switch {
	case strings.Contains(stderr, "private") || strings.Contains(stderr, "login"):
		return domain.NewFetchError(domain.FetchNotFound, platform, "this content is private or requires login")
	case strings.Contains(stderr, "404") || strings.Contains(stderr, "not found") || strings.Contains(stderr, "no longer available"):
		return domain.NewFetchError(domain.FetchNotFound, platform, "content not found, it may have been deleted")
	case strings.Contains(stderr, "live"):
		return domain.NewFetchError(domain.FetchUnsupported, platform, "live content is not downloadable")
	}

	detail := strings.TrimSpace(string(result.Stderr))
	if detail == "" {
		detail = err.Error()
	}
	// Cutting on a byte index can split a rune; drop the partial sequence.
	if len(detail) > 200 {
		detail = strings.ToValidUTF8(detail[:200], "")
	}
	return domain.NewFetchError(domain.FetchToolFailure, platform, detail)
}

// cleanStaging removes everything the adapter wrote. The directory itself
// belongs to the orchestrator and is left in place.
func (f *YTDLPFetcher) cleanStaging(stagingDir string) {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(stagingDir, entry.Name())); err != nil {
			f.logger.Warn("failed to clean staged file",
				zap.String("name", entry.Name()),
				zap.Error(err))
		}
	}
}

func mediaTypeOf(name string) (domain.MediaType, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case videoExtensions[ext]:
		return domain.MediaVideo, true
	case imageExtensions[ext]:
		return domain.MediaImage, true
	default:
		return "", false
	}
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ domain.Fetcher = (*YTDLPFetcher)(nil)

// String implements fmt.Stringer for debugging.
func (f *YTDLPFetcher) String() string {
	return fmt.Sprintf("yt-dlp fetcher (%s)", f.config.YTDLPBinary)
}
