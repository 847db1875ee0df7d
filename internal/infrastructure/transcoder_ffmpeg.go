package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/domain"
)

// Duration to assume when ffprobe cannot read the container.
const fallbackDurationSeconds = 60.0

// Fraction of the ceiling to actually aim for, leaving room for container
// overhead the bitrate math does not account for.
const targetHeadroom = 0.95

// FFmpegTranscoder implements domain.Transcoder with a descending bitrate
// ladder. Each rung re-encodes the source at a fraction of the computed
// target bitrate; the first rung whose output fits the ceiling wins.
type FFmpegTranscoder struct {
	config *domain.TranscodeConfig
	runner Runner
	logger *zap.Logger
}

// NewFFmpegTranscoder creates a transcoder backed by ffmpeg and ffprobe.
func NewFFmpegTranscoder(config *domain.TranscodeConfig, logger *zap.Logger) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		config: config,
		runner: ExecRunner{},
		logger: logger,
	}
}

// Compress re-encodes one oversized video until it fits ceilingBytes or the
// ladder is exhausted. The source file is left untouched; a successful
// outcome points at a sibling output file.
func (t *FFmpegTranscoder) Compress(ctx context.Context, file domain.StagedFile, ceilingBytes int64) domain.CompressionOutcome {
	duration := t.probeDuration(ctx, file.Path)
	baseBitrate := t.targetBitrate(ceilingBytes, duration)
	outputPath := compressedPath(file.Path)

	attempts := t.config.MaxAttempts
	if attempts > len(t.config.QualityLadder) {
		attempts = len(t.config.QualityLadder)
	}

	for attempt := 0; attempt < attempts; attempt++ {
		bitrate := int(float64(baseBitrate) * t.config.QualityLadder[attempt])
		if bitrate < t.config.MinVideoBitrate {
			bitrate = t.config.MinVideoBitrate
		}
		lastRung := attempt == attempts-1

		t.logger.Debug("compression attempt",
			zap.String("path", file.Path),
			zap.Int("attempt", attempt+1),
			zap.Int("video_bitrate", bitrate))

		result, err := t.runner.Run(ctx, t.encodeCommand(file.Path, outputPath, bitrate))
		if err != nil {
			// A failed invocation consumes its rung; only the final rung
			// turns it into the outcome.
			os.Remove(outputPath)
			reason, detail := domain.ReasonToolFailure, truncateStderr(result.Stderr, err)
			if result.TimedOut {
				reason, detail = domain.ReasonTimeout, "compression timed out"
			}
			if lastRung {
				return domain.CompressionFailed(reason, detail)
			}
			t.logger.Warn("encode attempt failed, descending to next rung",
				zap.String("path", file.Path),
				zap.Int("attempt", attempt+1),
				zap.String("reason", string(reason)))
			continue
		}

		info, err := os.Stat(outputPath)
		if err != nil {
			if lastRung {
				return domain.CompressionFailed(domain.ReasonToolFailure, "encoder produced no output")
			}
			continue
		}

		if info.Size() <= ceilingBytes {
			return domain.Compressed(outputPath, info.Size(), attempt+1)
		}

		t.logger.Debug("attempt still over ceiling",
			zap.String("path", file.Path),
			zap.Int("attempt", attempt+1),
			zap.Int64("output_bytes", info.Size()),
			zap.Int64("ceiling_bytes", ceilingBytes))

		// Below the bitrate floor there is nothing left to trade away.
		if bitrate == t.config.MinVideoBitrate {
			break
		}
	}

	os.Remove(outputPath)
	return domain.CompressionFailed(domain.ReasonAllAttemptsExceedCeiling, "")
}

// probeDuration reads the container duration via ffprobe. Unreadable input
// falls back to a conservative default rather than failing the file.
func (t *FFmpegTranscoder) probeDuration(ctx context.Context, path string) float64 {
	cmd := Command{
		Binary: t.config.FFprobeBinary,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "json",
			path,
		},
		Timeout: t.config.Timeout,
	}

	result, err := t.runner.Run(ctx, cmd)
	if err != nil {
		t.logger.Warn("duration probe failed, using fallback",
			zap.String("path", path),
			zap.Error(err))
		return fallbackDurationSeconds
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(result.Stdout, &probe); err != nil {
		return fallbackDurationSeconds
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return fallbackDurationSeconds
	}
	return duration
}

// targetBitrate computes the video bitrate (bits/sec) that fills the ceiling
// over the clip duration, minus the audio track's share.
func (t *FFmpegTranscoder) targetBitrate(ceilingBytes int64, duration float64) int {
	total := float64(ceilingBytes) * 8 * targetHeadroom / duration
	video := int(total) - t.config.AudioBitrate
	if video < t.config.MinVideoBitrate {
		return t.config.MinVideoBitrate
	}
	return video
}

func (t *FFmpegTranscoder) encodeCommand(input, output string, videoBitrate int) Command {
	rate := strconv.Itoa(videoBitrate)
	maxrate := strconv.Itoa(videoBitrate + videoBitrate/2)
	bufsize := strconv.Itoa(videoBitrate * 2)

	return Command{
		Binary: t.config.FFmpegBinary,
		Args: []string{
			"-y",
			"-i", input,
			"-c:v", "libx264",
			"-preset", "fast",
			"-b:v", rate,
			"-maxrate", maxrate,
			"-bufsize", bufsize,
			"-c:a", "aac",
			"-b:a", strconv.Itoa(t.config.AudioBitrate),
			"-movflags", "+faststart",
			output,
		},
		Timeout: t.config.Timeout,
	}
}

// compressedPath derives the output path next to the input. Output is always
// mp4 regardless of the source container.
func compressedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_compressed.mp4"
}

func truncateStderr(stderr []byte, err error) string {
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = err.Error()
	}
	// ffmpeg stderr includes the full build banner; keep the tail where the
	// actual error lives. The cut can land mid-rune, so drop any partial
	// sequence at the boundary.
	if len(detail) > 200 {
		detail = strings.ToValidUTF8(detail[len(detail)-200:], "")
	}
	return detail
}

var _ domain.Transcoder = (*FFmpegTranscoder)(nil)

// String implements fmt.Stringer for debugging.
func (t *FFmpegTranscoder) String() string {
	return fmt.Sprintf("ffmpeg transcoder (%s)", t.config.FFmpegBinary)
}
