package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Staging   StagingConfig   `mapstructure:"staging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	History   HistoryConfig   `mapstructure:"history"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StagingConfig controls where request namespaces and delivered files live.
// Each request gets its own directory under BaseDir named by the request ID;
// ready files are moved to CompletedDir before the namespace is removed.
type StagingConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	CompletedDir string `mapstructure:"completed_dir"`
}

// FetchConfig configures the external extraction tool
type FetchConfig struct {
	YTDLPBinary string        `mapstructure:"ytdlp_binary"`
	CookieFile  string        `mapstructure:"cookie_file"` // Instagram auth
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFilesize string        `mapstructure:"max_filesize"` // yt-dlp --max-filesize value
	Retries     int           `mapstructure:"retries"`      // transient-failure retries, default 0
}

// TranscodeConfig configures the external compression tool and its ladder
type TranscodeConfig struct {
	FFmpegBinary    string        `mapstructure:"ffmpeg_binary"`
	FFprobeBinary   string        `mapstructure:"ffprobe_binary"`
	Timeout         time.Duration `mapstructure:"timeout"` // per attempt
	MaxAttempts     int           `mapstructure:"max_attempts"`
	QualityLadder   []float64     `mapstructure:"quality_ladder"` // bitrate scale per rung
	MinVideoBitrate int           `mapstructure:"min_video_bitrate"`
	AudioBitrate    int           `mapstructure:"audio_bitrate"`
}

// LimitsConfig bounds resource usage
type LimitsConfig struct {
	SizeCeilingBytes  int64 `mapstructure:"size_ceiling_bytes"`
	PerRequestWorkers int   `mapstructure:"per_request_workers"` // K
	GlobalProcessCap  int   `mapstructure:"global_process_cap"`
}

// HistoryConfig contains request-history persistence configuration
type HistoryConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// EventsConfig configures the fire-and-forget completion event sink
type EventsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Staging: StagingConfig{
			BaseDir:      "$HOME/.mediagrab/staging",
			CompletedDir: "$HOME/.mediagrab/completed",
		},
		Fetch: FetchConfig{
			YTDLPBinary: "yt-dlp",
			CookieFile:  "",
			Timeout:     2 * time.Minute,
			MaxFilesize: "100M",
			Retries:     0,
		},
		Transcode: TranscodeConfig{
			FFmpegBinary:    "ffmpeg",
			FFprobeBinary:   "ffprobe",
			Timeout:         5 * time.Minute,
			MaxAttempts:     3,
			QualityLadder:   []float64{1.0, 0.75, 0.5},
			MinVideoBitrate: 500_000,
			AudioBitrate:    128_000,
		},
		Limits: LimitsConfig{
			SizeCeilingBytes:  24 * 1024 * 1024, // headroom under the 25 MiB upload limit
			PerRequestWorkers: 3,
			GlobalProcessCap:  4,
		},
		History: HistoryConfig{
			DatabasePath: "$HOME/.mediagrab/history.db",
		},
		Events: EventsConfig{
			Enabled:    false,
			WebhookURL: "",
			Timeout:    5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
