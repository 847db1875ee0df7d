package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/domain"
	"github.com/trippixn/mediagrab/internal/infrastructure"
)

// Pipeline bundles the wired-up components shared by the server and the CLI.
type Pipeline struct {
	Orchestrator *Orchestrator
	History      domain.HistoryRepository
	Config       *domain.Config
	Logger       *zap.Logger
}

// BuildPipeline wires the fetcher, transcoder, event sink, and history
// repository into an orchestrator, creating the staging directories on the
// way.
func BuildPipeline(config *domain.Config, log *zap.Logger) (*Pipeline, error) {
	for _, dir := range []string{config.Staging.BaseDir, config.Staging.CompletedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	history, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history repository: %w", err)
	}

	var events domain.EventSink
	if config.Events.Enabled {
		events = infrastructure.NewWebhookSink(&config.Events, log)
	}

	fetcher := infrastructure.NewYTDLPFetcher(&config.Fetch, log)
	transcoder := infrastructure.NewFFmpegTranscoder(&config.Transcode, log)

	return &Pipeline{
		Orchestrator: NewOrchestrator(fetcher, transcoder, events, history, config, log),
		History:      history,
		Config:       config,
		Logger:       log,
	}, nil
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	if p.History != nil {
		return p.History.Close()
	}
	return nil
}
