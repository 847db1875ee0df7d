package infrastructure

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/internal/domain"
)

// WebhookSink posts completion events to a configured URL. Delivery is
// fire-and-forget: every call returns immediately and failures are only
// logged, never surfaced to the pipeline.
type WebhookSink struct {
	config *domain.EventsConfig
	client *http.Client
	logger *zap.Logger
}

// NewWebhookSink creates a webhook event sink.
func NewWebhookSink(config *domain.EventsConfig, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// RequestCompleted delivers one event asynchronously.
func (s *WebhookSink) RequestCompleted(event domain.RequestEvent) {
	if !s.config.Enabled || s.config.WebhookURL == "" {
		return
	}

	go s.deliver(event)
}

func (s *WebhookSink) deliver(event domain.RequestEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	resp, err := s.client.Post(s.config.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("request_id", event.RequestID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("event delivery rejected",
			zap.String("request_id", event.RequestID),
			zap.Int("status", resp.StatusCode))
		return
	}

	s.logger.Debug("event delivered",
		zap.String("request_id", event.RequestID),
		zap.String("state", string(event.State)))
}

var _ domain.EventSink = (*WebhookSink)(nil)
