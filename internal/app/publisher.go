package app

import (
	"context"
	"log/slog"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// logPublisher stands in when no page is configured, so the pipeline can
// run end to end in development.
type logPublisher struct {
	logger *slog.Logger
}

var _ ports.Publisher = (*logPublisher)(nil)

func (p *logPublisher) Publish(_ context.Context, post domain.Post) (domain.PublishedRef, error) {
	p.logger.Info("dry-run publish", "text", post.Text, "image", post.ImageRef)
	return domain.PublishedRef{PostID: "dry-run", PostedAt: time.Now()}, nil
}
