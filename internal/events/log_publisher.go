package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the service log
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a publisher backed by logger
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("sessionID", event.SessionID),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.Query != "" {
		fields = append(fields, zap.String("query", event.Query), zap.Uint64("generation", event.Generation))
	}
	if event.CoinID != "" {
		fields = append(fields, zap.String("coinID", event.CoinID))
	}

	switch event.Type {
	case SearchFailed, HistoryFailed:
		p.logger.Warn("Session event", append(fields, zap.String("error", event.Error))...)
	default:
		p.logger.Info("Session event", append(fields, zap.Int("count", event.Count))...)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
