// Package events provides the fire-and-forget observability sink.
// Sink failures never affect core behavior.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives observability events from the resilience core.
type Sink interface {
	TrackEvent(name string, attrs map[string]any)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TrackEvent(string, map[string]any) {}

// LogSink writes events to slog at debug level.
type LogSink struct{}

func (LogSink) TrackEvent(name string, attrs map[string]any) {
	slog.Debug("event", "name", name, "attrs", attrs)
}

// Streamer appends an entry to a capped stream.
type Streamer interface {
	Stream(ctx context.Context, stream string, values map[string]any, maxLen int64) error
}

// StreamSink publishes events to a Redis stream. Errors are swallowed.
type StreamSink struct {
	streamer Streamer
	stream   string
	maxLen   int64
}

// NewStreamSink creates a sink writing to the named stream.
func NewStreamSink(streamer Streamer, stream string) *StreamSink {
	return &StreamSink{streamer: streamer, stream: stream, maxLen: 10000}
}

func (s *StreamSink) TrackEvent(name string, attrs map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	values := map[string]any{"event": name, "at": time.Now().Unix()}
	for k, v := range attrs {
		values[k] = v
	}

	if err := s.streamer.Stream(ctx, s.stream, values, s.maxLen); err != nil {
		slog.Debug("event sink write failed", "stream", s.stream, "error", err)
	}
}
