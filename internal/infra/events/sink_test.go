package events

import (
	"context"
	"errors"
	"testing"
)

type mockStreamer struct {
	entries []map[string]any
	stream  string
	maxLen  int64
	err     error
}

func (m *mockStreamer) Stream(ctx context.Context, stream string, values map[string]any, maxLen int64) error {
	m.stream = stream
	m.maxLen = maxLen
	m.entries = append(m.entries, values)
	return m.err
}

func TestStreamSink_TrackEvent(t *testing.T) {
	streamer := &mockStreamer{}
	sink := NewStreamSink(streamer, "sentinel:events")

	sink.TrackEvent("failure_reported", map[string]any{"service": "payments"})

	if len(streamer.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(streamer.entries))
	}
	entry := streamer.entries[0]
	if entry["event"] != "failure_reported" || entry["service"] != "payments" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if _, ok := entry["at"]; !ok {
		t.Error("expected timestamp attribute")
	}
	if streamer.stream != "sentinel:events" || streamer.maxLen != 10000 {
		t.Errorf("unexpected stream params: %s %d", streamer.stream, streamer.maxLen)
	}
}

func TestStreamSink_SwallowsErrors(t *testing.T) {
	streamer := &mockStreamer{err: errors.New("redis down")}
	sink := NewStreamSink(streamer, "sentinel:events")

	// Must not panic or propagate
	sink.TrackEvent("failure_reported", nil)
}
