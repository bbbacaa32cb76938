package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-ai/internal/logging"
)

// mockWriter simulates the kafka-go Writer for unit testing.
type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &mockWriter{}
	p := NewKafkaPublisherWithWriter(w, "weather-ai.runs", logging.Discard())

	finished := time.Date(2024, 11, 20, 14, 0, 3, 0, time.UTC)
	event := Event{
		Stamp:         "2024-11-20_14-00-00",
		Location:      "Cracow",
		Latitude:      50.06,
		Longitude:     19.94,
		ReportStatus:  "ok",
		Report:        "Weather report for Cracow:",
		Description:   "Cold\nCloudy.",
		DescriptionOK: true,
		FinishedAt:    finished,
	}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "Cracow" {
		t.Errorf("Key = %q", msg.Key)
	}
	if !msg.Time.Equal(finished) {
		t.Errorf("Time = %v", msg.Time)
	}

	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Stamp != event.Stamp || got.Description != event.Description || !got.DescriptionOK {
		t.Errorf("event = %+v", got)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	p := NewKafkaPublisherWithWriter(w, "weather-ai.runs", logging.Discard())

	if err := p.Publish(context.Background(), Event{Location: "Cracow"}); err == nil {
		t.Error("expected error")
	}
}
