package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-ai/internal/common"
)

// Event announces a finished run.
type Event struct {
	Stamp           string    `json:"stamp"`
	Location        string    `json:"location"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	ReportStatus    string    `json:"report_status"`
	Report          string    `json:"report"`
	Description     string    `json:"description,omitempty"`
	DescriptionOK   bool      `json:"description_ok"`
	ReportPath      string    `json:"report_path,omitempty"`
	DescriptionPath string    `json:"description_path,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

// MessageWriter is the part of kafka.Writer used here; tests swap it out.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes run events to a topic keyed by location, or by
// stamp when the location has no name.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return NewKafkaPublisherWithWriter(w, topic, logger)
}

func NewKafkaPublisherWithWriter(w MessageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(common.Coalesce(e.Location, e.Stamp)),
		Value: value,
		Time:  e.FinishedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Run event published", "topic", p.topic, "stamp", e.Stamp)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
