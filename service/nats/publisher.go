package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/whalealert/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing whale events to NATS.
type Publisher interface {
	// PublishWhale publishes a single whale event to JetStream.
	// The event is published to the subject "whales.{blockchain}".
	PublishWhale(ctx context.Context, event *WhaleEvent) error

	// PublishWhaleBatch publishes multiple whale events.
	// A failed event is logged and does not stop the rest of the batch.
	PublishWhaleBatch(ctx context.Context, events []*WhaleEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes whale events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const (
	// StreamName is the name of the JetStream stream for whale transactions.
	StreamName = "WHALES"

	// SubjectPrefix prefixes every whale subject.
	SubjectPrefix = "whales."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "whales.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// PublisherOption configures a JetStreamPublisher.
type PublisherOption func(*JetStreamPublisher)

// WithMetrics enables publish metrics.
func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *JetStreamPublisher) { p.metrics = m }
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger, opts ...PublisherOption) (*JetStreamPublisher, error) {
	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("whalealert-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}
	for _, opt := range opts {
		opt(publisher)
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Whale transactions accepted by the poller",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishWhale publishes a single whale event.
func (p *JetStreamPublisher) PublishWhale(ctx context.Context, event *WhaleEvent) error {
	subject := Subject(event.Blockchain)
	start := time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal whale event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish whale event: %w", err)
	}

	p.logger.Debug("published whale event",
		"subject", subject,
		"id", event.ID,
		"amount_usd", event.AmountUSD,
	)

	return nil
}

// PublishWhaleBatch publishes multiple whale events.
func (p *JetStreamPublisher) PublishWhaleBatch(ctx context.Context, events []*WhaleEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := p.PublishWhale(ctx, event); err != nil {
			p.logger.Error("failed to publish whale event in batch",
				"id", event.ID,
				"blockchain", event.Blockchain,
				"error", err,
			)
			continue
		}
	}

	p.logger.Debug("published whale batch",
		"count", len(events),
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
