package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/pkg/kafka"
)

// EventPublisher defines the interface for publishing enrollment notifications.
// Publishing is fire-and-forget: a failed publish never rolls back the state
// transition that produced it.
type EventPublisher interface {
	// PublishRegistrationConfirmed publishes a registration confirmed notification
	PublishRegistrationConfirmed(ctx context.Context, reg *domain.Registration) error

	// PublishWaitlistOffered publishes a waitlist offer notification
	PublishWaitlistOffered(ctx context.Context, entry *domain.WaitlistEntry) error

	// PublishWaitlistExpired publishes an offer expiration notification
	PublishWaitlistExpired(ctx context.Context, entry *domain.WaitlistEntry) error

	// Close closes the event publisher
	Close() error
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    *kafka.Producer
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "enrollment-events"
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "enrollment-service"
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "enrollment-service-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

type notificationEnvelope struct {
	EventType string      `json:"event_type"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// PublishRegistrationConfirmed publishes a registration confirmed notification
func (p *KafkaEventPublisher) PublishRegistrationConfirmed(ctx context.Context, reg *domain.Registration) error {
	return p.publish(ctx, domain.EventRegistrationConfirmed, reg.SessionID, reg.UserID, reg)
}

// PublishWaitlistOffered publishes a waitlist offer notification
func (p *KafkaEventPublisher) PublishWaitlistOffered(ctx context.Context, entry *domain.WaitlistEntry) error {
	return p.publish(ctx, domain.EventWaitlistOffered, entry.SessionID, entry.UserID, entry)
}

// PublishWaitlistExpired publishes an offer expiration notification
func (p *KafkaEventPublisher) PublishWaitlistExpired(ctx context.Context, entry *domain.WaitlistEntry) error {
	return p.publish(ctx, domain.EventWaitlistExpired, entry.SessionID, entry.UserID, entry)
}

// Close closes the event publisher
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, sessionID, userID string, payload interface{}) error {
	value, err := json.Marshal(notificationEnvelope{
		EventType: eventType,
		SessionID: sessionID,
		UserID:    userID,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	headers := map[string]string{
		"event_type":   eventType,
		"source":       p.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(sessionID),
		Value:     value,
		Headers:   headers,
		Timestamp: time.Now(),
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", eventType, err)
	}
	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher for testing
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// PublishRegistrationConfirmed is a no-op
func (p *NoOpEventPublisher) PublishRegistrationConfirmed(ctx context.Context, reg *domain.Registration) error {
	return nil
}

// PublishWaitlistOffered is a no-op
func (p *NoOpEventPublisher) PublishWaitlistOffered(ctx context.Context, entry *domain.WaitlistEntry) error {
	return nil
}

// PublishWaitlistExpired is a no-op
func (p *NoOpEventPublisher) PublishWaitlistExpired(ctx context.Context, entry *domain.WaitlistEntry) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
