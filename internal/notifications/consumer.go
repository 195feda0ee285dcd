package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"mindline/internal/waterfall"
)

// MessageConsumer drains the outbound-message topic and delivers over SMS
type MessageConsumer interface {
	StartConsumers(ctx context.Context, numWorkers int) error
	Stop() error
}

// ConsumerConfig contains configuration for the consumer group
type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	SessionTimeout       time.Duration
	HeartbeatInterval    time.Duration
	MaxProcessingTime    time.Duration
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

// DefaultConsumerConfig returns default consumer configuration
func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "mindline-message-workers",
		Topics:               []string{"outbound-messages"},
		SessionTimeout:       30 * time.Second,
		HeartbeatInterval:    3 * time.Second,
		MaxProcessingTime:    time.Minute,
		OffsetOldest:         false,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}
}

// KafkaMessageConsumer delivers pipeline messages through the SMS client,
// recording a DeliveryRecord per message and parking repeat failures on the
// dead-letter topic.
type KafkaMessageConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	smsClient     SMSClient
	deliveries    DeliveryStore
	dlq           MessageProducer
	topics        []string
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewKafkaMessageConsumer creates a new Kafka message consumer
func NewKafkaMessageConsumer(config *ConsumerConfig, smsClient SMSClient, deliveries DeliveryStore, dlq MessageProducer) (MessageConsumer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Consumer.Group.Session.Timeout = config.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = config.HeartbeatInterval
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &KafkaMessageConsumer{
		consumerGroup: consumerGroup,
		config:        config,
		smsClient:     smsClient,
		deliveries:    deliveries,
		dlq:           dlq,
		topics:        config.Topics,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// StartConsumers starts the worker pool
func (kmc *KafkaMessageConsumer) StartConsumers(ctx context.Context, numWorkers int) error {
	log.Printf("Starting %d message consumer workers for topics: %v", numWorkers, kmc.topics)

	go kmc.handleErrors()

	for i := 0; i < numWorkers; i++ {
		kmc.wg.Add(1)
		go func(workerID int) {
			defer kmc.wg.Done()
			kmc.runWorker(ctx, workerID)
		}(i)
	}

	return nil
}

func (kmc *KafkaMessageConsumer) runWorker(ctx context.Context, workerID int) {
	handler := &messageGroupHandler{
		consumer: kmc,
		workerID: workerID,
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("Message worker %d shutting down", workerID)
			return
		case <-kmc.ctx.Done():
			return
		default:
			if err := kmc.consumerGroup.Consume(ctx, kmc.topics, handler); err != nil {
				log.Printf("Message worker %d error consuming: %v", workerID, err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (kmc *KafkaMessageConsumer) handleErrors() {
	for err := range kmc.consumerGroup.Errors() {
		log.Printf("Consumer group error: %v", err)
	}
}

// Stop stops the worker pool and closes the group
func (kmc *KafkaMessageConsumer) Stop() error {
	log.Println("Stopping message consumer...")
	kmc.cancel()
	kmc.wg.Wait()

	if err := kmc.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	log.Println("Message consumer stopped")
	return nil
}

type messageGroupHandler struct {
	consumer *KafkaMessageConsumer
	workerID int
}

func (h *messageGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Printf("Message worker %d: consumer group session started", h.workerID)
	return nil
}

func (h *messageGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Printf("Message worker %d: consumer group session ended", h.workerID)
	return nil
}

func (h *messageGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := h.processMessage(session.Context(), message); err != nil {
				log.Printf("Message worker %d: error processing message: %v", h.workerID, err)
			}
			// Mark regardless: a permanently failing message has been parked
			// on the DLQ and must not wedge the partition.
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *messageGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var outbound OutboundMessage
	if err := json.Unmarshal(message.Value, &outbound); err != nil {
		return fmt.Errorf("failed to unmarshal outbound message: %w", err)
	}

	record := &DeliveryRecord{
		Kind:      outbound.Kind,
		Phone:     outbound.Phone,
		Body:      outbound.Body,
		PatientID: outbound.PatientID,
		JobID:     outbound.JobID,
		OfferID:   outbound.OfferID,
		Status:    DeliveryStatusSending,
	}

	providerID, err := h.sendWithRetry(ctx, &outbound)
	if err != nil {
		record.MarkFailed(err)
		record.Attempts = h.consumer.config.MaxRetries
		if saveErr := h.consumer.deliveries.Create(ctx, record); saveErr != nil {
			log.Printf("Message worker %d: failed to save delivery record: %v", h.workerID, saveErr)
		}
		if dlqErr := h.consumer.dlq.PublishToDeadLetter(ctx, &outbound, err.Error()); dlqErr != nil {
			log.Printf("Message worker %d: failed to publish to DLQ: %v", h.workerID, dlqErr)
		}
		return err
	}

	record.MarkSent(providerID)
	if saveErr := h.consumer.deliveries.Create(ctx, record); saveErr != nil {
		log.Printf("Message worker %d: failed to save delivery record: %v", h.workerID, saveErr)
	}

	log.Printf("Message worker %d: %s message delivered to %s", h.workerID, outbound.Kind, outbound.Phone)
	return nil
}

func (h *messageGroupHandler) sendWithRetry(ctx context.Context, outbound *OutboundMessage) (string, error) {
	maxRetries := h.consumer.config.MaxRetries
	backoff := h.consumer.config.RetryBackoffDuration

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		providerID, err := h.consumer.smsClient.Send(ctx, outbound.Phone, outbound.Body)
		if err == nil {
			if attempt > 0 {
				log.Printf("Message worker %d: delivered after %d retries", h.workerID, attempt)
			}
			return providerID, nil
		}
		lastErr = err

		if errors.Is(err, waterfall.ErrPermanentDelivery) || attempt == maxRetries {
			break
		}

		// Exponential backoff
		delay := backoff * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("delivery failed after %d attempts: %w", maxRetries+1, lastErr)
}
