package notifications

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// MessageProducer publishes asynchronous outbound messages to Kafka
type MessageProducer interface {
	PublishMessage(ctx context.Context, message *OutboundMessage) error
	PublishToDeadLetter(ctx context.Context, message *OutboundMessage, reason string) error
	Close() error
}

// ProducerConfig contains configuration for the Kafka message producer
type ProducerConfig struct {
	Brokers          []string
	MessageTopic     string
	DeadLetterTopic  string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
}

// DefaultProducerConfig returns a default producer configuration
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Brokers:          []string{"localhost:9092"},
		MessageTopic:     "outbound-messages",
		DeadLetterTopic:  "outbound-messages-dlq",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	}
}

// KafkaMessageProducer publishes outbound messages through a sync producer
type KafkaMessageProducer struct {
	producer sarama.SyncProducer
	config   *ProducerConfig
}

// NewKafkaMessageProducer creates a new Kafka message producer
func NewKafkaMessageProducer(config *ProducerConfig) (MessageProducer, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = config.Timeout
	saramaConfig.Producer.Idempotent = config.IdempotentWrites

	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps each phone number's messages ordered.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Printf("Kafka message producer created for topic %s", config.MessageTopic)
	return &KafkaMessageProducer{
		producer: producer,
		config:   config,
	}, nil
}

// PublishMessage publishes a single outbound message
func (kmp *KafkaMessageProducer) PublishMessage(ctx context.Context, message *OutboundMessage) error {
	return kmp.publish(message, kmp.config.MessageTopic, nil)
}

// PublishToDeadLetter parks a message that exhausted its delivery retries
func (kmp *KafkaMessageProducer) PublishToDeadLetter(ctx context.Context, message *OutboundMessage, reason string) error {
	extra := []sarama.RecordHeader{
		{Key: []byte("dlq_reason"), Value: []byte(reason)},
		{Key: []byte("dlq_at"), Value: []byte(time.Now().Format(time.RFC3339))},
	}
	return kmp.publish(message, kmp.config.DeadLetterTopic, extra)
}

func (kmp *KafkaMessageProducer) publish(message *OutboundMessage, topic string, extraHeaders []sarama.RecordHeader) error {
	messageBytes, err := message.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	headers := []sarama.RecordHeader{
		{Key: []byte("message_id"), Value: []byte(message.ID.String())},
		{Key: []byte("kind"), Value: []byte(message.Kind)},
		{Key: []byte("created_at"), Value: []byte(message.CreatedAt.Format(time.RFC3339))},
	}
	if message.JobID != nil {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("job_id"),
			Value: []byte(message.JobID.String()),
		})
	}
	headers = append(headers, extraHeaders...)

	kafkaMessage := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(message.GetPartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   headers,
		Timestamp: message.CreatedAt,
	}

	partition, offset, err := kmp.producer.SendMessage(kafkaMessage)
	if err != nil {
		return fmt.Errorf("failed to publish outbound message to Kafka: %w", err)
	}

	log.Printf("Outbound message published - Topic: %s, Partition: %d, Offset: %d, Kind: %s",
		topic, partition, offset, message.Kind)
	return nil
}

// Close closes the Kafka producer
func (kmp *KafkaMessageProducer) Close() error {
	if kmp.producer != nil {
		if err := kmp.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
		log.Printf("Kafka message producer closed")
	}
	return nil
}
