package kafka

import (
	"encoding/json"
	"fmt"

	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"

	"github.com/IBM/sarama"
)

// Producer publishes domain events. Email and PDF side effects consume them
// asynchronously; a publish failure is logged by callers and never fails the
// originating request.
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer creates a synchronous Kafka producer.
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 3
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Successfully connected to Kafka")

	return &Producer{
		producer: producer,
		log:      log,
		topics:   &cfg.Topics,
	}, nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// publishEvent serializes and sends one event envelope.
func (p *Producer) publishEvent(topic string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID.String()),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
		"event_id":  event.ID,
		"type":      event.Type,
	}).Debug("Event published")

	return nil
}

// PublishOrderCreated announces a persisted order.
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	event, err := models.NewEvent(models.EventTypeOrderCreated, order)
	if err != nil {
		return err
	}
	return p.publishEvent(p.topics.Orders, *event)
}

// PublishPointsRedeemed announces a committed redemption.
func (p *Producer) PublishPointsRedeemed(redemption *models.Redemption) error {
	event, err := models.NewEvent(models.EventTypePointsRedeemed, redemption)
	if err != nil {
		return err
	}
	return p.publishEvent(p.topics.Loyalty, *event)
}

// PublishInvoiceGenerated announces a generated invoice, consumed by the PDF
// and email pipeline.
func (p *Producer) PublishInvoiceGenerated(invoice *models.Invoice) error {
	event, err := models.NewEvent(models.EventTypeInvoiceGenerated, invoice)
	if err != nil {
		return err
	}
	return p.publishEvent(p.topics.Invoices, *event)
}
