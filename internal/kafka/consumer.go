package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sunsets-ordering/internal/config"
	"sunsets-ordering/internal/logger"
	"sunsets-ordering/internal/models"

	"github.com/IBM/sarama"
)

// EventHandler processes one consumed event.
type EventHandler func(ctx context.Context, event *models.Event) error

// Consumer wraps a consumer group and dispatches events to registered
// handlers by event type. It implements sarama.ConsumerGroupHandler.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	handlers map[models.EventType]EventHandler
	log      *logger.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer group over the configured topics.
func NewConsumer(cfg *config.KafkaConfig, log *logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		consumer: group,
		topics:   []string{cfg.Topics.Orders, cfg.Topics.Loyalty, cfg.Topics.Invoices},
		handlers: make(map[models.EventType]EventHandler),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// NewTestConsumer wires a consumer around an existing group. Used by tests.
func NewTestConsumer(group sarama.ConsumerGroup, log *logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		consumer: group,
		topics:   []string{"orders"},
		handlers: make(map[models.EventType]EventHandler),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler binds a handler to an event type. Call before Start.
func (c *Consumer) RegisterHandler(eventType models.EventType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

// Handler returns the handler registered for the event type, or nil.
func (c *Consumer) Handler(eventType models.EventType) EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[eventType]
}

// HandlerCount returns the number of registered handlers.
func (c *Consumer) HandlerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Start begins consuming in a background goroutine.
func (c *Consumer) Start() error {
	if c == nil || c.consumer == nil {
		return fmt.Errorf("consumer is not initialized")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumer.Consume(c.ctx, c.topics, c); err != nil {
				c.log.WithError(err).Error("Kafka consume loop error")
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	return nil
}

// Stop shuts the consume loop down and closes the group.
func (c *Consumer) Stop() error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.consumer != nil {
		return c.consumer.Close()
	}
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim drains one claim. Handler failures are logged and the offset
// is still marked so a poison message cannot wedge the partition.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := c.processMessage(msg); err != nil {
			c.log.WithError(err).WithField("topic", msg.Topic).Error("Failed to process message")
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// processMessage decodes one message and dispatches it. Unknown event types
// are skipped, not errors, so new producers can roll out first.
func (c *Consumer) processMessage(msg *sarama.ConsumerMessage) error {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event from topic %s: %w", msg.Topic, err)
	}

	c.mu.RLock()
	handler, ok := c.handlers[event.Type]
	c.mu.RUnlock()

	if !ok {
		c.log.WithFields(map[string]interface{}{
			"type":  event.Type,
			"topic": msg.Topic,
		}).Debug("No handler registered for event type")
		return nil
	}

	if err := handler(c.ctx, &event); err != nil {
		return fmt.Errorf("handler failed for event %s: %w", event.ID, err)
	}
	return nil
}
