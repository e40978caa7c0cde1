package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/patch"
)

// IntentHandler applies game edits to a session
type IntentHandler interface {
	ApplyIntents(ctx context.Context, sessionID string, intents []patch.Intent) (patch.Report, error)
}

// sessionEdit is a decoded message: the intents aimed at one session
type sessionEdit struct {
	sessionID string
	intents   []patch.Intent
}

// Consumer consumes game edit intents from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       IntentHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler IntentHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	// Each Consume round gets its own ready channel; Start only waits for
	// the first one.
	ready := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		roundReady := ready
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    roundReady,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			roundReady = make(chan struct{})
		}
	}()

	// Wait until consumer is ready
	select {
	case <-ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// applyBatch hands the batch to the handler, merging runs of messages for
// the same session so each run renders and notifies once.
func (c *Consumer) applyBatch(ctx context.Context, batch []sessionEdit) {
	for _, edit := range mergeSessionRuns(batch) {
		report, err := c.handler.ApplyIntents(ctx, edit.sessionID, edit.intents)
		if err != nil {
			c.logger.Error("failed to apply intents",
				"session_id", edit.sessionID,
				"intents", len(edit.intents),
				"error", err,
			)
			continue
		}
		c.logger.Debug("applied intents",
			"session_id", edit.sessionID,
			"applied", len(report.Applied),
			"skipped", len(report.Skipped),
		)
	}
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan struct{}
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]sessionEdit, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		h.consumer.applyBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			// Process remaining batch before exit
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}

			edit, err := decodeMessage(message.Value)
			if err != nil {
				h.consumer.logger.Warn("invalid intent message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			batch = append(batch, edit)
			session.MarkMessage(message, "")

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// decodeMessage parses an intent message. A message is rejected whole when
// any of its intents fails to decode, so a partial edit is never applied.
func decodeMessage(value []byte) (sessionEdit, error) {
	var msg domain.IntentMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return sessionEdit{}, fmt.Errorf("decoding message: %w", err)
	}
	if len(msg.Intents) == 0 {
		return sessionEdit{}, fmt.Errorf("%w: message carries no intents", domain.ErrInvalidRequest)
	}

	intents := make([]patch.Intent, 0, len(msg.Intents))
	for i, raw := range msg.Intents {
		intent, err := patch.DecodeIntent(raw)
		if err != nil {
			return sessionEdit{}, fmt.Errorf("intent %d: %w", i, err)
		}
		intents = append(intents, intent)
	}

	return sessionEdit{sessionID: msg.SessionID, intents: intents}, nil
}

// mergeSessionRuns joins consecutive edits for the same session. Order
// across sessions is preserved.
func mergeSessionRuns(batch []sessionEdit) []sessionEdit {
	var merged []sessionEdit
	for _, edit := range batch {
		if n := len(merged); n > 0 && merged[n-1].sessionID == edit.sessionID {
			merged[n-1].intents = append(merged[n-1].intents, edit.intents...)
			continue
		}
		intents := make([]patch.Intent, len(edit.intents))
		copy(intents, edit.intents)
		merged = append(merged, sessionEdit{sessionID: edit.sessionID, intents: intents})
	}
	return merged
}

// EncodeMessage builds the wire form of an intent message for producers
func EncodeMessage(sessionID string, intents ...patch.Intent) ([]byte, error) {
	msg := domain.IntentMessage{SessionID: sessionID}
	for _, intent := range intents {
		raw, err := patch.EncodeIntent(intent)
		if err != nil {
			return nil, err
		}
		msg.Intents = append(msg.Intents, raw)
	}
	return json.Marshal(msg)
}
