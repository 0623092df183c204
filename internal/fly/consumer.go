// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package fly

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

// MessageHandler processes consumed messages. A returned error stops the
// consumer without committing the batch.
type MessageHandler func(ctx context.Context, messages []ConsumedMessage) error

// Consumer reads a topic as a member of a consumer group.
type Consumer interface {
	// Consume runs until ctx is done or the handler fails.
	Consume(ctx context.Context, handler MessageHandler) error

	CommitMessages(ctx context.Context, messages ...ConsumedMessage) error

	Close() error
}

// ConsumerConfig contains configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MinBytes    int
	MaxBytes    int
	MaxWait     time.Duration
	BatchSize   int
	StartOffset int64
	AutoCommit  bool
	CommitBatch bool

	SASLMechanism sasl.Mechanism
	TLSConfig     *tls.Config

	ConnectionTimeout time.Duration
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaConsumer implements the Consumer interface using segmentio/kafka-go
type kafkaConsumer struct {
	config ConsumerConfig
	reader messageReader
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config ConsumerConfig) Consumer {
	timeout := config.ConnectionTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}

	dialer := &kafka.Dialer{
		Timeout:       timeout,
		DualStack:     true,
		SASLMechanism: config.SASLMechanism,
		TLS:           config.TLSConfig,
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       config.MinBytes,
		MaxBytes:       config.MaxBytes,
		MaxWait:        config.MaxWait,
		StartOffset:    config.StartOffset,
		Dialer:         dialer,
		CommitInterval: 0, // synchronous commits only
	}

	return &kafkaConsumer{
		config: config,
		reader: kafka.NewReader(readerConfig),
	}
}

func (c *kafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	slog.Debug("Starting Kafka consumer consumption loop",
		slog.String("topic", c.config.Topic),
		slog.String("consumerGroup", c.config.GroupID),
		slog.Int64("startOffset", c.config.StartOffset),
		slog.Int("batchSize", c.config.BatchSize),
		slog.Duration("maxWait", c.config.MaxWait))

	batch := make([]ConsumedMessage, 0, c.config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.processBatch(ctx, handler, batch)
		batch = batch[:0]
		return err
	}

	for {
		if ctx.Err() != nil {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to process final batch: %w", err)
			}
			return ctx.Err()
		}

		readCtx, cancel := context.WithTimeout(ctx, c.maxWait())
		msg, err := c.reader.FetchMessage(readCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) {
				if err := flush(); err != nil {
					return fmt.Errorf("failed to process batch: %w", err)
				}
				continue
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		recordConsumed(ctx, c.config.Topic, c.config.GroupID)
		batch = append(batch, FromKafkaMessage(msg))

		if len(batch) >= c.config.BatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
		}
	}
}

func (c *kafkaConsumer) maxWait() time.Duration {
	if c.config.MaxWait > 0 {
		return c.config.MaxWait
	}
	return 500 * time.Millisecond
}

func (c *kafkaConsumer) processBatch(ctx context.Context, handler MessageHandler, messages []ConsumedMessage) error {
	if err := handler(ctx, messages); err != nil {
		return fmt.Errorf("handler failed: %w", err)
	}
	if c.config.AutoCommit {
		// The loop may be shutting down; the commit still has to land.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout())
		defer cancel()
		if err := c.CommitMessages(commitCtx, messages...); err != nil {
			return fmt.Errorf("failed to commit messages: %w", err)
		}
	}
	return nil
}

func (c *kafkaConsumer) commitTimeout() time.Duration {
	if c.config.ConnectionTimeout > 0 {
		return c.config.ConnectionTimeout
	}
	return 10 * time.Second
}

func (c *kafkaConsumer) CommitMessages(ctx context.Context, messages ...ConsumedMessage) error {
	if len(messages) == 0 {
		return nil
	}

	if c.config.CommitBatch {
		// Only the highest offset per partition needs committing.
		highest := make(map[int]ConsumedMessage)
		for _, msg := range messages {
			existing, ok := highest[msg.Partition]
			if !ok || msg.Offset > existing.Offset {
				highest[msg.Partition] = msg
			}
		}
		kmsgs := make([]kafka.Message, 0, len(highest))
		for _, msg := range highest {
			kmsgs = append(kmsgs, msg.offsetMessage())
		}
		return c.reader.CommitMessages(ctx, kmsgs...)
	}

	kmsgs := make([]kafka.Message, len(messages))
	for i, msg := range messages {
		kmsgs[i] = msg.offsetMessage()
	}
	return c.reader.CommitMessages(ctx, kmsgs...)
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
