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
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

// Producer writes keyed messages to Kafka. Messages with the same key land on
// the same partition and keep their relative order.
type Producer interface {
	Send(ctx context.Context, topic string, message Message) error
	BatchSend(ctx context.Context, topic string, messages []Message) error
	Close() error
}

// ProducerConfig contains configuration for the Kafka producer
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	Compression  kafka.Compression

	SASLMechanism sasl.Mechanism
	TLSConfig     *tls.Config

	ConnectionTimeout time.Duration
}

// kafkaProducer keeps one writer per topic.
type kafkaProducer struct {
	config    ProducerConfig
	transport *kafka.Transport
	writers   map[string]*kafka.Writer
	writersMu sync.RWMutex
}

// NewProducer creates a new Kafka producer
func NewProducer(config ProducerConfig) Producer {
	timeout := config.ConnectionTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &kafkaProducer{
		config: config,
		transport: &kafka.Transport{
			DialTimeout: timeout,
			SASL:        config.SASLMechanism,
			TLS:         config.TLSConfig,
		},
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *kafkaProducer) getWriter(topic string) *kafka.Writer {
	p.writersMu.RLock()
	w, ok := p.writers[topic]
	p.writersMu.RUnlock()
	if ok {
		return w
	}

	p.writersMu.Lock()
	defer p.writersMu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w = &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: p.config.RequiredAcks,
		Transport:    p.transport,
		Compression:  p.config.Compression,
	}
	p.writers[topic] = w
	return w
}

func (p *kafkaProducer) Send(ctx context.Context, topic string, message Message) error {
	return p.BatchSend(ctx, topic, []Message{message})
}

func (p *kafkaProducer) BatchSend(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	kmsgs := make([]kafka.Message, len(messages))
	for i := range messages {
		kmsgs[i] = messages[i].ToKafkaMessage()
	}

	recordPendingDelta(ctx, topic, int64(len(messages)))
	err := p.getWriter(topic).WriteMessages(ctx, kmsgs...)
	recordPendingDelta(ctx, topic, -int64(len(messages)))
	recordSentMetrics(ctx, topic, messages, err)
	if err != nil {
		return fmt.Errorf("writing %d messages to %s: %w", len(messages), topic, err)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	p.writersMu.Lock()
	defer p.writersMu.Unlock()

	var merr *multierror.Error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("closing writer for %s: %w", topic, err))
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return merr.ErrorOrNil()
}
