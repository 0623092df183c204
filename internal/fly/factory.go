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
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Factory creates Kafka producers and consumers with consistent configuration
type Factory struct {
	config *Config
}

// NewFactory creates a new factory with the given configuration
func NewFactory(cfg *Config) *Factory {
	return &Factory{
		config: cfg,
	}
}

// CreateProducer creates a new Kafka producer. Writes wait for every in-sync
// replica so an acknowledged change event survives a broker failover.
func (f *Factory) CreateProducer() (Producer, error) {
	compression, err := compressionCodec(f.config.ProducerCompression)
	if err != nil {
		return nil, err
	}

	cfg := ProducerConfig{
		Brokers:           f.config.Brokers,
		BatchSize:         f.config.ProducerBatchSize,
		BatchTimeout:      f.config.ProducerBatchTimeout,
		RequiredAcks:      kafka.RequireAll,
		Compression:       compression,
		ConnectionTimeout: f.config.ConnectionTimeout,
	}

	if f.config.SASLEnabled {
		mechanism, err := saslMechanism(f.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		cfg.SASLMechanism = mechanism
	}
	cfg.TLSConfig = f.tlsConfig()

	return NewProducer(cfg), nil
}

// CreateConsumer creates a new Kafka consumer for the specified topic.
// Offsets are committed after the handler returns.
func (f *Factory) CreateConsumer(topic string, groupID string, startOffset int64) (Consumer, error) {
	cfg := ConsumerConfig{
		Brokers:           f.config.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          f.config.ConsumerMinBytes,
		MaxBytes:          f.config.ConsumerMaxBytes,
		MaxWait:           f.config.ConsumerMaxWait,
		BatchSize:         f.config.ConsumerBatchSize,
		StartOffset:       startOffset,
		AutoCommit:        true,
		CommitBatch:       true,
		ConnectionTimeout: f.config.ConnectionTimeout,
	}

	if f.config.SASLEnabled {
		mechanism, err := saslMechanism(f.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		cfg.SASLMechanism = mechanism
	}
	cfg.TLSConfig = f.tlsConfig()

	return NewConsumer(cfg), nil
}

// CreateConsumerWithService creates a consumer with a service-based group ID
func (f *Factory) CreateConsumerWithService(topic string, service string, startOffset int64) (Consumer, error) {
	return f.CreateConsumer(topic, f.config.GetConsumerGroup(service), startOffset)
}

func (f *Factory) tlsConfig() *tls.Config {
	if !f.config.TLSEnabled {
		return nil
	}
	return &tls.Config{
		InsecureSkipVerify: f.config.TLSSkipVerify,
	}
}

func saslMechanism(cfg *Config) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
	}
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", name)
	}
}

// CreateTransport creates a kafka.Transport with the configured SASL and TLS settings
func (f *Factory) CreateTransport() (*kafka.Transport, error) {
	transport := &kafka.Transport{
		DialTimeout: f.dialTimeout(),
		TLS:         f.tlsConfig(),
	}
	if f.config.SASLEnabled {
		mechanism, err := saslMechanism(f.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}
	return transport, nil
}

// CreateKafkaClient creates a kafka.Client for metadata and offset requests
func (f *Factory) CreateKafkaClient() (*kafka.Client, error) {
	if len(f.config.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers configured")
	}
	transport, err := f.CreateTransport()
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &kafka.Client{
		Addr:      kafka.TCP(f.config.Brokers...),
		Transport: transport,
		Timeout:   f.dialTimeout(),
	}, nil
}

func (f *Factory) dialTimeout() time.Duration {
	if f.config.ConnectionTimeout > 0 {
		return f.config.ConnectionTimeout
	}
	return 10 * time.Second
}

// CreateTopicSyncer creates a topic syncer for managing Kafka topics
func (f *Factory) CreateTopicSyncer() *TopicSyncer {
	return NewTopicSyncer(f)
}

// GetConfig returns the underlying configuration
func (f *Factory) GetConfig() *Config {
	return f.config
}

// Manager tracks the clients a node creates so they can be closed together.
type Manager struct {
	factory   *Factory
	producers []Producer
	consumers []Consumer
}

// NewManager creates a new Kafka component manager
func NewManager(factory *Factory) *Manager {
	return &Manager{factory: factory}
}

// CreateProducer creates and tracks a producer
func (m *Manager) CreateProducer() (Producer, error) {
	p, err := m.factory.CreateProducer()
	if err != nil {
		return nil, err
	}
	m.producers = append(m.producers, p)
	return p, nil
}

// CreateConsumer creates and tracks a consumer
func (m *Manager) CreateConsumer(topic string, groupID string, startOffset int64) (Consumer, error) {
	c, err := m.factory.CreateConsumer(topic, groupID, startOffset)
	if err != nil {
		return nil, err
	}
	m.consumers = append(m.consumers, c)
	return c, nil
}

// Close closes all managed components and reports every failure.
func (m *Manager) Close() error {
	var merr *multierror.Error
	for _, p := range m.producers {
		if err := p.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("closing producer: %w", err))
		}
	}
	for _, c := range m.consumers {
		if err := c.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("closing consumer: %w", err))
		}
	}
	m.producers, m.consumers = nil, nil
	return merr.ErrorOrNil()
}
