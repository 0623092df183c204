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
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_CreateProducer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"scram 512", func(c *Config) {
			c.SASLEnabled, c.SASLMechanism, c.SASLUsername, c.SASLPassword = true, "SCRAM-SHA-512", "user", "pass"
		}, false},
		{"plain with tls", func(c *Config) {
			c.SASLEnabled, c.SASLMechanism, c.SASLUsername, c.SASLPassword = true, "PLAIN", "user", "pass"
			c.TLSEnabled, c.TLSSkipVerify = true, true
		}, false},
		{"no compression", func(c *Config) { c.ProducerCompression = "none" }, false},
		{"bad compression", func(c *Config) { c.ProducerCompression = "rar" }, true},
		{"bad sasl", func(c *Config) { c.SASLEnabled, c.SASLMechanism = true, "OAUTHBEARER" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			p, err := NewFactory(cfg).CreateProducer()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, p.Close())
		})
	}
}

func TestFactory_ProducerSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TLSEnabled = true
	cfg.ProducerCompression = "zstd"

	p, err := NewFactory(cfg).CreateProducer()
	require.NoError(t, err)
	kp := p.(*kafkaProducer)

	assert.Equal(t, kafka.RequireAll, kp.config.RequiredAcks)
	assert.Equal(t, kafka.Zstd, kp.config.Compression)
	assert.NotNil(t, kp.config.TLSConfig)
	assert.Nil(t, kp.config.SASLMechanism)
	assert.Equal(t, 10*time.Second, kp.transport.DialTimeout)

	w := kp.getWriter("topic-a")
	assert.Same(t, w, kp.getWriter("topic-a"))
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	require.NoError(t, p.Close())
}

func TestFactory_CreateConsumer(t *testing.T) {
	cfg := DefaultConfig()
	f := NewFactory(cfg)

	c, err := f.CreateConsumerWithService("confstore.config.updates", "config.updates", kafka.FirstOffset)
	require.NoError(t, err)
	defer c.Close()

	kc := c.(*kafkaConsumer)
	assert.Equal(t, "confstore.config.updates", kc.config.Topic)
	assert.Equal(t, "confstore.config.updates", kc.config.GroupID)
	assert.Equal(t, kafka.FirstOffset, kc.config.StartOffset)
	assert.True(t, kc.config.AutoCommit)
	assert.True(t, kc.config.CommitBatch)
	assert.Equal(t, cfg.ConsumerBatchSize, kc.config.BatchSize)

	cfg.SASLEnabled, cfg.SASLMechanism = true, "nope"
	_, err = f.CreateConsumer("t", "g", kafka.LastOffset)
	assert.Error(t, err)
}

func TestFactory_CreateKafkaClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brokers = []string{"a:9092", "b:9092"}
	cfg.ConnectionTimeout = 3 * time.Second

	client, err := NewFactory(cfg).CreateKafkaClient()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, client.Timeout)
	assert.NotNil(t, client.Addr)

	cfg.Brokers = nil
	_, err = NewFactory(cfg).CreateKafkaClient()
	assert.Error(t, err)
}

func TestTopicSyncer_ConnectionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brokers = []string{"k1:9092"}
	cfg.SASLEnabled, cfg.SASLMechanism = true, "SCRAM-SHA-256"
	cfg.TLSEnabled = true

	conn, err := NewFactory(cfg).CreateTopicSyncer().connectionConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092"}, conn.BootstrapServers)
	assert.NotNil(t, conn.SASLMechanism)
	assert.NotNil(t, conn.TLS)

	topics := DefaultTopicsConfig(nil)
	assert.Equal(t, 3, topics.Defaults.ReplicationFactor)
	assert.Equal(t, "86400000", topics.Defaults.TopicConfig["retention.ms"])
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

type fakeProducer struct {
	closeFunc
}

func (fakeProducer) Send(context.Context, string, Message) error        { return nil }
func (fakeProducer) BatchSend(context.Context, string, []Message) error { return nil }

type fakeConsumer struct {
	closeFunc
}

func (fakeConsumer) Consume(context.Context, MessageHandler) error              { return nil }
func (fakeConsumer) CommitMessages(context.Context, ...ConsumedMessage) error { return nil }

func TestManager_CloseReportsEveryFailure(t *testing.T) {
	closed := 0
	ok := closeFunc(func() error { closed++; return nil })
	bad := closeFunc(func() error { closed++; return errors.New("boom") })

	m := NewManager(NewFactory(DefaultConfig()))
	m.producers = []Producer{fakeProducer{bad}, fakeProducer{ok}}
	m.consumers = []Consumer{fakeConsumer{bad}}

	err := m.Close()
	require.Error(t, err)
	assert.Equal(t, 3, closed)
	assert.Contains(t, err.Error(), "closing producer")
	assert.Contains(t, err.Error(), "closing consumer")

	assert.NoError(t, m.Close())
}
