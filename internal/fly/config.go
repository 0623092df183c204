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
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the Kafka connection and client settings.
type Config struct {
	// Enabled turns change propagation on. A node without Kafka still serves
	// its own writes and converges through periodic reconciliation.
	Enabled bool `mapstructure:"enabled"`

	Brokers []string `mapstructure:"brokers"`

	// SASL authentication
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // "SCRAM-SHA-256", "SCRAM-SHA-512" or "PLAIN"
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`

	// Producer settings
	ProducerBatchSize    int           `mapstructure:"producer_batch_size"`
	ProducerBatchTimeout time.Duration `mapstructure:"producer_batch_timeout"`
	ProducerCompression  string        `mapstructure:"producer_compression"`

	// Consumer settings
	ConsumerGroupPrefix string        `mapstructure:"consumer_group_prefix"`
	ConsumerBatchSize   int           `mapstructure:"consumer_batch_size"`
	ConsumerMaxWait     time.Duration `mapstructure:"consumer_max_wait"`
	ConsumerMinBytes    int           `mapstructure:"consumer_min_bytes"`
	ConsumerMaxBytes    int           `mapstructure:"consumer_max_bytes"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},

		SASLMechanism: "SCRAM-SHA-256",

		ConnectionTimeout: 10 * time.Second,

		// Change events are small and latency matters more than throughput.
		ProducerBatchSize:    1,
		ProducerBatchTimeout: 10 * time.Millisecond,
		ProducerCompression:  "snappy",

		ConsumerGroupPrefix: "confstore",
		ConsumerBatchSize:   10,
		ConsumerMaxWait:     500 * time.Millisecond,
		ConsumerMinBytes:    1,
		ConsumerMaxBytes:    10 * 1024 * 1024, // 10MB
	}
}

// Validate reports settings that would fail later when a client is built.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("kafka: no brokers configured"))
	}
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, errors.New("kafka: blank broker address"))
			break
		}
	}
	if c.SASLEnabled {
		if _, err := saslMechanism(c); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := compressionCodec(c.ProducerCompression); err != nil {
		errs = append(errs, err)
	}
	if c.ConsumerBatchSize < 1 {
		errs = append(errs, fmt.Errorf("kafka: consumer_batch_size must be positive, got %d", c.ConsumerBatchSize))
	}
	return errors.Join(errs...)
}

// GetConsumerGroup returns the consumer group name for the given service
func (c *Config) GetConsumerGroup(service string) string {
	return c.ConsumerGroupPrefix + "." + service
}
