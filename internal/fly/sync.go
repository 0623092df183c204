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
	"fmt"
	"log/slog"
	"time"

	"github.com/cardinalhq/kafka-sync/kafkasync"
)

// TopicSyncer creates or inspects Kafka topics using kafka-sync
type TopicSyncer struct {
	factory *Factory
}

// NewTopicSyncer creates a new topic syncer
func NewTopicSyncer(factory *Factory) *TopicSyncer {
	return &TopicSyncer{
		factory: factory,
	}
}

// SyncTopics compares the brokers with topicsConfig. With fix set, missing
// topics are created and differing settings are changed; otherwise the
// differences are only reported.
func (ts *TopicSyncer) SyncTopics(ctx context.Context, topicsConfig *kafkasync.Config, fix bool) error {
	connConfig, err := ts.connectionConfig()
	if err != nil {
		return fmt.Errorf("failed to create connection config: %w", err)
	}

	syncer, err := kafkasync.NewSyncer(connConfig, topicsConfig)
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	mode := kafkasync.SyncModeInfo
	modeStr := "info"
	if fix {
		mode = kafkasync.SyncModeFix
		modeStr = "fix"
	}

	slog.Info("Starting Kafka topic synchronization",
		slog.String("mode", modeStr),
		slog.Int("topic_count", len(topicsConfig.Topics)))

	if err := syncer.Sync(ctx, mode); err != nil {
		return fmt.Errorf("failed to sync topics: %w", err)
	}

	slog.Info("Kafka topic synchronization completed")
	return nil
}

func (ts *TopicSyncer) connectionConfig() (kafkasync.ConnectionConfig, error) {
	cfg := ts.factory.GetConfig()
	connConfig := kafkasync.ConnectionConfig{
		BootstrapServers: cfg.Brokers,
		TLS:              ts.factory.tlsConfig(),
	}

	if cfg.SASLEnabled {
		mechanism, err := saslMechanism(cfg)
		if err != nil {
			return connConfig, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		connConfig.SASLMechanism = mechanism
	}

	return connConfig, nil
}

// DefaultTopicsConfig is the topic layout a cluster starts from. Change
// events only need to outlive a node restart; reconciliation covers the
// rest.
func DefaultTopicsConfig(topics []kafkasync.Topic) *kafkasync.Config {
	return &kafkasync.Config{
		Defaults: kafkasync.Defaults{
			PartitionCount:    8,
			ReplicationFactor: 3,
			TopicConfig: map[string]string{
				"retention.ms": "86400000", // 24 hours
			},
		},
		Topics:           topics,
		OperationTimeout: 2 * time.Minute,
	}
}
