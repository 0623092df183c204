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


package config

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/cardinalhq/kafka-sync/kafkasync"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/confstore/internal/fly"
)

// Topic keys for semantic access to topics
const (
	// TopicChanges carries change events. Every node reads all of them.
	TopicChanges = "changes"
	// TopicUpdates carries change requests from other services. One node
	// handles each request.
	TopicUpdates = "updates"
)

// TopicSpec defines metadata for a Kafka topic
type TopicSpec struct {
	Key           string
	Name          string
	ConsumerGroup string
	// Broadcast topics are read by a consumer group per node.
	Broadcast bool
}

// TopicRegistry maps topic keys to prefixed names and consumer groups.
type TopicRegistry struct {
	prefix string
	specs  map[string]TopicSpec
}

func NewTopicRegistry(prefix string) *TopicRegistry {
	if prefix == "" {
		prefix = "confstore"
	}
	tr := &TopicRegistry{
		prefix: prefix,
		specs:  make(map[string]TopicSpec),
	}
	tr.registerTopic(TopicChanges, "config.changes", true)
	tr.registerTopic(TopicUpdates, "config.updates", false)
	return tr
}

func (tr *TopicRegistry) registerTopic(key, suffix string, broadcast bool) {
	tr.specs[key] = TopicSpec{
		Key:           key,
		Name:          fmt.Sprintf("%s.%s", tr.prefix, suffix),
		ConsumerGroup: fmt.Sprintf("%s.%s", tr.prefix, suffix),
		Broadcast:     broadcast,
	}
}

func (tr *TopicRegistry) spec(key string) TopicSpec {
	spec, exists := tr.specs[key]
	if !exists {
		panic(fmt.Sprintf("unknown topic key: %s", key))
	}
	return spec
}

// GetTopic returns the full topic name for the given key
func (tr *TopicRegistry) GetTopic(key string) string {
	return tr.spec(key).Name
}

// GetConsumerGroup returns the consumer group a node uses for key. Broadcast
// topics get a group of their own per instance.
func (tr *TopicRegistry) GetConsumerGroup(key, instanceID string) string {
	spec := tr.spec(key)
	if spec.Broadcast {
		return spec.ConsumerGroup + "." + instanceID
	}
	return spec.ConsumerGroup
}

// GetAllTopics returns every topic name in sorted order.
func (tr *TopicRegistry) GetAllTopics() []string {
	var topics []string
	for _, spec := range tr.specs {
		topics = append(topics, spec.Name)
	}
	slices.Sort(topics)
	return topics
}

// TopicSettings overrides the kafka-sync settings of a topic. Nil fields
// keep the default.
type TopicSettings struct {
	PartitionCount    *int              `mapstructure:"partition_count" yaml:"partitionCount"`
	ReplicationFactor *int              `mapstructure:"replication_factor" yaml:"replicationFactor"`
	Options           map[string]string `mapstructure:"options" yaml:"options"`
}

// TopicsConfig names the topics and how they are created.
type TopicsConfig struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// File is an optional YAML override merged over these settings.
	File      string                   `mapstructure:"file" yaml:"-"`
	Defaults  TopicSettings            `mapstructure:"defaults" yaml:"defaults"`
	Overrides map[string]TopicSettings `mapstructure:"overrides" yaml:"overrides"`
}

// LoadTopicsOverride reads a TopicsConfig from a YAML file.
func LoadTopicsOverride(file string) (TopicsConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return TopicsConfig{}, fmt.Errorf("reading topics override %s: %w", file, err)
	}
	var override TopicsConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return TopicsConfig{}, fmt.Errorf("parsing topics override %s: %w", file, err)
	}
	return override, nil
}

// MergeTopicsOverride lays override over base. The prefix never changes,
// since consumers and producers already agree on it.
func MergeTopicsOverride(base, override TopicsConfig) TopicsConfig {
	out := base
	out.Defaults = mergeSettings(base.Defaults, override.Defaults)
	out.Overrides = make(map[string]TopicSettings, len(base.Overrides)+len(override.Overrides))
	maps.Copy(out.Overrides, base.Overrides)
	for key, ts := range override.Overrides {
		out.Overrides[key] = mergeSettings(out.Overrides[key], ts)
	}
	return out
}

func mergeSettings(base, override TopicSettings) TopicSettings {
	out := base
	if override.PartitionCount != nil {
		out.PartitionCount = override.PartitionCount
	}
	if override.ReplicationFactor != nil {
		out.ReplicationFactor = override.ReplicationFactor
	}
	if len(override.Options) > 0 {
		out.Options = make(map[string]string, len(base.Options)+len(override.Options))
		maps.Copy(out.Options, base.Options)
		maps.Copy(out.Options, override.Options)
	}
	return out
}

// KafkaSyncConfig builds the kafka-sync document for every registered
// topic, starting from fly.DefaultTopicsConfig.
func (tr *TopicRegistry) KafkaSyncConfig(cfg TopicsConfig) *kafkasync.Config {
	keys := slices.Sorted(maps.Keys(tr.specs))
	topics := make([]kafkasync.Topic, 0, len(keys))
	for _, key := range keys {
		topic := kafkasync.Topic{Name: tr.specs[key].Name}
		if ts, ok := cfg.Overrides[key]; ok {
			if ts.PartitionCount != nil {
				topic.PartitionCount = *ts.PartitionCount
			}
			if ts.ReplicationFactor != nil {
				topic.ReplicationFactor = *ts.ReplicationFactor
			}
			if len(ts.Options) > 0 {
				topic.Config = maps.Clone(ts.Options)
			}
		}
		topics = append(topics, topic)
	}

	out := fly.DefaultTopicsConfig(topics)
	if cfg.Defaults.PartitionCount != nil {
		out.Defaults.PartitionCount = *cfg.Defaults.PartitionCount
	}
	if cfg.Defaults.ReplicationFactor != nil {
		out.Defaults.ReplicationFactor = *cfg.Defaults.ReplicationFactor
	}
	maps.Copy(out.Defaults.TopicConfig, cfg.Defaults.Options)
	return out
}

