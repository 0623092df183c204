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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestTopicRegistry(t *testing.T) {
	tr := NewTopicRegistry("")

	assert.Equal(t, "confstore.config.changes", tr.GetTopic(TopicChanges))
	assert.Equal(t, "confstore.config.updates", tr.GetTopic(TopicUpdates))
	assert.Equal(t, []string{"confstore.config.changes", "confstore.config.updates"}, tr.GetAllTopics())

	// Every node reads every change event; update requests are shared.
	assert.Equal(t, "confstore.config.changes.node-a", tr.GetConsumerGroup(TopicChanges, "node-a"))
	assert.NotEqual(t, tr.GetConsumerGroup(TopicChanges, "node-a"), tr.GetConsumerGroup(TopicChanges, "node-b"))
	assert.Equal(t, "confstore.config.updates", tr.GetConsumerGroup(TopicUpdates, "node-a"))

	assert.Panics(t, func() { tr.GetTopic("nope") })
}

func TestKafkaSyncConfig(t *testing.T) {
	tr := NewTopicRegistry("prod")
	cfg := TopicsConfig{
		Defaults: TopicSettings{
			ReplicationFactor: intPtr(2),
			Options:           map[string]string{"retention.ms": "3600000"},
		},
		Overrides: map[string]TopicSettings{
			TopicUpdates: {PartitionCount: intPtr(2), Options: map[string]string{"cleanup.policy": "delete"}},
		},
	}

	sc := tr.KafkaSyncConfig(cfg)
	assert.Equal(t, 8, sc.Defaults.PartitionCount)
	assert.Equal(t, 2, sc.Defaults.ReplicationFactor)
	assert.Equal(t, "3600000", sc.Defaults.TopicConfig["retention.ms"])

	require.Len(t, sc.Topics, 2)
	assert.Equal(t, "prod.config.changes", sc.Topics[0].Name)
	assert.Zero(t, sc.Topics[0].PartitionCount)
	assert.Equal(t, "prod.config.updates", sc.Topics[1].Name)
	assert.Equal(t, 2, sc.Topics[1].PartitionCount)
	assert.Equal(t, "delete", sc.Topics[1].Config["cleanup.policy"])
}

func TestTopicsOverrideFile(t *testing.T) {
	file := writeFile(t, "topics.yaml", `
prefix: ignored
defaults:
  partitionCount: 12
  options:
    retention.ms: "7200000"
overrides:
  changes:
    replicationFactor: 1
`)
	override, err := LoadTopicsOverride(file)
	require.NoError(t, err)

	base := TopicsConfig{
		Prefix:   "confstore",
		Defaults: TopicSettings{ReplicationFactor: intPtr(3), Options: map[string]string{"min.insync.replicas": "2"}},
	}
	merged := MergeTopicsOverride(base, override)

	assert.Equal(t, "confstore", merged.Prefix)
	assert.Equal(t, 12, *merged.Defaults.PartitionCount)
	assert.Equal(t, 3, *merged.Defaults.ReplicationFactor)
	assert.Equal(t, map[string]string{"min.insync.replicas": "2", "retention.ms": "7200000"}, merged.Defaults.Options)
	assert.Equal(t, 1, *merged.Overrides[TopicChanges].ReplicationFactor)

	_, err = LoadTopicsOverride(writeFile(t, "bad.yaml", "defaults: [1, 2"))
	assert.Error(t, err)
}
