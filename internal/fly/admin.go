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
	"slices"

	"github.com/segmentio/kafka-go"
)

// PartitionLag is the committed position of a consumer group on one
// partition.
type PartitionLag struct {
	Partition       int
	CommittedOffset int64
	HighWaterMark   int64
	Lag             int64
}

// AdminClient provides Kafka administrative operations
type AdminClient struct {
	factory *Factory
}

// NewAdminClient creates a new Kafka admin client
func NewAdminClient(config *Config) *AdminClient {
	return &AdminClient{factory: NewFactory(config)}
}

// MissingTopics returns the topics the brokers do not know about.
func (a *AdminClient) MissingTopics(ctx context.Context, topics ...string) ([]string, error) {
	client, err := a.factory.CreateKafkaClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	resp, err := client.Metadata(ctx, &kafka.MetadataRequest{Topics: topics})
	if err != nil {
		return nil, fmt.Errorf("failed to get Kafka metadata: %w", err)
	}

	present := make(map[string]bool, len(resp.Topics))
	for _, t := range resp.Topics {
		if t.Error == nil && !t.Internal {
			present[t.Name] = true
		}
	}
	var missing []string
	for _, topic := range topics {
		if !present[topic] {
			missing = append(missing, topic)
		}
	}
	return missing, nil
}

// ConsumerGroupLag reports how far groupID is behind on every partition of
// topic, ordered by partition.
func (a *AdminClient) ConsumerGroupLag(ctx context.Context, topic, groupID string) ([]PartitionLag, error) {
	client, err := a.factory.CreateKafkaClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	meta, err := client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return nil, fmt.Errorf("failed to get Kafka metadata: %w", err)
	}
	var partitions []int
	for _, t := range meta.Topics {
		if t.Name != topic {
			continue
		}
		if t.Error != nil {
			return nil, fmt.Errorf("topic %s: %w", topic, t.Error)
		}
		for _, p := range t.Partitions {
			partitions = append(partitions, p.ID)
		}
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("topic %s not found", topic)
	}
	slices.Sort(partitions)

	offsetReqs := make([]kafka.OffsetRequest, len(partitions))
	for i, p := range partitions {
		offsetReqs[i] = kafka.LastOffsetOf(p)
	}
	offsets, err := client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{topic: offsetReqs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list offsets for %s: %w", topic, err)
	}
	highWater := make(map[int]int64, len(partitions))
	for _, po := range offsets.Topics[topic] {
		if po.Error != nil {
			return nil, fmt.Errorf("failed to get offset for %s:%d: %w", topic, po.Partition, po.Error)
		}
		highWater[po.Partition] = po.LastOffset
	}

	committed, err := client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: groupID,
		Topics:  map[string][]int{topic: partitions},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch committed offsets for group %s: %w", groupID, err)
	}
	committedAt := make(map[int]int64, len(partitions))
	for _, po := range committed.Topics[topic] {
		if po.Error == nil {
			committedAt[po.Partition] = po.CommittedOffset
		}
	}

	out := make([]PartitionLag, 0, len(partitions))
	for _, p := range partitions {
		c, ok := committedAt[p]
		if !ok {
			c = -1
		}
		out = append(out, partitionLag(p, c, highWater[p]))
	}
	return out, nil
}

// partitionLag treats a negative committed offset as nothing consumed yet.
func partitionLag(partition int, committed, highWater int64) PartitionLag {
	lag := highWater
	if committed >= 0 {
		lag = max(highWater-committed, 0)
	}
	return PartitionLag{
		Partition:       partition,
		CommittedOffset: committed,
		HighWaterMark:   highWater,
		Lag:             lag,
	}
}
