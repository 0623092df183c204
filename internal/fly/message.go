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
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one record on a confstore topic. Key carries the normalized
// tenant so that every event for a tenant lands on the same partition and
// keeps its order. Headers carry routing metadata such as the request
// source and the publishing node; the event itself is in Value.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ConsumedMessage is a Message together with the position it was read from.
// The position is what the consumer commits once the batch is handled.
type ConsumedMessage struct {
	Message
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// ToKafkaMessage encodes m for the producer. Headers are written in name
// order so equal messages encode identically.
func (m *Message) ToKafkaMessage() kafka.Message {
	names := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		names = append(names, k)
	}
	slices.Sort(names)

	headers := make([]kafka.Header, 0, len(names))
	for _, k := range names {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(m.Headers[k])})
	}
	return kafka.Message{
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
	}
}

// Header returns the named header, or "" when it is not set.
func (m *Message) Header(name string) string {
	return m.Headers[name]
}

// FromKafkaMessage decodes a fetched record. A repeated header keeps its
// last value.
func FromKafkaMessage(km kafka.Message) ConsumedMessage {
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	return ConsumedMessage{
		Message:   Message{Key: km.Key, Value: km.Value, Headers: headers},
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Timestamp: km.Time,
	}
}

// offsetMessage is the minimal record CommitMessages needs.
func (m ConsumedMessage) offsetMessage() kafka.Message {
	return kafka.Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
	}
}
