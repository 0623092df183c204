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

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedEvent is returned when an event cannot be decoded or fails
// validation. Consumers drop such events.
var ErrMalformedEvent = errors.New("malformed event")

// EventType is the kind of an inbound mutation event.
type EventType string

const (
	EventUpdateConfig EventType = "UPDATE_CONFIG"
	EventDeleteConfig EventType = "DELETE_CONFIG"
)

// ParseEventType rejects anything but the declared event types.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventUpdateConfig, EventDeleteConfig:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, s)
	}
}

// ChangeEvent is broadcast to every node after a commit.
type ChangeEvent struct {
	EventID string   `json:"eventId"`
	Commit  string   `json:"commit"`
	Paths   []string `json:"paths"`
}

// Validate checks the required fields.
func (e ChangeEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return fmt.Errorf("%w: missing eventId", ErrMalformedEvent)
	case strings.TrimSpace(e.Commit) == "":
		return fmt.Errorf("%w: missing commit", ErrMalformedEvent)
	case len(e.Paths) == 0:
		return fmt.Errorf("%w: no paths", ErrMalformedEvent)
	}
	for _, p := range e.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: blank path", ErrMalformedEvent)
		}
	}
	return nil
}

// ConfigurationUpdateMessage is one pending mutation. OldConfigHash is the
// caller's last known content hash, AbsentHash when the path is new.
type ConfigurationUpdateMessage struct {
	Path          string `json:"path"`
	Content       string `json:"content"`
	OldConfigHash string `json:"oldConfigHash"`
}

// MutationEvent is the inbound queue shape for a configuration change
// requested by another service.
type MutationEvent struct {
	EventID       string                      `json:"eventId"`
	SourceService string                      `json:"sourceService"`
	Tenant        string                      `json:"tenant"`
	EventType     EventType                   `json:"eventType"`
	Timestamp     time.Time                   `json:"timestamp"`
	Data          *ConfigurationUpdateMessage `json:"data"`
}

// Validate checks the required fields and the event type.
func (e MutationEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("%w: missing eventId", ErrMalformedEvent)
	}
	if _, err := ParseEventType(string(e.EventType)); err != nil {
		return err
	}
	if e.Data == nil {
		return fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}
	if strings.TrimSpace(e.Data.Path) == "" {
		return fmt.Errorf("%w: missing data.path", ErrMalformedEvent)
	}
	return nil
}

// DecodeChangeEvent parses and validates a change event. Unknown fields are
// a schema mismatch.
func DecodeChangeEvent(b []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := decodeStrict(b, &e); err != nil {
		return ChangeEvent{}, err
	}
	if err := e.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return e, nil
}

// DecodeMutationEvent parses and validates an inbound mutation event.
func DecodeMutationEvent(b []byte) (MutationEvent, error) {
	var e MutationEvent
	if err := decodeStrict(b, &e); err != nil {
		return MutationEvent{}, err
	}
	if err := e.Validate(); err != nil {
		return MutationEvent{}, err
	}
	return e, nil
}

func decodeStrict(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
