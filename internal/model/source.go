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

import "fmt"

// RequestSource records where a mutation originated.
type RequestSource int

const (
	SourceWebService RequestSource = iota + 1
	SourceSystemQueue
	SourceConfigQueue
)

func (s RequestSource) String() string {
	switch s {
	case SourceWebService:
		return "web-service"
	case SourceSystemQueue:
		return "system-queue"
	case SourceConfigQueue:
		return "config-queue"
	default:
		return fmt.Sprintf("RequestSource(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared sources.
func (s RequestSource) Valid() bool {
	return s >= SourceWebService && s <= SourceConfigQueue
}

// ParseRequestSource maps the wire name of a source back to its value.
func ParseRequestSource(name string) (RequestSource, error) {
	switch name {
	case "web-service":
		return SourceWebService, nil
	case "system-queue":
		return SourceSystemQueue, nil
	case "config-queue":
		return SourceConfigQueue, nil
	default:
		return 0, fmt.Errorf("unknown request source %q", name)
	}
}
