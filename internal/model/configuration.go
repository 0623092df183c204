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

// Package model holds the value types shared by the store, the cache and
// the change propagation layer.
package model

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Configuration is one named text file. Identity is the path; two
// configurations with the same path are the same entry even when their
// content differs.
type Configuration struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewConfiguration returns a configuration for path with the given content.
func NewConfiguration(path, content string) Configuration {
	return Configuration{Path: path, Content: content}
}

// Hash returns the content hash used for optimistic concurrency checks.
func (c Configuration) Hash() string {
	return ContentHash(c.Content)
}

// SamePath reports whether both configurations name the same file.
func (c Configuration) SamePath(other Configuration) bool {
	return c.Path == other.Path
}

// AbsentHash is the hash of a path that has no stored content.
const AbsentHash = ""

// ContentHash hashes content as lower-case hex xxhash64.
func ContentHash(content string) string {
	return strconv.FormatUint(xxhash.Sum64String(content), 16)
}
