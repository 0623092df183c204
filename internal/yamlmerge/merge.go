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

// Package yamlmerge combines YAML documents structurally, later documents
// overriding earlier ones key by key.
package yamlmerge

import (
	"bytes"
	"fmt"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Merge deep-merges docs in order. Mappings merge recursively; scalars and
// sequences from a later document replace earlier ones. Blank documents are
// skipped. Every non-blank document must be a YAML mapping.
func Merge(docs ...string) (string, error) {
	merged := map[string]any{}
	for i, doc := range docs {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		var m map[string]any
		if err := yaml.Unmarshal([]byte(doc), &m); err != nil {
			return "", fmt.Errorf("document %d is not a YAML mapping: %w", i, err)
		}
		if err := mergo.Merge(&merged, m, mergo.WithOverride); err != nil {
			return "", fmt.Errorf("merging document %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(merged); err != nil {
		return "", fmt.Errorf("encoding merged document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
