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

package aliastree

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is one node of the alias tree document.
//
//	tenants:
//	  - key: root
//	    mergeAsYml: ["*.yml"]
//	    children:
//	      - key: acme
//	        mergeAsYml: ["*.yml"]
type Definition struct {
	Key        string       `yaml:"key"`
	MergeAsYml []string     `yaml:"mergeAsYml,omitempty"`
	Children   []Definition `yaml:"children,omitempty"`
}

type document struct {
	Tenants []Definition `yaml:"tenants"`
}

// Parse decodes an alias tree document. An empty document is an empty forest.
func Parse(data []byte) ([]Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tenant alias document: %w", err)
	}
	return doc.Tenants, nil
}

// ParseAndBuild parses a document and builds the tree from it.
func ParseAndBuild(data []byte) (*Tree, error) {
	defs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Build(defs)
}
