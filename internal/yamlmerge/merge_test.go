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

package yamlmerge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(s), &m))
	return m
}

func TestMerge_LaterOverridesEarlier(t *testing.T) {
	root := `
logging:
  level: info
  format: json
retries: 3
hosts: [a, b]
`
	child := `
logging:
  level: debug
hosts: [c]
timeout: 5s
`
	out, err := Merge(root, child)
	require.NoError(t, err)

	got := decode(t, out)
	assert.Equal(t, map[string]any{
		"logging": map[string]any{"level": "debug", "format": "json"},
		"retries": 3,
		"hosts":   []any{"c"},
		"timeout": "5s",
	}, got)

	reversed, err := Merge(child, root)
	require.NoError(t, err)
	assert.Equal(t, "info", decode(t, reversed)["logging"].(map[string]any)["level"])
}

func TestMerge_SkipsBlankDocuments(t *testing.T) {
	out, err := Merge("", "a: 1\n", "  \n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, decode(t, out))
}

func TestMerge_RejectsNonMapping(t *testing.T) {
	_, err := Merge("a: 1\n", "- just\n- a list\n")
	assert.Error(t, err)
}
