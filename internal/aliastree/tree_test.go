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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
tenants:
  - key: root
    mergeAsYml: ["*.yml"]
    children:
      - key: A
        mergeAsYml: ["*.yml", "service/app.yaml"]
        children:
          - key: B
            mergeAsYml: ["*.yml"]
          - key: C
      - key: D
  - key: other
`

func mustTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := ParseAndBuild([]byte(sampleDoc))
	require.NoError(t, err)
	return tree
}

func TestGetAncestors(t *testing.T) {
	tree := mustTree(t)

	assert.Equal(t, []string{"A", "root"}, tree.AncestorKeys("B"))
	assert.Equal(t, []string{"root"}, tree.AncestorKeys("A"))
	assert.Empty(t, tree.GetAncestors("root"))
	assert.Empty(t, tree.GetAncestors("nobody"))

	chain := tree.GetAncestors("B")
	require.Len(t, chain, 2)
	assert.Equal(t, "A", chain[0].Key())
	assert.Equal(t, "root", chain[1].Key())

	p, ok := tree.Parent("C")
	assert.True(t, ok)
	assert.Equal(t, "A", p)
	_, ok = tree.Parent("root")
	assert.False(t, ok)
	assert.Equal(t, 6, tree.Len())
}

func TestBuild_DuplicateKey(t *testing.T) {
	_, err := Build([]Definition{
		{Key: "root", Children: []Definition{{Key: "X"}}},
		{Key: "other", Children: []Definition{{Key: "X"}}},
	})
	assert.ErrorIs(t, err, ErrDuplicateTenantAlias)

	_, err = Build([]Definition{
		{Key: "root", Children: []Definition{{Key: "X"}}},
		{Key: "other", Children: []Definition{{Key: "Y"}}},
	})
	assert.NoError(t, err)

	_, err = Build([]Definition{{Key: "root", Children: []Definition{{Key: "root"}}}})
	assert.ErrorIs(t, err, ErrDuplicateTenantAlias)
}

func TestBuild_BlankKey(t *testing.T) {
	_, err := Build([]Definition{{Key: "root", Children: []Definition{{Key: " "}}}})
	assert.Error(t, err)
}

func TestShouldMerge(t *testing.T) {
	tree := mustTree(t)
	a, ok := tree.Lookup("A")
	require.True(t, ok)

	assert.True(t, a.ShouldMerge("/service/logging.yml"))
	assert.True(t, a.ShouldMerge("/config/service/app.yaml"))
	assert.False(t, a.ShouldMerge("/config/myservice/app.yaml"))
	assert.False(t, a.ShouldMerge("/service/a.json"))

	c, _ := tree.Lookup("C")
	assert.False(t, c.ShouldMerge("/service/logging.yml"))
}

func TestMergeChain(t *testing.T) {
	tree := mustTree(t)

	assert.Equal(t, []string{"root", "A", "B"}, tree.MergeChain("B", "/x.yml"))
	// C declares no pattern, so it does not pull in A.
	assert.Equal(t, []string{"C"}, tree.MergeChain("C", "/x.yml"))
	// A merges app.yaml with root, but root does not pull in anything above it.
	assert.Equal(t, []string{"root", "A"}, tree.MergeChain("A", "/service/app.yaml"))
	// B is not eligible for app.yaml, so the chain stops at B.
	assert.Equal(t, []string{"B"}, tree.MergeChain("B", "/service/app.yaml"))
	assert.Equal(t, []string{"nobody"}, tree.MergeChain("nobody", "/x.yml"))
}

func TestWalk(t *testing.T) {
	tree := mustTree(t)

	var visited []string
	tree.Walk(func(a *Alias, depth int) bool {
		visited = append(visited, a.Key())
		return true
	})
	assert.Equal(t, []string{"root", "A", "B", "C", "D", "other"}, visited)

	visited = nil
	tree.Walk(func(a *Alias, depth int) bool {
		visited = append(visited, a.Key())
		return a.Key() != "A"
	})
	assert.Equal(t, []string{"root", "A", "D", "other"}, visited)
}

func TestParse_Empty(t *testing.T) {
	tree, err := ParseAndBuild(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, tree.Len())

	_, err = ParseAndBuild([]byte("tenants: [unclosed"))
	assert.Error(t, err)
}
