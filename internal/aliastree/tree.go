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

// Package aliastree models tenant inheritance: which tenants a tenant falls
// back to, nearest first, and which files are merged along that chain instead
// of being overridden.
//
// A Tree is built once from a Definition forest and is read-only afterwards.
// A changed definition produces a new Tree; trees are never patched.
package aliastree

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
)

// ErrDuplicateTenantAlias is returned by Build when a key appears more than
// once anywhere in the forest.
var ErrDuplicateTenantAlias = errors.New("duplicate tenant alias")

// Alias is one tenant node.
type Alias struct {
	key        string
	mergeAsYml []string
	children   []*Alias
}

func (a *Alias) Key() string {
	return a.key
}

// Children returns the ordered child nodes.
func (a *Alias) Children() []*Alias {
	return slices.Clone(a.children)
}

func (a *Alias) MergeAsYml() []string {
	return slices.Clone(a.mergeAsYml)
}

// ShouldMerge reports whether p is merge-eligible on this node. A pattern
// containing a slash matches as a path suffix; any other pattern is a glob
// matched against the file name.
func (a *Alias) ShouldMerge(p string) bool {
	base := path.Base(p)
	for _, pattern := range a.mergeAsYml {
		if strings.Contains(pattern, "/") {
			suffix := "/" + strings.TrimPrefix(pattern, "/")
			if strings.HasSuffix("/"+strings.TrimPrefix(p, "/"), suffix) {
				return true
			}
			continue
		}
		if ok, err := path.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Tree is an immutable tenant alias forest with precomputed indexes.
type Tree struct {
	roots     []*Alias
	nodes     map[string]*Alias
	parent    map[string]string
	ancestors map[string][]*Alias
}

// Empty returns a tree with no tenants.
func Empty() *Tree {
	return &Tree{
		nodes:     map[string]*Alias{},
		parent:    map[string]string{},
		ancestors: map[string][]*Alias{},
	}
}

// Build constructs a tree from defs. It fails without returning a partial
// tree if any key is blank or repeated.
func Build(defs []Definition) (*Tree, error) {
	t := Empty()
	for i := range defs {
		root, err := t.insert(defs[i], "")
		if err != nil {
			return nil, err
		}
		t.roots = append(t.roots, root)
	}

	for key := range t.nodes {
		var chain []*Alias
		for p, ok := t.parent[key]; ok; p, ok = t.parent[p] {
			chain = append(chain, t.nodes[p])
		}
		t.ancestors[key] = chain
	}
	return t, nil
}

func (t *Tree) insert(def Definition, parentKey string) (*Alias, error) {
	key := strings.TrimSpace(def.Key)
	if key == "" {
		return nil, fmt.Errorf("tenant alias under %q has a blank key", parentKey)
	}
	if _, exists := t.nodes[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTenantAlias, key)
	}

	node := &Alias{key: key, mergeAsYml: slices.Clone(def.MergeAsYml)}
	t.nodes[key] = node
	if parentKey != "" {
		t.parent[key] = parentKey
	}

	for i := range def.Children {
		child, err := t.insert(def.Children[i], key)
		if err != nil {
			return nil, err
		}
		node.children = append(node.children, child)
	}
	return node, nil
}

// Roots returns the top-level nodes in definition order.
func (t *Tree) Roots() []*Alias {
	return slices.Clone(t.roots)
}

// Len returns the number of tenants in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

func (t *Tree) Lookup(key string) (*Alias, bool) {
	a, ok := t.nodes[key]
	return a, ok
}

// Parent returns the key of the parent of key, if key has one.
func (t *Tree) Parent(key string) (string, bool) {
	p, ok := t.parent[key]
	return p, ok
}

// GetAncestors returns the ancestor chain of key, nearest first. Unknown keys
// and roots have no ancestors.
func (t *Tree) GetAncestors(key string) []*Alias {
	return slices.Clone(t.ancestors[key])
}

// AncestorKeys is GetAncestors reduced to keys.
func (t *Tree) AncestorKeys(key string) []string {
	chain := t.ancestors[key]
	keys := make([]string, len(chain))
	for i, a := range chain {
		keys[i] = a.key
	}
	return keys
}

// MergeChain returns the tenants whose copies of p are merged for a lookup on
// key, root first and key last. Starting at key, each node that is
// merge-eligible for p pulls in its parent. A result of length one means p is
// not merged for key.
func (t *Tree) MergeChain(key, p string) []string {
	chain := []string{key}
	for cur, ok := t.nodes[key]; ok && cur.ShouldMerge(p); {
		parentKey, hasParent := t.parent[cur.key]
		if !hasParent {
			break
		}
		chain = append(chain, parentKey)
		cur, ok = t.nodes[parentKey]
	}
	slices.Reverse(chain)
	return chain
}

// Walk visits every node depth first, in definition order. Returning false
// from fn skips that node's children; the walk continues with its siblings.
func (t *Tree) Walk(fn func(a *Alias, depth int) bool) {
	for _, root := range t.roots {
		walk(root, 0, fn)
	}
}

func walk(a *Alias, depth int, fn func(*Alias, int) bool) {
	if !fn(a, depth) {
		return
	}
	for _, c := range a.children {
		walk(c, depth+1, fn)
	}
}
