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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigVersion_Undefined(t *testing.T) {
	assert.Equal(t, UndefinedCommit, UndefinedVersion().MainVersion())
	assert.True(t, UndefinedVersion().IsUndefined())

	var zero ConfigVersion
	assert.Equal(t, UndefinedCommit, zero.MainVersion())
	assert.True(t, zero.Equal(UndefinedVersion()))

	assert.Equal(t, UndefinedCommit, NewConfigVersion("  ").MainVersion())
}

func TestConfigVersion_FunctionalUpdates(t *testing.T) {
	base := NewConfigVersion("c1")
	withExt := base.WithExternalTenantVersion("shared", NewConfigVersion("e1"))

	_, ok := base.ExternalTenantVersion("shared")
	assert.False(t, ok, "receiver must not change")

	ev, ok := withExt.ExternalTenantVersion("shared")
	require.True(t, ok)
	assert.Equal(t, "e1", ev.MainVersion())

	bumped := withExt.WithMainVersion("c2")
	assert.Equal(t, "c1", withExt.MainVersion())
	assert.Equal(t, "c2", bumped.MainVersion())
	ev, ok = bumped.ExternalTenantVersion("shared")
	require.True(t, ok)
	assert.Equal(t, "e1", ev.MainVersion())

	updated := bumped.WithExternalTenantVersion("shared", NewConfigVersion("e2"))
	ev, _ = bumped.ExternalTenantVersion("shared")
	assert.Equal(t, "e1", ev.MainVersion())
	ev, _ = updated.ExternalTenantVersion("shared")
	assert.Equal(t, "e2", ev.MainVersion())
}

func TestConfigVersion_ExternalMapIsCopied(t *testing.T) {
	v := NewConfigVersion("c1").WithExternalTenantVersion("a", NewConfigVersion("x"))
	m := v.ExternalTenantVersions()
	m["b"] = NewConfigVersion("y")

	_, ok := v.ExternalTenantVersion("b")
	assert.False(t, ok)
}

func TestConfigVersion_Equal(t *testing.T) {
	a := NewConfigVersion("c1").WithExternalTenantVersion("x", NewConfigVersion("e1"))
	b := NewConfigVersion("c1").WithExternalTenantVersion("x", NewConfigVersion("e1"))
	c := NewConfigVersion("c1").WithExternalTenantVersion("x", NewConfigVersion("e2"))
	d := NewConfigVersion("c1")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.False(t, d.Equal(a))
	assert.Equal(t, "c1 [x=e1]", a.String())
}
