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
	"maps"
	"slices"
	"strings"
)

// UndefinedCommit marks a version that has no commit behind it, such as an
// empty repository. A ConfigVersion never carries an empty main version.
const UndefinedCommit = "undefined"

// ConfigVersion identifies the durable state a snapshot was built from: the
// main store commit plus the version of every external source.
//
// Values are immutable. The With* methods return new values and never touch
// the receiver's map.
type ConfigVersion struct {
	mainVersion string
	external    map[string]ConfigVersion
}

// UndefinedVersion returns the version of a store with no commits.
func UndefinedVersion() ConfigVersion {
	return ConfigVersion{mainVersion: UndefinedCommit}
}

// NewConfigVersion returns a version for the given commit id.
func NewConfigVersion(mainVersion string) ConfigVersion {
	return UndefinedVersion().WithMainVersion(mainVersion)
}

// MainVersion returns the main store commit id.
func (v ConfigVersion) MainVersion() string {
	if v.mainVersion == "" {
		return UndefinedCommit
	}
	return v.mainVersion
}

// IsUndefined reports whether the main version is the sentinel.
func (v ConfigVersion) IsUndefined() bool {
	return v.MainVersion() == UndefinedCommit
}

// WithMainVersion returns a copy with the main commit replaced.
func (v ConfigVersion) WithMainVersion(mainVersion string) ConfigVersion {
	if strings.TrimSpace(mainVersion) == "" {
		mainVersion = UndefinedCommit
	}
	return ConfigVersion{mainVersion: mainVersion, external: v.external}
}

// WithExternalTenantVersion returns a copy with the version of one external
// source replaced.
func (v ConfigVersion) WithExternalTenantVersion(name string, ev ConfigVersion) ConfigVersion {
	external := make(map[string]ConfigVersion, len(v.external)+1)
	maps.Copy(external, v.external)
	external[name] = ev
	return ConfigVersion{mainVersion: v.MainVersion(), external: external}
}

// ExternalTenantVersion returns the version recorded for an external source.
func (v ConfigVersion) ExternalTenantVersion(name string) (ConfigVersion, bool) {
	ev, ok := v.external[name]
	return ev, ok
}

// ExternalTenantVersions returns a copy of the external source versions.
func (v ConfigVersion) ExternalTenantVersions() map[string]ConfigVersion {
	out := make(map[string]ConfigVersion, len(v.external))
	maps.Copy(out, v.external)
	return out
}

// Equal compares main version and the full external map.
func (v ConfigVersion) Equal(other ConfigVersion) bool {
	if v.MainVersion() != other.MainVersion() {
		return false
	}
	if len(v.external) != len(other.external) {
		return false
	}
	for name, ev := range v.external {
		ov, ok := other.external[name]
		if !ok || !ev.Equal(ov) {
			return false
		}
	}
	return true
}

func (v ConfigVersion) String() string {
	if len(v.external) == 0 {
		return v.MainVersion()
	}
	names := slices.Sorted(maps.Keys(v.external))
	var b strings.Builder
	b.WriteString(v.MainVersion())
	b.WriteString(" [")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(v.external[name].String())
	}
	b.WriteString("]")
	return b.String()
}
