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

package configservice

import (
	"fmt"
	"path"
	"strings"

	"github.com/cardinalhq/confstore/internal/confcache"
)

// TenantsDir is the store directory holding one subdirectory per tenant.
const TenantsDir = "config/tenants"

// DefaultAliasTreePath is where the alias tree document is read from.
const DefaultAliasTreePath = "/" + TenantsDir + "/tenant-aliases.yml"

// StorePath maps a tenant-relative configuration path to its store path.
// Commons paths are repository paths, so StorePath is the inverse of Locate.
func StorePath(tenant, p string) string {
	tenant = confcache.NormalizeTenant(tenant)
	if tenant == confcache.CommonsTenant {
		return "/" + strings.TrimPrefix(p, "/")
	}
	return "/" + TenantsDir + "/" + tenant + p
}

// Locate maps a store path back to its tenant and tenant-relative path.
// Files outside a tenant directory belong to the commons tenant under their
// full path. There is no commons directory under TenantsDir: a file there
// is an ordinary commons file keyed by its full path.
func Locate(storePath string) (tenant, p string) {
	full := "/" + strings.TrimPrefix(storePath, "/")
	rest, ok := strings.CutPrefix(full, "/"+TenantsDir+"/")
	if ok {
		tenant, rel, found := strings.Cut(rest, "/")
		if found && tenant != "" && tenant != confcache.CommonsTenant && rel != "" {
			return tenant, "/" + rel
		}
	}
	return confcache.CommonsTenant, full
}

// checkOwned rejects a path whose store location belongs to another tenant,
// such as a commons path pointing into a tenant directory.
func checkOwned(tenant, p string) error {
	if owner, rel := Locate(StorePath(tenant, p)); owner != tenant || rel != p {
		return fmt.Errorf("%w: path %q of tenant %q is stored as %s %s", ErrInvalidArgument, p, tenant, owner, rel)
	}
	return nil
}

func cleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: blank path", ErrInvalidArgument)
	}
	clean := path.Clean("/" + strings.TrimSpace(p))
	if clean == "/" {
		return "", fmt.Errorf("%w: path %q names no file", ErrInvalidArgument, p)
	}
	return clean, nil
}

func cleanTenant(tenant string) (string, error) {
	tenant = confcache.NormalizeTenant(tenant)
	if strings.ContainsAny(tenant, "/\\") || tenant == "." || tenant == ".." {
		return "", fmt.Errorf("%w: tenant %q", ErrInvalidArgument, tenant)
	}
	return tenant, nil
}
