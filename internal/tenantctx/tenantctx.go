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

// Package tenantctx binds the active tenant and the request source to a
// context.Context, so concurrent requests and events each carry their own
// scope and nothing leaks between them.
package tenantctx

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cardinalhq/confstore/internal/logctx"
	"github.com/cardinalhq/confstore/internal/model"
)

type tenantKey struct{}

type sourceKey struct{}

// binding is stored by value; an empty tenant masks any outer binding.
type binding struct {
	tenant string
}

// WithTenant returns a context scoped to tenant. A blank tenant is the same
// as ClearTenant.
func WithTenant(ctx context.Context, tenant string) context.Context {
	tenant = strings.TrimSpace(tenant)
	ctx = context.WithValue(ctx, tenantKey{}, binding{tenant: tenant})
	if tenant == "" {
		return ctx
	}
	return logctx.With(ctx, slog.String("tenant", tenant))
}

// ClearTenant returns a context with no active tenant, hiding any tenant
// bound further out.
func ClearTenant(ctx context.Context) context.Context {
	return context.WithValue(ctx, tenantKey{}, binding{})
}

// FromContext returns the active tenant, if any.
func FromContext(ctx context.Context) (string, bool) {
	b, ok := ctx.Value(tenantKey{}).(binding)
	if !ok || b.tenant == "" {
		return "", false
	}
	return b.tenant, true
}

// TenantOr returns tenant when it is not blank, else the tenant bound to ctx,
// else "".
func TenantOr(ctx context.Context, tenant string) string {
	if t := strings.TrimSpace(tenant); t != "" {
		return t
	}
	t, _ := FromContext(ctx)
	return t
}

// WithSource records where the current mutation originated.
func WithSource(ctx context.Context, src model.RequestSource) context.Context {
	ctx = context.WithValue(ctx, sourceKey{}, src)
	return logctx.With(ctx, slog.String("source", src.String()))
}

// SourceFromContext returns the recorded request source, if any.
func SourceFromContext(ctx context.Context) (model.RequestSource, bool) {
	src, ok := ctx.Value(sourceKey{}).(model.RequestSource)
	return src, ok && src.Valid()
}

// Run calls fn with a context scoped to tenant. The scope ends when fn
// returns; the caller's ctx is never modified.
func Run(ctx context.Context, tenant string, fn func(ctx context.Context) error) error {
	return fn(WithTenant(ctx, tenant))
}
