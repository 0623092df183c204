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

package tenantctx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/confstore/internal/model"
)

func TestWithTenant(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)

	scoped := WithTenant(ctx, " ACME ")
	tenant, ok := FromContext(scoped)
	require.True(t, ok)
	assert.Equal(t, "ACME", tenant)

	_, ok = FromContext(ctx)
	assert.False(t, ok, "parent context must not see the binding")

	_, ok = FromContext(WithTenant(scoped, ""))
	assert.False(t, ok)
}

func TestClearTenant(t *testing.T) {
	ctx := WithTenant(context.Background(), "ACME")
	cleared := ClearTenant(ctx)

	_, ok := FromContext(cleared)
	assert.False(t, ok)

	tenant, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ACME", tenant)
}

func TestTenantOr(t *testing.T) {
	ctx := WithTenant(context.Background(), "ACME")
	assert.Equal(t, "ZED", TenantOr(ctx, "ZED"))
	assert.Equal(t, "ACME", TenantOr(ctx, " "))
	assert.Equal(t, "", TenantOr(context.Background(), ""))
}

func TestSource(t *testing.T) {
	_, ok := SourceFromContext(context.Background())
	assert.False(t, ok)

	src, ok := SourceFromContext(WithSource(context.Background(), model.SourceConfigQueue))
	require.True(t, ok)
	assert.Equal(t, model.SourceConfigQueue, src)
}

func TestRun(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), "ACME", func(ctx context.Context) error {
		tenant, ok := FromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, "ACME", tenant)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRun_ConcurrentScopesDoNotLeak(t *testing.T) {
	var wg sync.WaitGroup
	for _, tenant := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = Run(context.Background(), tenant, func(ctx context.Context) error {
					got, _ := FromContext(ctx)
					assert.Equal(t, tenant, got)
					return nil
				})
			}
		}()
	}
	wg.Wait()
}
