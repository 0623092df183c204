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

package gitstore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// mutationLock serializes every operation that touches the working copy.
// There is exactly one per Store, and so one git mutation in flight per
// process.
type mutationLock struct {
	sem     *semaphore.Weighted
	maxWait time.Duration
}

func newMutationLock(maxWait time.Duration) *mutationLock {
	return &mutationLock{
		sem:     semaphore.NewWeighted(1),
		maxWait: maxWait,
	}
}

// acquire waits at most maxWait. The returned release func must be called
// exactly once, normally via defer.
func (l *mutationLock) acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		recordLockWait(ctx, time.Since(start), false)
		return nil, fmt.Errorf("%w: waiting for mutation lock: %v", ErrStoreUnavailable, err)
	}
	recordLockWait(ctx, time.Since(start), true)
	return func() { l.sem.Release(1) }, nil
}
