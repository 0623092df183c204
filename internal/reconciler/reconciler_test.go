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

package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_RunsOnEveryTick(t *testing.T) {
	var calls atomic.Int64
	r := New(func(context.Context) error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond, nil)

	passes := make(chan error, 16)
	r.tick = func(err error) {
		select {
		case passes <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for range 2 {
		select {
		case err := <-passes:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("reconciler did not run")
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestReconciler_FailuresDoNotStopTheLoop(t *testing.T) {
	var calls atomic.Int64
	r := New(func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}, 10*time.Millisecond, nil)

	passes := make(chan error, 16)
	r.tick = func(err error) {
		select {
		case passes <- err:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	var got []error
	for range 2 {
		select {
		case err := <-passes:
			got = append(got, err)
		case <-time.After(5 * time.Second):
			t.Fatal("reconciler did not run")
		}
	}
	assert.Error(t, got[0])
	assert.NoError(t, got[1])
}

func TestReconciler_Disabled(t *testing.T) {
	var calls atomic.Int64
	r := New(func(context.Context) error {
		calls.Add(1)
		return nil
	}, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Zero(t, calls.Load())
}
