/*
 * Teleport
 * Copyright (C) 2024  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package semaphore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScoped_AcquiresAndReleasesOnSuccess(t *testing.T) {
	cfg := newTestConfig(t, "sem")
	ctx := context.Background()

	scopedCfg := ScopedConfig{Config: cfg, Limit: 2, TTL: 5 * time.Second, NonBlocking: true}

	var gotID string
	err := Scoped(ctx, scopedCfg, func(_ context.Context, holderID string) error {
		gotID = holderID
		count, err := Census(ctx, cfg)
		require.NoError(t, err)
		require.Equal(t, 1, count)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, gotID)

	count, err := Census(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, count, "release must have run on scope exit")
}

func TestScoped_ReleasesEvenWhenBodyErrors(t *testing.T) {
	cfg := newTestConfig(t, "sem")
	ctx := context.Background()

	scopedCfg := ScopedConfig{Config: cfg, Limit: 1, TTL: 5 * time.Second, NonBlocking: true}
	bodyErr := errors.New("body failed")

	err := Scoped(ctx, scopedCfg, func(_ context.Context, _ string) error {
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)

	count, err := Census(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, count, "release must run even when the body returns an error")
}

func TestScoped_NonBlockingRefusesImmediatelyAtCapacity(t *testing.T) {
	cfg := newTestConfig(t, "sem")
	ctx := context.Background()

	_, err := Acquire(ctx, cfg, 1, 30)
	require.NoError(t, err)

	scopedCfg := ScopedConfig{Config: cfg, Limit: 1, TTL: 5 * time.Second, NonBlocking: true}

	start := time.Now()
	err = Scoped(ctx, scopedCfg, func(context.Context, string) error {
		t.Fatal("body must not run when acquisition is refused")
		return nil
	})
	elapsed := time.Since(start)

	require.True(t, IsFailedToAcquire(err))
	require.Less(t, elapsed, 500*time.Millisecond, "non-blocking refusal must not wait on the signal channel")
}

func TestScoped_BlockingTimesOutAfterAtLeastTheBound(t *testing.T) {
	cfg := newTestConfig(t, "sem")
	ctx := context.Background()

	_, err := Acquire(ctx, cfg, 1, 30)
	require.NoError(t, err)

	scopedCfg := ScopedConfig{Config: cfg, Limit: 1, TTL: 5 * time.Second, Timeout: time.Second}

	start := time.Now()
	err = Scoped(ctx, scopedCfg, func(context.Context, string) error {
		t.Fatal("body must not run when no permit becomes available")
		return nil
	})
	elapsed := time.Since(start)

	require.True(t, IsFailedToAcquire(err))
	require.GreaterOrEqual(t, elapsed, time.Second)
}

func TestScoped_InvalidArgumentRaisedBeforeStoreContact(t *testing.T) {
	cfg := newTestConfig(t, "sem")
	ctx := context.Background()

	_, err := Acquire(ctx, cfg, 1, 30)
	require.NoError(t, err)

	scopedCfg := ScopedConfig{Config: cfg, Limit: 1, TTL: 5 * time.Second, Timeout: 0}

	err = Scoped(ctx, scopedCfg, func(context.Context, string) error {
		t.Fatal("body must not run on invalid argument")
		return nil
	})
	require.True(t, IsInvalidArgument(err))

	count, err := Census(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, count, "the pre-existing holder must be untouched")
}

func TestScoped_WakesOnReleaseAndRetriesOnce(t *testing.T) {
	cfg := newTestConfig(t, "sem")
	ctx := context.Background()

	holdingID, err := Acquire(ctx, cfg, 1, 30)
	require.NoError(t, err)

	release := make(chan struct{})
	go func() {
		<-release
		require.NoError(t, Release(ctx, cfg, holdingID))
	}()

	scopedCfg := ScopedConfig{Config: cfg, Limit: 1, TTL: 5 * time.Second, Timeout: 5 * time.Second}

	close(release)
	var gotID string
	err = Scoped(ctx, scopedCfg, func(_ context.Context, holderID string) error {
		gotID = holderID
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, gotID)
	require.NotEqual(t, holdingID, gotID)
}
