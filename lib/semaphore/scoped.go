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
	"time"

	"github.com/gravitational/trace"
	"github.com/redis/go-redis/v9"
)

// Scoped brackets a single acquisition of the semaphore described by
// cfg: it blocks (subject to cfg.Timeout) until a holder-id is
// obtained or the bound is exhausted, invokes fn with that holder-id,
// and guarantees Release runs on every exit path, including a panic or
// context cancellation inside fn.
//
// At most one blocking wait and one retry are performed (spec section
// 4.C): "I will wait up to timeout and then give up" is the entire
// contract. A caller that wants to keep trying beyond that loops
// around Scoped itself; Scoped does not loop internally, to keep the
// timeout semantics predictable and to avoid a late waiter spinning on
// repeated wake-ups.
func Scoped(ctx context.Context, cfg ScopedConfig, fn func(ctx context.Context, holderID string) error) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if !cfg.NonBlocking && cfg.Timeout <= 0 {
		return trace.Wrap(errInvalidArgument)
	}

	holderID, err := acquireOrWait(ctx, cfg)
	if err != nil {
		return trace.Wrap(err)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ReleaseTimeout)
		defer cancel()
		if err := Release(releaseCtx, cfg.Config, holderID); err != nil {
			cfg.Logger.DebugContext(ctx, "failed to release semaphore",
				"semaphore", cfg.K, "holder_id", holderID, "error", err)
		}
	}()

	return fn(ctx, holderID)
}

// acquireOrWait performs the first Acquire, and, if refused and
// blocking is permitted, one bounded wait on the signal channel
// followed by exactly one retry (spec section 4.C, steps 2-4).
func acquireOrWait(ctx context.Context, cfg ScopedConfig) (string, error) {
	ttlSeconds := int64(cfg.TTL / time.Second)

	holderID, err := Acquire(ctx, cfg.Config, cfg.Limit, ttlSeconds)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if holderID != "" {
		return holderID, nil
	}
	if cfg.NonBlocking {
		return "", errFailedToAcquire(cfg.K)
	}

	popCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	spanCtx, end := startSpan(popCtx, "WaitForSignal", cfg.K)
	_, popErr := cfg.Client.BLPop(spanCtx, cfg.Timeout, cfg.SignalKey).Result()
	if popErr != nil && !isExpectedWaitOutcome(popErr) {
		// A genuine store or network failure, not ordinary backpressure:
		// propagate it as-is (spec section 7), don't reclassify it as a
		// refused acquisition.
		end(popErr)
		return "", trace.Wrap(popErr, "waiting on signal channel for %q", cfg.K)
	}
	end(nil)
	if popErr != nil {
		// The channel simply timed out empty, or our own wait was
		// cancelled before it fired (go-redis returns redis.Nil on a
		// BLPop that times out): the signal channel is advisory, so
		// either of these just means "give up", not "something broke".
		return "", errFailedToAcquire(cfg.K)
	}

	holderID, err = Acquire(ctx, cfg.Config, cfg.Limit, ttlSeconds)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if holderID == "" {
		return "", errFailedToAcquire(cfg.K)
	}
	return holderID, nil
}

// isExpectedWaitOutcome reports whether err from the BLPop wait is an
// ordinary "no token before the bound" outcome rather than a store or
// network failure: a real timeout (go-redis surfaces this as redis.Nil)
// or our own bounded context expiring/being cancelled underneath it.
func isExpectedWaitOutcome(err error) bool {
	return errors.Is(err, redis.Nil) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
