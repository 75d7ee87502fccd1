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
	"sync"
	"time"
)

// AutoRenewing wraps Scoped with a background worker that extends the
// acquired lease every cfg.RenewalInterval for as long as fn is
// running (spec section 4.D). The worker is owned entirely by this
// call: it starts after a successful acquisition, is signalled to stop
// the moment fn returns (by any path, including a panic unwinding
// through fn), and is always joined before AutoRenewing itself returns.
// There is no way for the worker to outlive this call, and nothing
// outside this function ever references it, so there is no "orphaned
// worker" state to guard against (spec section 9: the weak-reference
// idiom in the source this spec is derived from is defensive, not
// contractual, given that structure).
//
// The worker never synthesises a new lease: it only calls Extend on
// the holder-id this call already obtained. If Extend ever reports the
// lease lost, renewal stops silently (logged at debug) rather than
// retrying or raising into fn — by the time that happens, fn is
// running against a lease that may already belong to someone else, and
// it is fn's job, not the renewer's, to decide whether that matters.
func AutoRenewing(ctx context.Context, cfg AutoRenewConfig, fn func(ctx context.Context, holderID string) error) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return err
	}

	return Scoped(ctx, cfg.ScopedConfig, func(ctx context.Context, holderID string) error {
		stopCtx, stop := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			renewLoop(stopCtx, cfg, holderID)
		}()

		// stop is the single-writer signal; renewLoop is its single
		// reader. Cancelling rather than waiting for the next tick is
		// what makes shutdown prompt (spec section 9).
		defer func() {
			stop()
			wg.Wait()
		}()

		return fn(ctx, holderID)
	})
}

// renewLoop calls Extend every cfg.RenewalInterval until ctx is
// cancelled by AutoRenewing's stop signal or Extend reports the lease
// has already been lost. The first renewal happens no earlier than one
// full interval after acquisition (spec section 4.D), since Acquire
// already granted a full TTL up front.
func renewLoop(ctx context.Context, cfg AutoRenewConfig, holderID string) {
	ticker := cfg.Clock.NewTicker(cfg.RenewalInterval)
	defer ticker.Stop()

	ttlSeconds := int64(cfg.TTL / time.Second)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			held, err := Extend(ctx, cfg.Config, holderID, ttlSeconds)
			if err != nil {
				cfg.Logger.DebugContext(ctx, "failed to extend semaphore lease",
					"semaphore", cfg.K, "holder_id", holderID, "error", err)
				continue
			}
			if !held {
				cfg.Logger.DebugContext(ctx, "semaphore lease already lost, stopping renewal",
					"semaphore", cfg.K, "holder_id", holderID)
				return
			}
		}
	}
}
