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

// Package semaphore implements a counting semaphore whose state lives
// entirely in Redis, so that independent, non-communicating processes
// can coordinate on how many of them may concurrently hold a named
// resource. See the package's accompanying design documents for the
// full protocol; in short: holders mint a random 128-bit id, acquire a
// time-bounded lease under that id, optionally block on a signal list
// until a lease frees up, may extend their lease, and must release it.
// Crashed holders recover automatically once their lease's score falls
// behind the server clock and a later Acquire or Census purges it.
package semaphore

import (
	"context"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

// Acquire attempts to mint a new holder-id and insert it into the
// semaphore named cfg.K, subject to the capacity limit. It returns the
// empty string with a nil error when the semaphore is at capacity
// (spec section 4.A.1: "0 (refused)"); callers that need to block
// should use Scoped instead.
func Acquire(ctx context.Context, cfg Config, limit int, ttl int64) (holderID string, err error) {
	if err = cfg.CheckAndSetDefaults(); err != nil {
		return "", trace.Wrap(err)
	}
	if ttl < 0 {
		return "", trace.Wrap(errInvalidExpiry)
	}
	if limit <= 0 {
		return "", trace.BadParameter("limit must be positive")
	}

	ctx, end := startSpan(ctx, "Acquire", cfg.K)
	defer func() { end(err) }()

	id, genErr := uuid.NewRandom()
	if genErr != nil {
		err = trace.Wrap(genErr, "generating holder id")
		return "", err
	}
	holderID = id.String()

	result, evalErr := acquireScript.Run(ctx, cfg.Client, []string{cfg.K, cfg.SignalKey}, holderID, limit, ttl).Int()
	if evalErr != nil {
		err = trace.Wrap(evalErr, "evaluating acquire script for %q", cfg.K)
		return "", err
	}
	if result == 0 {
		acquireTotal.WithLabelValues(cfg.K, "refused").Inc()
		return "", nil
	}
	acquireTotal.WithLabelValues(cfg.K, "granted").Inc()
	return holderID, nil
}

// Extend refreshes holderID's lease to ttl seconds from now. It
// returns false, with no error, if holderID is not currently present
// in the semaphore (spec section 4.A.2); this is not treated as a
// failure, since extending a lease that was already reaped by another
// caller is a normal race, not a bug.
func Extend(ctx context.Context, cfg Config, holderID string, ttl int64) (held bool, err error) {
	if err = cfg.CheckAndSetDefaults(); err != nil {
		return false, trace.Wrap(err)
	}
	if ttl < 0 {
		return false, trace.Wrap(errInvalidExpiry)
	}

	ctx, end := startSpan(ctx, "Extend", cfg.K)
	defer func() { end(err) }()

	result, evalErr := extendScript.Run(ctx, cfg.Client, []string{cfg.K}, holderID, ttl).Int()
	if evalErr != nil {
		err = trace.Wrap(evalErr, "evaluating extend script for %q", cfg.K)
		return false, err
	}
	return result == 1, nil
}

// Release removes holderID from the semaphore and pushes one token
// onto the signal channel so a blocked waiter can retry. It is
// idempotent: releasing an id that is already absent (because it
// expired or was released previously) is a no-op, and Release never
// surfaces that as an error, per spec section 4.B.
func Release(ctx context.Context, cfg Config, holderID string) (err error) {
	if err = cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}

	ctx, end := startSpan(ctx, "Release", cfg.K)
	defer func() { end(err) }()

	if evalErr := releaseScript.Run(ctx, cfg.Client, []string{cfg.K, cfg.SignalKey}, holderID).Err(); evalErr != nil {
		err = trace.Wrap(evalErr, "evaluating release script for %q", cfg.K)
		return err
	}
	return nil
}

// Census purges expired holders from the semaphore and returns the
// number that remain, i.e. the number of permits currently consumed
// (spec section 4.A.4). It performs the same purge-and-refill step as
// Acquire, so callers can use it to drive cleanup of a semaphore
// nobody is actively trying to acquire.
func Census(ctx context.Context, cfg Config) (count int, err error) {
	if err = cfg.CheckAndSetDefaults(); err != nil {
		return 0, trace.Wrap(err)
	}

	ctx, end := startSpan(ctx, "Census", cfg.K)
	defer func() { end(err) }()

	count, evalErr := censusScript.Run(ctx, cfg.Client, []string{cfg.K, cfg.SignalKey}).Int()
	if evalErr != nil {
		err = trace.Wrap(evalErr, "evaluating census script for %q", cfg.K)
		return 0, err
	}
	heldGauge.WithLabelValues(cfg.K).Set(float64(count))
	return count, nil
}
