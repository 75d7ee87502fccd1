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
	"log/slog"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the lease lifetime the spec's public API defaults to
// when a caller doesn't care (spec section 4.B: "ttl (default 60s)").
// Go has no notion of an omitted-vs-zero duration, so callers that want
// the default pass this constant explicitly rather than leaving TTL at
// its zero value, which spec section 4.A.1 reserves for a real,
// distinct request (a lease that is immediately purge-eligible).
const DefaultTTL = 60 * time.Second

// defaultReleaseTimeout bounds the best-effort Release call issued from
// Scoped's cleanup path when the caller's own context has already been
// cancelled.
const defaultReleaseTimeout = time.Second

// Config holds the parameters shared by Acquire, Extend, Release and
// Census.
type Config struct {
	// Client is the Redis connection the primitives are evaluated
	// against. Required.
	Client redis.Cmdable
	// K is the semaphore's name; it is also the holder-set key.
	// Required.
	K string
	// SignalKey overrides the derived signal-channel key
	// ("signal_key:" + K) when set.
	SignalKey string
	// Logger receives debug-level diagnostics (failed releases, failed
	// renewals). Defaults to slog.Default().
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults
// for unset optional fields.
func (c *Config) CheckAndSetDefaults() error {
	if c.Client == nil {
		return trace.BadParameter("missing Client")
	}
	if c.K == "" {
		return trace.BadParameter("missing K")
	}
	if c.SignalKey == "" {
		c.SignalKey = "signal_key:" + c.K
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// ScopedConfig configures a bracketed, blocking acquisition (component
// C, spec section 4.C).
type ScopedConfig struct {
	Config
	// Limit is the semaphore's capacity N.
	Limit int
	// TTL is the lease lifetime granted on acquisition. Zero is a valid,
	// distinct request (spec 4.A.1): it inserts a lease that is already
	// purge-eligible on the next Acquire. Callers wanting the spec's
	// "default 60s" behavior pass DefaultTTL explicitly.
	TTL time.Duration
	// NonBlocking, when true, makes a refused acquire fail immediately
	// instead of waiting on the signal channel. The spec's default is
	// blocking=true; naming this field by its inverse lets the Go zero
	// value (false) land on that same default without CheckAndSetDefaults
	// having to guess whether a caller meant "blocking" or just never set
	// the field.
	NonBlocking bool
	// Timeout bounds the single blocking pop performed when NonBlocking
	// is false. Required to be positive in that case; checked by Scoped
	// itself (spec 4.C.1), not here, since the requirement depends on
	// NonBlocking rather than being a fixed invariant of the config.
	Timeout time.Duration
	// ReleaseTimeout bounds the best-effort Release call issued during
	// cleanup when the caller's context is already done. Defaults to 1s.
	ReleaseTimeout time.Duration
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *ScopedConfig) CheckAndSetDefaults() error {
	if err := c.Config.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if c.Limit <= 0 {
		return trace.BadParameter("missing Limit")
	}
	if c.TTL < 0 {
		return trace.Wrap(errInvalidExpiry)
	}
	if c.ReleaseTimeout == 0 {
		c.ReleaseTimeout = defaultReleaseTimeout
	}
	return nil
}

// AutoRenewConfig configures an auto-renewing scoped acquisition
// (component D, spec section 4.D). It wraps ScopedConfig with the
// renewal interval.
type AutoRenewConfig struct {
	ScopedConfig
	// RenewalInterval is how often the background worker calls Extend
	// with the original TTL. Required; the caller is responsible for
	// keeping it comfortably below TTL (spec 4.D: "a safe guideline is
	// interval <= ttl/3").
	RenewalInterval time.Duration
	// Clock abstracts the interval wait for tests. Defaults to the real
	// clock.
	Clock clockwork.Clock
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *AutoRenewConfig) CheckAndSetDefaults() error {
	if err := c.ScopedConfig.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if c.RenewalInterval <= 0 {
		return trace.BadParameter("missing RenewalInterval")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}
