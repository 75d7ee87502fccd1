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
	"errors"

	"github.com/gravitational/trace"
)

// errInvalidExpiry is returned when a caller supplies a negative ttl to
// Acquire or Extend. The check runs client-side, before the store is
// contacted.
var errInvalidExpiry = trace.BadParameter("ttl must be non-negative")

// errInvalidArgument is returned by Scoped when blocking is requested
// with a non-positive timeout.
var errInvalidArgument = trace.BadParameter("timeout must be positive when blocking is true")

// IsInvalidExpiry reports whether err is the InvalidExpiry condition
// from spec section 7.
func IsInvalidExpiry(err error) bool {
	return errors.Is(err, errInvalidExpiry)
}

// IsInvalidArgument reports whether err is the InvalidArgument condition
// from spec section 7.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, errInvalidArgument)
}

// failedToAcquireError is a distinct type, rather than a sentinel, so
// that Scoped and AutoRenewing can name the resource in the message
// while IsFailedToAcquire still matches it via errors.As.
type failedToAcquireError struct {
	key string
}

func (e *failedToAcquireError) Error() string {
	return "failed to acquire semaphore " + e.key + ": no permit available within the bound"
}

func errFailedToAcquire(key string) error {
	return trace.Wrap(&failedToAcquireError{key: key})
}

// IsFailedToAcquire reports whether err is the FailedToAcquire condition
// raised by Scoped or AutoRenewing.
func IsFailedToAcquire(err error) bool {
	var target *failedToAcquireError
	return errors.As(err, &target)
}
