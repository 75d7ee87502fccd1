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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracer is package-scoped rather than threaded through Config: a
// tracer, unlike a logger, has no per-call-site default worth
// overriding, and teleport's own observability wrapper
// (api/observability/tracing) registers against the global
// TracerProvider the same way.
var tracer = otel.Tracer("github.com/lattice-run/redsem/lib/semaphore")

// startSpan opens a span named "semaphore.<op>" tagged with the
// semaphore's key, covering the store round-trip for a script
// evaluation or the blocking wait on the signal channel. The returned
// func records err, if any, and ends the span; callers defer it.
func startSpan(ctx context.Context, op, key string) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "semaphore."+op,
		oteltrace.WithAttributes(attribute.String("semaphore", key)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
