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

import "github.com/prometheus/client_golang/prometheus"

// acquireTotal counts every Acquire call that the acquire script answers,
// labeled by semaphore name and outcome (granted or refused); calls that
// fail validation or script evaluation are not counted. It mirrors the package-level CounterVec
// shape teleport's own backend.Reporter uses to track operations per
// key (lib/backend/report_test.go in the retrieved teacher pack).
var acquireTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "redsem",
	Name:      "acquire_total",
	Help:      "Total Acquire calls, labeled by semaphore name and outcome.",
}, []string{"semaphore", "outcome"})

// heldGauge reports the permit count Census most recently observed for
// a given semaphore. It is a gauge, not a counter, because Census
// reports a point-in-time occupancy, not a monotonically increasing
// total.
var heldGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "redsem",
	Name:      "held_permits",
	Help:      "Permits currently held, as of the last Census call, by semaphore name.",
}, []string{"semaphore"})

func init() {
	prometheus.MustRegister(acquireTotal, heldGauge)
}
