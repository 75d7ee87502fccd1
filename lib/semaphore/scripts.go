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

import "github.com/redis/go-redis/v9"

// acquireScript implements spec section 4.A.1. KEYS[1] is the holder
// set, KEYS[2] the signal channel. ARGV[1] is the holder-id, ARGV[2]
// the limit N, ARGV[3] the ttl in seconds.
//
// The purge step removes every holder whose expiry score is at or
// before the server's own clock, then the signal channel is cleared
// and refilled with exactly one token per purged holder (never
// appended: a waiter that already consumed a stale token from a prior
// purge must not see it counted twice). Only after that does the
// script compare the remaining count to the limit and, if there is
// room, insert the new holder.
var acquireScript = redis.NewScript(`
local now = tonumber(redis.call("TIME")[1])
local purged = redis.call("zremrangebyscore", KEYS[1], "-inf", now)

redis.call("del", KEYS[2])
for i = 1, purged do
    redis.call("lpush", KEYS[2], 1)
end
redis.call("pexpire", KEYS[2], 1000)

if redis.call("zcard", KEYS[1]) < tonumber(ARGV[2]) then
    redis.call("zadd", KEYS[1], now + tonumber(ARGV[3]), ARGV[1])
    return 1
end
return 0
`)

// extendScript implements spec section 4.A.2. KEYS[1] is the holder
// set. ARGV[1] is the holder-id, ARGV[2] the ttl in seconds.
//
// Membership is tested with zscore rather than zrank, per spec section
// 9's ratified choice: a single command serves both the presence check
// and, implicitly, confirms there is something to overwrite. Extend
// never purges — a refresh by a still-live holder must not disturb
// anyone else's lease.
var extendScript = redis.NewScript(`
local now = tonumber(redis.call("TIME")[1])
if redis.call("zscore", KEYS[1], ARGV[1]) then
    redis.call("zadd", KEYS[1], now + tonumber(ARGV[2]), ARGV[1])
    return 1
end
return 0
`)

// releaseScript implements spec section 4.A.3. KEYS[1] is the holder
// set, KEYS[2] the signal channel. ARGV[1] is the holder-id.
//
// Removal and the signal push happen together so that a waiter woken
// by the pushed token always finds the freed slot already reflected in
// the holder set's cardinality.
var releaseScript = redis.NewScript(`
if redis.call("zrem", KEYS[1], ARGV[1]) == 1 then
    redis.call("lpush", KEYS[2], 1)
    redis.call("pexpire", KEYS[2], 1000)
    return 1
end
return 0
`)

// censusScript implements spec section 4.A.4: the same purge-and-refill
// step as acquireScript, without the capacity check or insert.
var censusScript = redis.NewScript(`
local now = tonumber(redis.call("TIME")[1])
local purged = redis.call("zremrangebyscore", KEYS[1], "-inf", now)

redis.call("del", KEYS[2])
for i = 1, purged do
    redis.call("lpush", KEYS[2], 1)
end
redis.call("pexpire", KEYS[2], 1000)

return redis.call("zcard", KEYS[1])
`)
