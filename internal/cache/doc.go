// Package cache defines the durable store behind the fetch-or-serve
// orchestrator. Every entry is one JSON document addressed by (group, key);
// the default backend lays them out as CacheRoot/<group>/<key>.json with an
// advisory <key>.json.lock marker next to it. Writes use temp file + rename so
// readers in other processes never observe a partial document. SQLite and
// in-memory backends implement the same Store contract for hosts without a
// shared filesystem and for tests.
package cache
