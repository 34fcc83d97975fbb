package cache

import "time"

// entry wraps a cached value with its freshness stamp. An entry older than
// its TTL reads as absent; the caller falls through to the store.
type entry[T any] struct {
	value       T
	lastUpdated time.Time
	ttl         time.Duration
}

func (e *entry[T]) expired(now time.Time) bool {
	return now.Sub(e.lastUpdated) > e.ttl
}
