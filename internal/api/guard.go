package api

import "sync"

// MonthGuard tags month loads so that a slow response for a month the
// user has already navigated away from can be detected and dropped.
// Concurrent loads for the same view are not cancelled or deduplicated;
// only the most recently begun load per key may be applied.
type MonthGuard struct {
	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
}

// LoadToken identifies one begun load.
type LoadToken struct {
	key string
	seq uint64
}

func NewMonthGuard() *MonthGuard {
	return &MonthGuard{latest: make(map[string]uint64)}
}

// Begin registers a new load for the given view key (e.g. "1/2024-02")
// and returns its token. Any previously issued token for the same key
// becomes stale.
func (g *MonthGuard) Begin(key string) LoadToken {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.latest[key] = g.seq
	return LoadToken{key: key, seq: g.seq}
}

// Current reports whether the token still identifies the latest load for
// its key. Callers discard responses whose token is no longer current.
func (g *MonthGuard) Current(t LoadToken) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latest[t.key] == t.seq
}
