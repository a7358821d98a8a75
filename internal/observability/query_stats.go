// Package observability tracks client-side usage frequency: which
// subscription queries and reducers get called the most, so an
// application can decide what's worth caching more aggressively or
// batching.
package observability

import (
	"sort"
	"sync"
	"time"
)

// UsageStats tracks subscription-query and reducer-call frequency for a
// running Client.
type UsageStats struct {
	mu          sync.RWMutex
	queryFreq   map[string]*CallStats
	reducerFreq map[string]*CallStats
	window      time.Duration
}

// CallStats holds frequency and recency for one query or reducer name.
type CallStats struct {
	Name      string
	Frequency int64
	LastSeen  time.Time
}

// NewUsageStats creates a usage tracker that prunes entries idle longer
// than window when Prune is called.
func NewUsageStats(window time.Duration) *UsageStats {
	return &UsageStats{
		queryFreq:   make(map[string]*CallStats),
		reducerFreq: make(map[string]*CallStats),
		window:      window,
	}
}

// RecordQuery records one subscription or one-off query issued for sql.
func (u *UsageStats) RecordQuery(sql string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record(u.queryFreq, sql)
}

// RecordReducer records one CallReducer invocation for name.
func (u *UsageStats) RecordReducer(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.record(u.reducerFreq, name)
}

func (u *UsageStats) record(freq map[string]*CallStats, name string) {
	stats, exists := freq[name]
	if !exists {
		stats = &CallStats{Name: name}
		freq[name] = stats
	}
	stats.Frequency++
	stats.LastSeen = time.Now()
}

// TopQueries returns the n most frequently issued queries, descending.
func (u *UsageStats) TopQueries(n int) []CallStats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return topN(u.queryFreq, n)
}

// TopReducers returns the n most frequently called reducers, descending.
func (u *UsageStats) TopReducers(n int) []CallStats {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return topN(u.reducerFreq, n)
}

func topN(freq map[string]*CallStats, n int) []CallStats {
	if n <= 0 || len(freq) == 0 {
		return []CallStats{}
	}
	stats := make([]CallStats, 0, len(freq))
	for _, s := range freq {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})
	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within window of now.
func (u *UsageStats) Prune() {
	u.mu.Lock()
	defer u.mu.Unlock()

	threshold := time.Now().Add(-u.window)
	for name, stats := range u.queryFreq {
		if stats.LastSeen.Before(threshold) {
			delete(u.queryFreq, name)
		}
	}
	for name, stats := range u.reducerFreq {
		if stats.LastSeen.Before(threshold) {
			delete(u.reducerFreq, name)
		}
	}
}
