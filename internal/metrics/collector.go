// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpExtraction = "extraction"
	OpConflict   = "conflict_check"
	OpReflection = "reflection"
	OpAssembly   = "context_assembly"
	OpDBSearch   = "db_search"
	OpLLMCall    = "llm_call"
	OpEmbedding  = "embedding"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token totals, only populated for LLM operations.
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Name        string
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	TotalInputTokens  int64
	TotalOutputTokens int64
}

// Snapshot is the full collector state at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Operations    []OperationSnapshot
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones.
// Caller must hold the write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing plus token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.RecordTiming(op, duration)

	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.getOrCreate(op)
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
}

// Snapshot returns the current statistics, operations sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
	}
	for name, m := range c.ops {
		op := OperationSnapshot{
			Name:              name,
			Count:             m.Count,
			TotalTimeMs:       m.TotalTime.Milliseconds(),
			MinTimeMs:         m.MinTime.Milliseconds(),
			MaxTimeMs:         m.MaxTime.Milliseconds(),
			TotalInputTokens:  m.TotalInputTokens,
			TotalOutputTokens: m.TotalOutputTokens,
		}
		if m.Count > 0 {
			op.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		}
		snap.Operations = append(snap.Operations, op)
	}
	sort.Slice(snap.Operations, func(i, j int) bool {
		return snap.Operations[i].Name < snap.Operations[j].Name
	})
	return snap
}
