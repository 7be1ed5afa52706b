package agent

import (
	"sync"
	"time"
)

// stats accumulates process-wide counters. Guarded by its own mutex so
// recording never contends with request processing.
type stats struct {
	mu sync.Mutex

	messagesProcessed int64
	totalExecution    time.Duration
	toolsExecuted     int64
	perInterface      map[string]int64
	errorCount        int64
	startTime         time.Time
}

func newStats() stats {
	return stats{
		perInterface: make(map[string]int64),
		startTime:    time.Now(),
	}
}

func (s *stats) record(iface string, elapsed time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failed {
		s.errorCount++
		return
	}
	s.messagesProcessed++
	s.totalExecution += elapsed
	s.perInterface[iface]++
}

func (s *stats) recordTool() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolsExecuted++
}

// Stats is the exported snapshot of the agent's counters.
type Stats struct {
	MessagesProcessed int64            `json:"messages_processed"`
	ToolsExecuted     int64            `json:"tools_executed"`
	ErrorCount        int64            `json:"error_count"`
	PerInterface      map[string]int64 `json:"per_interface"`
	UptimeSeconds     int64            `json:"uptime_seconds"`
	AvgLatencyMS      int64            `json:"avg_latency_ms"`
}

// Stats returns a snapshot with derived uptime and average latency.
func (a *Agent) Stats() Stats {
	a.stats.mu.Lock()
	defer a.stats.mu.Unlock()

	perInterface := make(map[string]int64, len(a.stats.perInterface))
	for k, v := range a.stats.perInterface {
		perInterface[k] = v
	}

	var avgMS int64
	if a.stats.messagesProcessed > 0 {
		avgMS = a.stats.totalExecution.Milliseconds() / a.stats.messagesProcessed
	}

	return Stats{
		MessagesProcessed: a.stats.messagesProcessed,
		ToolsExecuted:     a.stats.toolsExecuted,
		ErrorCount:        a.stats.errorCount,
		PerInterface:      perInterface,
		UptimeSeconds:     int64(time.Since(a.stats.startTime).Seconds()),
		AvgLatencyMS:      avgMS,
	}
}
