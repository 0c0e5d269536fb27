// ABOUTME: Lock-free running statistics for the admission pipeline
// ABOUTME: Atomic counters so recording never blocks request processing

package pipeline

import (
	"sync/atomic"
	"time"
)

// stageCounters accumulates per-stage totals with atomics; the counters are
// approximate in the sense that a snapshot may straddle an update, which is
// fine for monitoring.
type stageCounters struct {
	calls     atomic.Int64
	errors    atomic.Int64
	latencyNs atomic.Int64
}

// Stats tracks pipeline throughput without a lock on the request path.
type Stats struct {
	startedAt time.Time
	started   atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
	active    atomic.Int64
	perStage  map[string]*stageCounters
	rejectBy  map[string]*atomic.Int64
}

func newStats(stages []Stage) *Stats {
	s := &Stats{
		startedAt: time.Now(),
		perStage:  make(map[string]*stageCounters, len(stages)),
		rejectBy:  make(map[string]*atomic.Int64, len(stages)),
	}
	for _, st := range stages {
		s.perStage[st.Name()] = &stageCounters{}
		s.rejectBy[st.Name()] = &atomic.Int64{}
	}
	return s
}

func (s *Stats) begin() {
	s.started.Add(1)
	s.active.Add(1)
}

func (s *Stats) end()    { s.active.Add(-1) }
func (s *Stats) accept() { s.accepted.Add(1) }

func (s *Stats) reject(stage string) {
	s.rejected.Add(1)
	if c, ok := s.rejectBy[stage]; ok {
		c.Add(1)
	}
}

func (s *Stats) observe(stage string, elapsed time.Duration, failed bool) {
	c, ok := s.perStage[stage]
	if !ok {
		return
	}
	c.calls.Add(1)
	c.latencyNs.Add(int64(elapsed))
	if failed {
		c.errors.Add(1)
	}
}

// StageStats is a point-in-time view of one stage's counters.
type StageStats struct {
	Name       string        `json:"name"`
	Calls      int64         `json:"calls"`
	Errors     int64         `json:"errors"`
	Rejections int64         `json:"rejections"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// StatsSnapshot is a point-in-time view of the whole pipeline.
type StatsSnapshot struct {
	Uptime            time.Duration `json:"uptime"`
	Requests          int64         `json:"requests"`
	Accepted          int64         `json:"accepted"`
	Rejected          int64         `json:"rejected"`
	Active            int64         `json:"active"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Stages            []StageStats  `json:"stages"`
}

func (s *Stats) snapshot() StatsSnapshot {
	uptime := time.Since(s.startedAt)
	snap := StatsSnapshot{
		Uptime:   uptime,
		Requests: s.started.Load(),
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Active:   s.active.Load(),
	}
	if secs := uptime.Seconds(); secs > 0 {
		snap.RequestsPerSecond = float64(snap.Requests) / secs
	}
	for name, c := range s.perStage {
		st := StageStats{
			Name:   name,
			Calls:  c.calls.Load(),
			Errors: c.errors.Load(),
		}
		if r, ok := s.rejectBy[name]; ok {
			st.Rejections = r.Load()
		}
		if st.Calls > 0 {
			st.AvgLatency = time.Duration(c.latencyNs.Load() / st.Calls)
		}
		snap.Stages = append(snap.Stages, st)
	}
	return snap
}
