// Package metrics tracks renderer latency using Welford's online
// algorithm for running mean/variance, adapted from the teacher's
// internal/sched stat type (originally used for CPU/IO worker-pool
// latency) to track renderer wait time (queued -> admitted) and run time
// (admitted -> child exit) instead.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
)

type stat struct {
	mu   sync.Mutex
	n    int64
	mean float64
	m2   float64
}

func (s *stat) add(x float64) {
	s.mu.Lock()
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
	s.mu.Unlock()
}

func (s *stat) snapshot() (count int64, mean, std float64) {
	s.mu.Lock()
	count = s.n
	mean = s.mean
	if s.n > 1 {
		if variance := s.m2 / float64(s.n-1); variance > 0 {
			std = math.Sqrt(variance)
		}
	}
	s.mu.Unlock()
	return
}

// Snapshot is the JSON-serializable view of the current renderer metrics.
type Snapshot struct {
	Spawned   uint64           `json:"spawned"`
	Completed uint64           `json:"completed"`
	Evicted   uint64           `json:"evicted"`
	WaitMS    LatencySnapshot  `json:"wait_ms"`
	RunMS     LatencySnapshot  `json:"run_ms"`
}

type LatencySnapshot struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Std   float64 `json:"std"`
}

// Recorder accumulates renderer dispatch counters and latency stats. A
// single Recorder is shared by the Scheduler actor (single-writer) and
// read by anything exposing a snapshot, so its counters are atomics and
// its stat fields lock internally.
type Recorder struct {
	spawned   uint64
	completed uint64
	evicted   uint64
	wait      stat
	run       stat
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) RecordSpawn(waitMS float64) {
	atomic.AddUint64(&r.spawned, 1)
	r.wait.add(waitMS)
}

func (r *Recorder) RecordCompletion(runMS float64) {
	atomic.AddUint64(&r.completed, 1)
	r.run.add(runMS)
}

func (r *Recorder) RecordEviction(n int) {
	if n > 0 {
		atomic.AddUint64(&r.evicted, uint64(n))
	}
}

func (r *Recorder) Snapshot() Snapshot {
	wc, wa, ws := r.wait.snapshot()
	rc, ra, rs := r.run.snapshot()
	return Snapshot{
		Spawned:   atomic.LoadUint64(&r.spawned),
		Completed: atomic.LoadUint64(&r.completed),
		Evicted:   atomic.LoadUint64(&r.evicted),
		WaitMS:    LatencySnapshot{Count: wc, Avg: wa, Std: ws},
		RunMS:     LatencySnapshot{Count: rc, Avg: ra, Std: rs},
	}
}
