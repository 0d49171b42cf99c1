package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Registry GC (Component K, supplemental)
// ---------------------------------------------------------------------------
//
// ProcessReaper periodically drops terminated ProcessHandles and closed
// Ports from the program's own bookkeeping tables, independently of
// CollectGarbage. It never touches the heap: heap reclamation stays
// exclusively §4.E/§4.F's job. A ProcessReaper sweep only shortens how
// long a dead handle or closed port lingers in Program.processes /
// PortRegistry between collections; skipping sweeps entirely still
// leaves every CollectGarbage call correct.

// ReapStats holds the result of one sweep.
type ReapStats struct {
	ProcessesReaped int
	PortsReaped     int
	Timestamp       time.Time
	Duration        time.Duration
}

// ProcessReaper runs on a timer, taking Program.processListMu while a
// sweep filters the process list, per §5's "process_list_mutex_" note;
// closed ports are then swept under the PortRegistry's own lock.
type ProcessReaper struct {
	program  *Program
	interval time.Duration
	enabled  atomic.Bool

	mu      sync.Mutex // guards start/stop lifecycle only
	stop    chan struct{}
	stopped chan struct{}

	sweepCount atomic.Uint64
	lastStats  atomic.Value // *ReapStats
}

// NewProcessReaper creates a reaper for program with the given sweep
// interval; interval <= 0 uses Config.Heap.ReapIntervalSeconds (default
// 30s).
func NewProcessReaper(program *Program, interval time.Duration) *ProcessReaper {
	if interval <= 0 {
		interval = time.Duration(program.Cfg.Heap.ReapIntervalSeconds) * time.Second
	}
	r := &ProcessReaper{program: program, interval: interval}
	r.enabled.Store(true)
	return r
}

// Start begins the periodic sweep goroutine. Safe to call repeatedly;
// only one sweep loop ever runs.
func (r *ProcessReaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.stopped = make(chan struct{})
	stopCh, stoppedCh := r.stop, r.stopped
	go r.loop(stopCh, stoppedCh)
}

// Stop halts the sweep goroutine and waits for it to exit. Safe to call
// on a reaper that was never started.
func (r *ProcessReaper) Stop() {
	r.mu.Lock()
	stopCh, stoppedCh := r.stop, r.stopped
	r.stop, r.stopped = nil, nil
	r.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

func (r *ProcessReaper) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if r.enabled.Load() {
				r.SweepNow()
			}
		}
	}
}

// SetEnabled enables or disables sweeping without stopping the timer.
func (r *ProcessReaper) SetEnabled(enabled bool) { r.enabled.Store(enabled) }

// SweepNow performs an immediate sweep regardless of the timer.
func (r *ProcessReaper) SweepNow() ReapStats {
	start := time.Now()
	stats := ReapStats{Timestamp: start}

	p := r.program
	p.processListMu.Lock()
	survivors := make([]*ProcessHandle, 0, len(p.processes))
	for _, h := range p.processes {
		if h.State == ProcessTerminated && h.ID != p.mainProcessID {
			stats.ProcessesReaped++
			continue
		}
		survivors = append(survivors, h)
	}
	p.processes = survivors
	p.processListMu.Unlock()

	stats.PortsReaped = sweepClosedPorts(p.Ports)
	stats.Duration = time.Since(start)

	r.sweepCount.Add(1)
	r.lastStats.Store(&stats)
	return stats
}

// SweepCount returns the total number of sweeps performed.
func (r *ProcessReaper) SweepCount() uint64 { return r.sweepCount.Load() }

// LastStats returns the most recent sweep's result, or nil if none has
// run yet.
func (r *ProcessReaper) LastStats() *ReapStats {
	v := r.lastStats.Load()
	if v == nil {
		return nil
	}
	return v.(*ReapStats)
}

// sweepClosedPorts drops every closed port from the registry. A port
// that ProcessPorts already cleared (Closed == true, Target == 0) is
// pure bookkeeping at this point; nothing else in the package still
// needs to see it.
func sweepClosedPorts(r *PortRegistry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for p := range r.ports {
		if p.Closed {
			delete(r.ports, p)
			swept++
		}
	}
	return swept
}
