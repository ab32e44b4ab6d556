// Package profiler - Operation timing for the evaluation loop.
package profiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation names recorded by the evaluation loop.
const (
	OperationPreprocess  = "preprocess"
	OperationInference   = "inference"
	OperationPostprocess = "postprocess"
	OperationLoad        = "load"
	OperationEvaluate    = "evaluate"
)

// Profiler tracks how long named operations take.
//
// It is safe for concurrent use.
type Profiler struct {
	mu             sync.RWMutex
	startTime      time.Time
	maxSamples     int
	operationTimes map[string]*TimeTracker
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Stats is a snapshot of one operation.
type Stats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	// Mean is taken over the retained window of samples.
	Mean time.Duration `json:"mean"`
}

// NewProfiler creates a profiler.
//
// Arguments:
//   - maxSamples: How many recent durations to keep per operation for the mean; 0 means 600.
//
// Returns:
//   - *Profiler: A started profiler.
func NewProfiler(maxSamples int) *Profiler {
	if maxSamples <= 0 {
		maxSamples = 600
	}
	return &Profiler{
		startTime:      time.Now(),
		maxSamples:     maxSamples,
		operationTimes: make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one duration to an operation.
func (p *Profiler) Record(name string, duration time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		p.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	tracker.count++
	if len(tracker.durations) > p.maxSamples {
		tracker.durations = tracker.durations[1:]
	}

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns the statistics of one operation.
func (p *Profiler) Stats(name string) (Stats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, ok := p.operationTimes[name]
	if !ok {
		return Stats{Name: name}, false
	}
	return tracker.snapshot(), true
}

// Operations returns the statistics of every operation sorted by name.
func (p *Profiler) Operations() []Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Stats, 0, len(p.operationTimes))
	for _, tracker := range p.operationTimes {
		out = append(out, tracker.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Uptime returns the time since the profiler was created.
func (p *Profiler) Uptime() time.Duration {
	return time.Since(p.startTime)
}

// LogSummary writes one line per operation and the memory in use.
func (p *Profiler) LogSummary(logger *zap.SugaredLogger) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	logger.Infow("profile",
		"uptime", p.Uptime().Truncate(time.Millisecond),
		"heap_alloc", formatBytes(mem.HeapAlloc),
		"gc_cycles", mem.NumGC,
	)
	for _, s := range p.Operations() {
		logger.Infow("operation",
			"name", s.Name,
			"count", s.Count,
			"avg", s.Mean.Truncate(time.Microsecond),
			"min", s.Min.Truncate(time.Microsecond),
			"max", s.Max.Truncate(time.Microsecond),
			"total", s.Total.Truncate(time.Millisecond),
		)
	}
}

func (t *TimeTracker) snapshot() Stats {
	s := Stats{
		Name:  t.name,
		Count: t.count,
		Total: t.totalTime,
		Min:   t.minTime,
		Max:   t.maxTime,
	}
	if len(t.durations) > 0 {
		var window time.Duration
		for _, d := range t.durations {
			window += d
		}
		s.Mean = window / time.Duration(len(t.durations))
	}
	return s
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
