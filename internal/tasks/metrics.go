package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/sitekit/internal/logging"
)

// TaskMetrics tracks the runs of one task.
type TaskMetrics struct {
	Name            string        `json:"name"`
	Runs            int64         `json:"runs"`
	Failures        int64         `json:"failures"`
	LastDuration    time.Duration `json:"last_duration"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	LastRun         time.Time     `json:"last_run"`
	LastError       string        `json:"last_error,omitempty"`
}

// SuccessRate returns the share of successful runs as a percentage.
func (m TaskMetrics) SuccessRate() float64 {
	if m.Runs == 0 {
		return 0.0
	}
	return float64(m.Runs-m.Failures) / float64(m.Runs) * 100.0
}

// Metrics collects TaskMetrics for every observed task.
type Metrics struct {
	mutex sync.RWMutex
	tasks map[string]*TaskMetrics
}

// NewMetrics creates an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{tasks: make(map[string]*TaskMetrics)}
}

// Record adds one finished run of name.
func (m *Metrics) Record(name string, duration time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	tm, ok := m.tasks[name]
	if !ok {
		tm = &TaskMetrics{Name: name}
		m.tasks[name] = tm
	}
	tm.Runs++
	tm.LastDuration = duration
	tm.TotalDuration += duration
	tm.AverageDuration = tm.TotalDuration / time.Duration(tm.Runs)
	tm.LastRun = time.Now()
	if err != nil {
		tm.Failures++
		tm.LastError = err.Error()
	} else {
		tm.LastError = ""
	}
}

// Get returns a copy of the metrics of name.
func (m *Metrics) Get(name string) (TaskMetrics, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	tm, ok := m.tasks[name]
	if !ok {
		return TaskMetrics{}, false
	}
	return *tm, true
}

// Snapshot returns a copy of every task's metrics sorted by name.
func (m *Metrics) Snapshot() []TaskMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	out := make([]TaskMetrics, 0, len(m.tasks))
	for _, tm := range m.tasks {
		out = append(out, *tm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset drops everything recorded so far.
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tasks = make(map[string]*TaskMetrics)
}

// Observer logs the start and end of every task it wraps and records its
// duration.
type Observer struct {
	logger  logging.Logger
	metrics *Metrics
}

// NewObserver returns an observer writing to logger and metrics. Either may
// be nil.
func NewObserver(logger logging.Logger, metrics *Metrics) *Observer {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Observer{logger: logger, metrics: metrics}
}

// Metrics returns the tracker the observer records into.
func (o *Observer) Metrics() *Metrics { return o.metrics }

// Wrap returns t decorated with logging and metrics.
func (o *Observer) Wrap(t Task) Task {
	if _, ok := t.(*observed); ok {
		return t
	}
	return &observed{Task: t, observer: o}
}

type observed struct {
	Task
	observer *Observer
}

func (t *observed) Run(ctx context.Context) error {
	name := t.Name()
	t.observer.logger.Info(ctx, fmt.Sprintf("Starting '%s'...", name), "task", name)
	perf := logging.StartOperation(t.observer.logger, name)

	err := t.Task.Run(ctx)

	var duration time.Duration
	switch {
	case err == nil:
		duration = perf.End(ctx)
	case errors.Is(err, context.Canceled):
		duration = perf.Elapsed()
		t.observer.logger.Debug(ctx, fmt.Sprintf("'%s' cancelled", name), "task", name)
	default:
		duration = perf.EndWithError(ctx, err)
	}
	if t.observer.metrics != nil {
		t.observer.metrics.Record(name, duration, err)
	}
	return err
}
