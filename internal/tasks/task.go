// Package tasks is the task runner: named tasks, series and parallel
// composition, and a registry the CLI resolves task names against.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Task is a named unit of work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

// New returns a Task that calls fn.
func New(name string, fn func(ctx context.Context) error) Task {
	return &funcTask{name: name, fn: fn}
}

func (t *funcTask) Name() string                  { return t.name }
func (t *funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

type series struct {
	name  string
	tasks []Task
}

// Series runs tasks one after another and stops at the first failure.
func Series(name string, tasks ...Task) Task {
	return &series{name: name, tasks: tasks}
}

func (s *series) Name() string { return s.name }

func (s *series) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

type parallel struct {
	name  string
	tasks []Task
}

// Parallel runs tasks concurrently. The first failure cancels the context
// handed to the others and is the error returned.
func Parallel(name string, tasks ...Task) Task {
	return &parallel{name: name, tasks: tasks}
}

func (p *parallel) Name() string { return p.name }

func (p *parallel) Run(ctx context.Context) error {
	group := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, t := range p.tasks {
		t := t
		group.Go(func(ctx context.Context) error {
			return t.Run(ctx)
		})
	}
	return group.Wait()
}

// Children returns the direct sub-tasks of a Series or Parallel task, nil for
// anything else.
func Children(t Task) []Task {
	switch c := t.(type) {
	case *series:
		return c.tasks
	case *parallel:
		return c.tasks
	case *observed:
		return Children(c.Task)
	default:
		return nil
	}
}

// Describe returns "series", "parallel" or "task".
func Describe(t Task) string {
	switch c := t.(type) {
	case *series:
		return "series"
	case *parallel:
		return "parallel"
	case *observed:
		return Describe(c.Task)
	default:
		return "task"
	}
}

// Serial wraps a task so that overlapping Trigger calls never run it twice at
// once. A trigger that arrives while a run is in flight schedules exactly one
// more run after it; further triggers in that window are folded into it.
type Serial struct {
	task    Task
	onError func(error)

	mu      sync.Mutex
	running bool
	pending bool
	done    chan struct{}
}

// NewSerial wraps task. onError, when set, receives every failed run.
func NewSerial(task Task, onError func(error)) *Serial {
	return &Serial{task: task, onError: onError}
}

// Name returns the wrapped task's name.
func (s *Serial) Name() string { return s.task.Name() }

// Trigger asks for a run. It returns immediately.
func (s *Serial) Trigger(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.pending = true
		return
	}
	s.running = true
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Serial) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() == nil {
			if err := s.task.Run(ctx); err != nil && s.onError != nil {
				s.onError(err)
			}
		}

		s.mu.Lock()
		if !s.pending || ctx.Err() != nil {
			s.running = false
			s.pending = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
	}
}

// Wait blocks until no run is in flight.
func (s *Serial) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Registry resolves task names.
type Registry struct {
	mu          sync.RWMutex
	tasks       map[string]Task
	order       []string
	defaultTask string
	observer    *Observer
}

// NewRegistry returns an empty registry. Every task registered is wrapped by
// observer when it is non-nil.
func NewRegistry(observer *Observer) *Registry {
	return &Registry{tasks: make(map[string]Task), observer: observer}
}

// Register adds t under its name and returns the task to compose with: the
// observed wrapper when the registry has an observer.
func (r *Registry) Register(t Task) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return nil, fmt.Errorf("task has no name")
	}
	if _, exists := r.tasks[name]; exists {
		return nil, fmt.Errorf("task %q already registered", name)
	}
	if r.observer != nil {
		t = r.observer.Wrap(t)
	}
	r.tasks[name] = t
	r.order = append(r.order, name)
	return t, nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(t Task) Task {
	registered, err := r.Register(t)
	if err != nil {
		panic(err)
	}
	return registered
}

// Alias makes alias resolve to the task registered as name.
func (r *Registry) Alias(alias, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[name]
	if !ok {
		return &UnknownTaskError{Name: name}
	}
	if _, exists := r.tasks[alias]; exists {
		return fmt.Errorf("task %q already registered", alias)
	}
	r.tasks[alias] = t
	r.order = append(r.order, alias)
	return nil
}

// SetDefault selects the task Run uses when called without names.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; !ok {
		return &UnknownTaskError{Name: name}
	}
	r.defaultTask = name
	return nil
}

// Default returns the default task name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultTask
}

// Get looks a task up by name.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names lists task names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Run runs the named tasks in series, or the default task when names is
// empty.
func (r *Registry) Run(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		if def := r.Default(); def != "" {
			names = []string{def}
		}
	}
	resolved := make([]Task, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return &UnknownTaskError{Name: name}
		}
		resolved = append(resolved, t)
	}
	if len(resolved) == 1 {
		return resolved[0].Run(ctx)
	}
	return Series("run", resolved...).Run(ctx)
}

// UnknownTaskError is returned for names the registry does not know.
type UnknownTaskError struct {
	Name string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("task %q is not defined", e.Name)
}
