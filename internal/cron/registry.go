package cron

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Job is one sweep the cron worker runs each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order, keyed by name.
type Registry struct {
	order []string
	jobs  map[string]Job
}

// NewRegistry registers jobs in order. Nil jobs are ignored and a repeated
// name replaces the earlier job in place.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: map[string]Job{}}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	name := job.Name()
	if _, exists := r.jobs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.jobs[name] = job
}

// Jobs returns a copy in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.jobs[name])
	}
	return out
}

// Only narrows the registry to the named jobs, keeping registration order.
// Unknown names are reported together with the valid choices.
func (r *Registry) Only(names ...string) (*Registry, error) {
	want := map[string]bool{}
	var unknown []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.jobs[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		want[name] = true
	}
	if len(unknown) > 0 {
		valid := append([]string(nil), r.order...)
		sort.Strings(valid)
		return nil, fmt.Errorf("unknown cron job(s) %s; valid: %s", strings.Join(unknown, ","), strings.Join(valid, ","))
	}
	if len(want) == 0 {
		return r, nil
	}
	narrowed := NewRegistry()
	for _, name := range r.order {
		if want[name] {
			narrowed.Register(r.jobs[name])
		}
	}
	return narrowed, nil
}
