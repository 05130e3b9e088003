package cron

import (
	"context"
	"fmt"
)

// Job is a scheduled task. Run reports how many rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// Registry keeps jobs in registration order; names are unique.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{byName: map[string]Job{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if _, exists := r.byName[job.Name()]; exists {
		return fmt.Errorf("cron job %q registered twice", job.Name())
	}
	r.jobs = append(r.jobs, job)
	r.byName[job.Name()] = job
	return nil
}

// Select returns the named jobs, or every job when names is empty.
func (r *Registry) Select(names ...string) ([]Job, error) {
	if len(names) == 0 {
		jobs := make([]Job, len(r.jobs))
		copy(jobs, r.jobs)
		return jobs, nil
	}
	jobs := make([]Job, 0, len(names))
	for _, name := range names {
		job, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
