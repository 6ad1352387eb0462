package cron

import "context"

// Job is one unit of scheduled maintenance work, such as the tier
// recalculation pass or the fraud scan.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a worker executes, deduplicated by name so a job
// wired twice during bootstrap still runs once per tick.
type Registry struct {
	jobs  []Job
	named map[string]struct{}
}

// NewRegistry builds a registry preloaded with the given jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{named: make(map[string]struct{})}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job. Nil jobs and names already registered are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if r.named == nil {
		r.named = make(map[string]struct{})
	}
	if _, dup := r.named[job.Name()]; dup {
		return
	}
	r.named[job.Name()] = struct{}{}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
