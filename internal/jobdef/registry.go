package jobdef

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Extensions are the job file extensions LoadDir picks up.
var Extensions = []string{".yaml", ".yml", ".json", ".toml"}

// Registry holds jobs by name.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Register adds job. Names must be unique.
func (r *Registry) Register(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("job %q defined twice: %s and %s", job.Name, prev.Path, job.Path)
	}
	r.jobs[job.Name] = job
	return nil
}

// Get returns a job by name.
func (r *Registry) Get(name string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	return job, ok
}

// All returns every job sorted by name.
func (r *Registry) All() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// LoadDir loads every job file directly in dir. Any invalid file fails the
// whole load.
func LoadDir(dir string, defaults Defaults) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}

	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !isJobFile(e.Name()) {
			continue
		}
		job, err := Load(filepath.Join(dir, e.Name()), defaults)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(job); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func isJobFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
