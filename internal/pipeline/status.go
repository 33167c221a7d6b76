package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Step names the pipeline stages as they appear in the status file.
const (
	StepLoad    = "load"
	StepFilter  = "filter"
	StepSelect  = "select"
	StepRender  = "render"
	StepMask    = "mask"
	StepLayout  = "layout"
	StepCompose = "compose"
)

// JobStatus is the externally visible progress record of one job.
type JobStatus struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"` // running, done, failed
	Message   string    `json:"message,omitempty"`
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updated_at"`

	// Selection echo, filled once a template is chosen.
	Engine    string `json:"engine,omitempty"`
	ChartType string `json:"chart_type,omitempty"`
	ChartName string `json:"chart_name,omitempty"`
}

// StatusCache persists per-job progress to a shared JSON file. A file
// lock serializes cross-process writers; the mutex covers in-process
// concurrency. Readers polling the file always see a complete document.
type StatusCache struct {
	path string
	mu   sync.Mutex
}

// NewStatusCache creates a cache backed by the given file.
func NewStatusCache(path string) *StatusCache {
	return &StatusCache{path: path}
}

// Update merges one job's status into the file.
func (c *StatusCache) Update(jobID string, st JobStatus) error {
	if c == nil || c.path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking status file: %w", err)
	}
	defer lock.Unlock()

	all, err := c.readLocked()
	if err != nil {
		return err
	}
	st.UpdatedAt = time.Now()
	all[jobID] = st

	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("writing status: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// Get returns one job's last recorded status.
func (c *StatusCache) Get(jobID string) (JobStatus, bool, error) {
	if c == nil || c.path == "" {
		return JobStatus{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lock := flock.New(c.path + ".lock")
	if err := lock.RLock(); err != nil {
		return JobStatus{}, false, fmt.Errorf("locking status file: %w", err)
	}
	defer lock.Unlock()

	all, err := c.readLocked()
	if err != nil {
		return JobStatus{}, false, err
	}
	st, ok := all[jobID]
	return st, ok, nil
}

func (c *StatusCache) readLocked() (map[string]JobStatus, error) {
	all := make(map[string]JobStatus)
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status file: %w", err)
	}
	if len(raw) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("parsing status file: %w", err)
	}
	return all, nil
}
