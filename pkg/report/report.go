// Package report collects per-iteration outcomes of a run and writes them as
// a JSON summary.
package report

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// Filename is the report written at the run root
const Filename = "report.json"

// Run status values
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// Outcome records one test iteration
type Outcome struct {
	Family        string        `json:"family"`
	Test          string        `json:"test"`
	Iteration     int           `json:"iteration"`
	Directory     string        `json:"directory"`
	Constrained   *int64        `json:"constrained,omitempty"`
	Unconstrained *int64        `json:"unconstrained,omitempty"`
	Passed        bool          `json:"passed"`
	Error         string        `json:"error,omitempty"`
	Start         time.Time     `json:"start"`
	Duration      time.Duration `json:"duration"`
}

// Report is the summary of one run
type Report struct {
	mu sync.Mutex

	RunID     string    `json:"run_id"`
	Timestamp string    `json:"timestamp"`
	BaseDir   string    `json:"base_dir"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Outcomes  []Outcome `json:"outcomes"`
	Error     string    `json:"error,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
}

// New starts a report for the run rooted at baseDir
func New(timestamp, baseDir string, start time.Time) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Timestamp: timestamp,
		BaseDir:   baseDir,
		Status:    StatusRunning,
		StartedAt: start,
		Outcomes:  []Outcome{},
	}
}

// Add appends an outcome
func (r *Report) Add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes = append(r.Outcomes, o)
}

// Finish sets the final status from the run error
func (r *Report) Finish(end time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndedAt = end
	if err == nil {
		r.Status = StatusPassed
		return
	}
	r.Status = StatusFailed
	r.Error = err.Error()
	r.ErrorCode = string(harnesserrors.GetCode(err))
}

// Passed counts passing outcomes
func (r *Report) Passed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, o := range r.Outcomes {
		if o.Passed {
			count++
		}
	}
	return count
}

// Write serializes the report as indented JSON to path
func (r *Report) Write(path string) error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := security.SecureWriteFile(path, data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
