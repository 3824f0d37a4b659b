package chainable

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists reports of finished runs. Reports are post-mortem records;
// the engine never loads them to continue a run.
type Store interface {
	// Save persists a report, replacing any report with the same run ID.
	Save(ctx context.Context, report Report) error

	// Load retrieves a report by run ID.
	Load(ctx context.Context, runID string) (*Report, error)

	// List returns all reports, oldest first.
	List(ctx context.Context) ([]Report, error)

	// Delete removes a report. Deleting an unknown run ID is not an error.
	Delete(ctx context.Context, runID string) error
}

// Report is the serializable summary of a Result.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Chain      string        `json:"chain" yaml:"chain"`
	Mode       string        `json:"mode" yaml:"mode"`
	State      string        `json:"state" yaml:"state"`
	Attempts   int           `json:"attempts" yaml:"attempts"`
	Cause      *ReportCause  `json:"cause,omitempty" yaml:"cause,omitempty"`
	Steps      []ReportStep  `json:"steps" yaml:"steps"`
	Events     []ReportEvent `json:"events" yaml:"events"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
}

// ReportCause is the serializable form of a Cause.
type ReportCause struct {
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	Step   int    `json:"step" yaml:"step"`
	Error  string `json:"error" yaml:"error"`
}

// ReportStep records the final status of one step.
type ReportStep struct {
	Step   int    `json:"step" yaml:"step"`
	Status string `json:"status" yaml:"status"`
}

// ReportEvent is the serializable form of an Event.
type ReportEvent struct {
	Seq     int       `json:"seq" yaml:"seq"`
	Type    string    `json:"type" yaml:"type"`
	Step    int       `json:"step" yaml:"step"`
	Action  string    `json:"action,omitempty" yaml:"action,omitempty"`
	Attempt int       `json:"attempt" yaml:"attempt"`
	Error   string    `json:"error,omitempty" yaml:"error,omitempty"`
	At      time.Time `json:"at" yaml:"at"`
}

// NewReport builds a Report from a Result.
func NewReport(res *Result) Report {
	report := Report{
		RunID:      res.RunID.String(),
		Chain:      res.Chain,
		Mode:       res.Mode.String(),
		State:      res.State.String(),
		Attempts:   res.Attempts,
		Steps:      []ReportStep{},
		Events:     []ReportEvent{},
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}

	if res.Cause != nil {
		report.Cause = &ReportCause{
			Action: res.Cause.Action,
			Step:   res.Cause.Step,
		}
		if res.Cause.Err != nil {
			report.Cause.Error = res.Cause.Err.Error()
		}
	}

	if res.Journal == nil {
		return report
	}
	for _, s := range res.Journal.Steps() {
		report.Steps = append(report.Steps, ReportStep{Step: s.Step, Status: s.Status.String()})
	}
	for _, e := range res.Journal.Events() {
		re := ReportEvent{
			Seq:     e.Seq,
			Type:    e.Type.String(),
			Step:    e.Step,
			Action:  e.Action,
			Attempt: e.Attempt,
			At:      e.At,
		}
		if e.Err != nil {
			re.Error = e.Err.Error()
		}
		report.Events = append(report.Events, re)
	}
	return report
}

// SortReports orders reports oldest first, breaking ties by run ID.
func SortReports(reports []Report) {
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].StartedAt.Equal(reports[j].StartedAt) {
			return reports[i].RunID < reports[j].RunID
		}
		return reports[i].StartedAt.Before(reports[j].StartedAt)
	})
}

// MemoryStore provides an in-memory implementation of Store for testing
// or scenarios where persistence is not required.
type MemoryStore struct {
	reports map[string]Report
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]Report),
	}
}

// Save stores the report in memory.
func (m *MemoryStore) Save(_ context.Context, report Report) error {
	if report.RunID == "" {
		return fmt.Errorf("report has no run id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports[report.RunID] = copyReport(report)
	return nil
}

// Load retrieves the report from memory.
func (m *MemoryStore) Load(_ context.Context, runID string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report, exists := m.reports[runID]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", runID, ErrReportNotFound)
	}

	out := copyReport(report)
	return &out, nil
}

// List returns copies of all stored reports.
func (m *MemoryStore) List(_ context.Context) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Report, 0, len(m.reports))
	for _, r := range m.reports {
		out = append(out, copyReport(r))
	}
	SortReports(out)
	return out, nil
}

// Delete removes the report from memory.
func (m *MemoryStore) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.reports, runID)
	return nil
}

func copyReport(r Report) Report {
	out := r
	if r.Cause != nil {
		c := *r.Cause
		out.Cause = &c
	}
	out.Steps = append([]ReportStep(nil), r.Steps...)
	out.Events = append([]ReportEvent(nil), r.Events...)
	return out
}
