package chainable

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// EventType defines the kinds of events recorded for a run.
type EventType int

const (
	EventRunStarted EventType = iota
	EventStarted
	EventSucceeded
	EventFailed
	EventPaused
	EventResumed
	EventUndoStarted
	EventUndoFinished
	EventUndoFailed
	EventRetryRequested
	EventRunFinished
)

var eventTypeNames = [...]string{
	EventRunStarted:     "run_started",
	EventStarted:        "started",
	EventSucceeded:      "succeeded",
	EventFailed:         "failed",
	EventPaused:         "paused",
	EventResumed:        "resumed",
	EventUndoStarted:    "undo_started",
	EventUndoFinished:   "undo_finished",
	EventUndoFailed:     "undo_failed",
	EventRetryRequested: "retry_requested",
	EventRunFinished:    "run_finished",
}

// String returns the string representation of the EventType.
func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return fmt.Sprintf("Unknown EventType: %d", t)
	}
	return eventTypeNames[t]
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(str string) (EventType, error) {
	for i, name := range eventTypeNames {
		if name == str {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("invalid event type: %s", str)
}

// stepLevel reports whether the event applies to a single step.
func (t EventType) stepLevel() bool {
	return t != EventRunStarted && t != EventRunFinished
}

// Event is an entry in a run's journal. Run-level events carry Step -1.
type Event struct {
	RunID   uuid.UUID
	Chain   string
	Seq     int
	Type    EventType
	Step    int
	Action  string
	Attempt int
	State   RunState
	Err     error
	At      time.Time
}

// String implements the fmt.Stringer interface for Event.
func (e Event) String() string {
	var sb strings.Builder
	if e.Step >= 0 {
		fmt.Fprintf(&sb, "A%d N%03d %s", e.Attempt, e.Step, e.Type)
		if e.Action != "" {
			fmt.Fprintf(&sb, " (%s)", e.Action)
		}
	} else {
		fmt.Fprintf(&sb, "A%d ---- %s [%s]", e.Attempt, e.Type, e.State)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// StepStatus is the status of one step as derived from its events.
type StepStatus int

const (
	StepNeverStarted StepStatus = iota
	StepStarted
	StepSucceeded
	StepFailed
	StepUndoStarted
	StepUndoFinished
	StepUndoFailed
	StepUndoRetried
)

// next returns the new status for a step after recording the given event.
func (s StepStatus) next(eventType EventType) (StepStatus, error) {
	switch s {
	case StepNeverStarted:
		if eventType == EventStarted {
			return StepStarted, nil
		}
	case StepStarted:
		switch eventType {
		case EventSucceeded:
			return StepSucceeded, nil
		case EventFailed:
			return StepFailed, nil
		}
	case StepSucceeded:
		switch eventType {
		case EventUndoStarted:
			return StepUndoStarted, nil
		case EventPaused, EventResumed:
			return StepSucceeded, nil
		}
	case StepUndoStarted:
		switch eventType {
		case EventUndoFinished:
			return StepUndoFinished, nil
		case EventUndoFailed:
			return StepUndoFailed, nil
		case EventRetryRequested:
			return StepUndoRetried, nil
		}
	case StepFailed, StepUndoFinished, StepUndoFailed, StepUndoRetried:
		// A retry sends forward execution back over these steps.
		if eventType == EventStarted {
			return StepStarted, nil
		}
	}

	return s, fmt.Errorf("%w: event %s for status %s", ErrIllegalTransition, eventType, s)
}

// Journal is the ordered event log of one run.
type Journal struct {
	mu        sync.Mutex
	runID     uuid.UUID
	unwinding bool
	events    []Event
	steps     btree.Map[int, StepStatus]
}

// NewJournal creates an empty Journal.
func NewJournal(runID uuid.UUID) *Journal {
	return &Journal{
		runID:  runID,
		events: make([]Event, 0),
	}
}

// RunID returns the ID of the run the journal belongs to.
func (j *Journal) RunID() uuid.UUID {
	return j.runID
}

// Record validates the event against the step's status, assigns its
// sequence number and appends it. The stored event is returned.
func (j *Journal) Record(event Event) (Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if event.RunID != j.runID {
		return event, fmt.Errorf("event for run %s recorded in journal of run %s", event.RunID, j.runID)
	}

	if event.Type.stepLevel() {
		if event.Step < 0 {
			return event, fmt.Errorf("%w: event %s without a step", ErrIllegalTransition, event.Type)
		}
		current, _ := j.steps.Get(event.Step)
		next, err := current.next(event.Type)
		if err != nil {
			return event, fmt.Errorf("step %d: %w", event.Step, err)
		}
		j.steps.Set(event.Step, next)
	}

	switch event.Type {
	case EventFailed:
		j.unwinding = true
	case EventStarted:
		j.unwinding = false
	}

	event.Seq = len(j.events) + 1
	j.events = append(j.events, event)
	return event, nil
}

// Unwinding returns true while the run is rolling back.
func (j *Journal) Unwinding() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.unwinding
}

// Events returns a copy of the recorded events.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// Status returns the current status of a step.
func (j *Journal) Status(step int) StepStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	status, _ := j.steps.Get(step)
	return status
}

// StepEntry pairs a step index with its status.
type StepEntry struct {
	Step   int
	Status StepStatus
}

// Steps returns the status of every step that has events, ordered by index.
func (j *Journal) Steps() []StepEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]StepEntry, 0, j.steps.Len())
	j.steps.Scan(func(step int, status StepStatus) bool {
		out = append(out, StepEntry{Step: step, Status: status})
		return true
	})
	return out
}

// Forwarded returns the action names in the order their forward functions
// were started.
func (j *Journal) Forwarded() []string {
	return j.names(EventStarted)
}

// Compensated returns the action names in the order their compensations
// were started.
func (j *Journal) Compensated() []string {
	return j.names(EventUndoStarted)
}

func (j *Journal) names(eventType EventType) []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := []string{}
	for _, e := range j.events {
		if e.Type == eventType {
			out = append(out, e.Action)
		}
	}
	return out
}

// String implements the fmt.Stringer interface for Journal.
func (j *Journal) String() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("RUN JOURNAL:\n")
	fmt.Fprintf(&sb, "run id:    %s\n", j.runID)
	direction := "forward"
	if j.unwinding {
		direction = "unwinding"
	}
	fmt.Fprintf(&sb, "direction: %s\n", direction)
	fmt.Fprintf(&sb, "events (%d total):\n\n", len(j.events))
	for _, event := range j.events {
		fmt.Fprintf(&sb, "%03d %s\n", event.Seq, event.String())
	}
	return sb.String()
}

var stepStatusNames = [...]string{
	StepNeverStarted: "NeverStarted",
	StepStarted:      "Started",
	StepSucceeded:    "Succeeded",
	StepFailed:       "Failed",
	StepUndoStarted:  "UndoStarted",
	StepUndoFinished: "UndoFinished",
	StepUndoFailed:   "UndoFailed",
	StepUndoRetried:  "UndoRetried",
}

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	if s < 0 || int(s) >= len(stepStatusNames) {
		return fmt.Sprintf("Unknown StepStatus: %d", s)
	}
	return stepStatusNames[s]
}

// MarshalJSON implements the json.Marshaler interface for StepStatus.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for StepStatus.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for i, name := range stepStatusNames {
		if name == str {
			*s = StepStatus(i)
			return nil
		}
	}
	return fmt.Errorf("invalid StepStatus: %s", str)
}
