package chainable

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RunState is the state of a single run.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StatePaused
	StateRollingBack
	StateSucceeded
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateRollingBack:
		return "rolling_back"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a run can end in this state.
func (s RunState) Terminal() bool {
	return s == StatePaused || s == StateSucceeded || s == StateFailed
}

// MarshalJSON implements the json.Marshaler interface for RunState.
func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for RunState.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseRunState(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseRunState is the inverse of RunState.String.
func ParseRunState(str string) (RunState, error) {
	for s := StateIdle; s <= StateFailed; s++ {
		if s.String() == str {
			return s, nil
		}
	}
	return StateIdle, fmt.Errorf("invalid run state: %s", str)
}

// Mode selects the engine variant.
type Mode int

const (
	// ModeResumable counts attempts and lets compensations request a retry.
	ModeResumable Mode = iota
	// ModeSimple compensates every completed action and never retries.
	ModeSimple
)

func (m Mode) String() string {
	switch m {
	case ModeResumable:
		return "resumable"
	case ModeSimple:
		return "simple"
	default:
		return "unknown"
	}
}

// ParseMode accepts "simple" or "resumable" (case-insensitive). The empty
// string selects ModeResumable.
func ParseMode(str string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "", "resumable":
		return ModeResumable, nil
	case "simple":
		return ModeSimple, nil
	default:
		return ModeResumable, fmt.Errorf("invalid mode %q: must be simple or resumable", str)
	}
}
