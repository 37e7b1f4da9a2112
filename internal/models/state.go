package models

import (
	"encoding/json"
	"fmt"
)

// JobState is a download job's position in its lifecycle.
type JobState int

const (
	StatePreparing JobState = iota
	StateDownloading
	StateProcessing
	StateFinished
	StateError
)

var jobStateNames = map[JobState]string{
	StatePreparing:   "preparing",
	StateDownloading: "downloading",
	StateProcessing:  "processing",
	StateFinished:    "finished",
	StateError:       "error",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// IsTerminal reports whether no further transition can happen.
func (s JobState) IsTerminal() bool {
	return s == StateFinished || s == StateError
}

// IsActive reports whether the job's execution unit is still running.
func (s JobState) IsActive() bool {
	return !s.IsTerminal()
}

func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *JobState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range jobStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown job state %q", name)
}
