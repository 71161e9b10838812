package types

import (
	"fmt"
	"time"
)

// ProgressStatus defines the outcome of a single task
type ProgressStatus int

// Whether task is still pending, passed, failed or was skipped after an
// earlier failure
const (
	ProgressPending ProgressStatus = iota
	ProgressSucceeded
	ProgressFailed
	ProgressSkipped
)

var progressNames = map[ProgressStatus]string{
	ProgressPending:   "pending",
	ProgressSucceeded: "passed",
	ProgressFailed:    "failed",
	ProgressSkipped:   "skipped",
}

func (s ProgressStatus) String() string {
	if n, ok := progressNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalJSON convert status into string
func (s ProgressStatus) MarshalJSON() ([]byte, error) {
	return []byte("\"" + s.String() + "\""), nil
}

// UnmarshalJSON convert string into status
func (s *ProgressStatus) UnmarshalJSON(b []byte) error {
	str := string(b)
	if len(str) < 2 {
		return fmt.Errorf("invalid status %s", str)
	}
	for k, v := range progressNames {
		if v == str[1:len(str)-1] {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("invalid status %s", str)
}

// TaskResult contains result for single task
type TaskResult struct {
	Index  int            `json:"index"`
	Kind   Kind           `json:"kind"`
	Status ProgressStatus `json:"status"`

	// Answer is the decoded client answer, Expected only filled once the task
	// has been verified
	Answer   string `json:"answer"`
	Expected string `json:"-"`

	// Oversized is set when the answer exceeded the receive bound
	Oversized bool          `json:"oversized,omitempty"`
	Time      time.Duration `json:"time"`
}

// JudgeResult contains final result of the exchange
type JudgeResult struct {
	Tasks    []TaskResult `json:"tasks"`
	Passed   int          `json:"passed"`
	FlagSent bool         `json:"flagSent"`
}
