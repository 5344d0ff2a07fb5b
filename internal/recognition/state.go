// Package recognition runs background gesture recognition sessions against
// the live DAQ handle.
package recognition

import (
	"fmt"
	"strings"
)

// State is the lifecycle position of a session.
type State int

const (
	Idle State = iota
	Running
	Succeeded
	Cancelled
	Failed
)

var stateNames = [...]string{"idle", "running", "succeeded", "cancelled", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether the session has finished.
func (s State) Terminal() bool { return s >= Succeeded }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}
