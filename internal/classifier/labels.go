package classifier

import (
	"errors"
	"fmt"
	"slices"
)

// Unknown is reported when no class is predicted with enough confidence. A
// model may also carry it as an explicit rest class.
const Unknown = "unknown"

// ErrLabelMismatch is returned when a label set does not match the one a model
// was trained with.
var ErrLabelMismatch = errors.New("label set mismatch")

// LabelSet is the ordered list of class names bound to a model's output
// layer: Names[i] is the class of output i. It is stored inside the model
// artifact so inference never depends on a hard-coded order.
type LabelSet struct {
	Version int      `json:"version"`
	Names   []string `json:"names"`
}

// NewLabelSet builds a version 1 label set.
func NewLabelSet(names ...string) LabelSet {
	return LabelSet{Version: 1, Names: append([]string(nil), names...)}
}

// Len returns the number of classes.
func (l LabelSet) Len() int { return len(l.Names) }

// Name returns the class name for output index i.
func (l LabelSet) Name(i int) string { return l.Names[i] }

// Index returns the output index of name, or -1.
func (l LabelSet) Index(name string) int {
	return slices.Index(l.Names, name)
}

// Validate rejects empty label sets, empty names and duplicates.
func (l LabelSet) Validate() error {
	if len(l.Names) == 0 {
		return fmt.Errorf("label set is empty")
	}
	seen := make(map[string]bool, len(l.Names))
	for i, n := range l.Names {
		if n == "" {
			return fmt.Errorf("label %d is empty", i)
		}
		if seen[n] {
			return fmt.Errorf("label %q appears more than once", n)
		}
		seen[n] = true
	}
	return nil
}

// Equal reports whether both sets list the same names in the same order.
func (l LabelSet) Equal(o LabelSet) bool {
	return slices.Equal(l.Names, o.Names)
}

// Check returns ErrLabelMismatch when o differs from l.
func (l LabelSet) Check(o LabelSet) error {
	if !l.Equal(o) {
		return fmt.Errorf("%w: model has %v, got %v", ErrLabelMismatch, l.Names, o.Names)
	}
	return nil
}
