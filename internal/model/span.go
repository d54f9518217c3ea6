package model

import (
	"encoding/json"
	"fmt"
)

// Span is a half-open byte range [Start, End) within a file. It marshals as
// the two-element JSON array the wire schema uses ("span":[s,e]).
type Span struct {
	Start int
	End   int
}

// Len returns the span's byte width.
func (s Span) Len() int { return s.End - s.Start }

// Empty reports whether the span is zero-width (an insertion point).
func (s Span) Empty() bool { return s.Start == s.End }

// Overlaps reports whether s and o share any byte, per spec.md §4.F (two
// spans touching at an endpoint, i.e. s.End == o.Start, do not overlap).
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Start, s.End})
}

func (s *Span) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("span: expected [start,end] array: %w", err)
	}
	s.Start, s.End = pair[0], pair[1]
	return nil
}
