package store

import "sync"

// Selection tracks the highlighted index into the room list. Movement wraps
// around and reports whether the index actually changed, so callers can
// avoid redundant subscription churn.
type Selection struct {
	mu       sync.Mutex
	index    int
	selected bool
}

// Current returns the highlighted index, if any.
func (s *Selection) Current() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.selected
}

// Next moves the highlight to the next entry of a list of length n, wrapping
// at the end. With n == 0 the selection is cleared. The bool reports a
// meaningful change.
func (s *Selection) Next(n int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n == 0 {
		s.selected = false
		return 0, false
	}

	next := 0
	if s.selected {
		if s.index >= n-1 {
			next = 0
		} else {
			next = s.index + 1
		}
	}
	return s.moveTo(next)
}

// Previous moves the highlight to the previous entry, wrapping at the
// start. Same contract as Next.
func (s *Selection) Previous(n int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n == 0 {
		s.selected = false
		return 0, false
	}

	prev := 0
	if s.selected {
		if s.index == 0 {
			prev = n - 1
		} else {
			prev = s.index - 1
		}
	}
	return s.moveTo(prev)
}

func (s *Selection) moveTo(i int) (int, bool) {
	if s.selected && s.index == i {
		return i, false
	}
	s.index = i
	s.selected = true
	return i, true
}
