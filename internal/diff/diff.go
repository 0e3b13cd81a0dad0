// Package diff defines ordered structural diffs over index-addressed
// sequences and their application.
package diff

import (
	"errors"
	"fmt"
)

// Op identifies a structural diff operation.
type Op int

const (
	// OpAppend appends Values to the end of the sequence.
	OpAppend Op = iota
	// OpClear removes every element.
	OpClear
	// OpPushFront prepends Value.
	OpPushFront
	// OpPushBack appends Value.
	OpPushBack
	// OpPopFront removes the first element.
	OpPopFront
	// OpPopBack removes the last element.
	OpPopBack
	// OpInsert inserts Value at Index.
	OpInsert
	// OpSet replaces the element at Index with Value.
	OpSet
	// OpRemove removes the element at Index.
	OpRemove
	// OpTruncate shortens the sequence to Index elements.
	OpTruncate
	// OpReset replaces the whole sequence with Values.
	OpReset
)

// String returns the wire name of the operation.
func (op Op) String() string {
	switch op {
	case OpAppend:
		return "append"
	case OpClear:
		return "clear"
	case OpPushFront:
		return "pushFront"
	case OpPushBack:
		return "pushBack"
	case OpPopFront:
		return "popFront"
	case OpPopBack:
		return "popBack"
	case OpInsert:
		return "insert"
	case OpSet:
		return "set"
	case OpRemove:
		return "remove"
	case OpTruncate:
		return "truncate"
	case OpReset:
		return "reset"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// ErrIndexOutOfRange reports a diff whose position does not exist in the
// sequence it is applied to. It marks a malformed or late diff, not a fatal
// condition.
var ErrIndexOutOfRange = errors.New("diff index out of range")

// Diff is a single structural operation. Index and the value fields are
// meaningful depending on Op; see the Op constants.
type Diff[T any] struct {
	Op     Op
	Index  int
	Value  T
	Values []T
}

// Apply applies d to items and returns the resulting sequence. items is not
// mutated; callers own the returned slice. Positions are validated against
// the current length before anything is committed.
func Apply[T any](items []T, d Diff[T]) ([]T, error) {
	switch d.Op {
	case OpAppend:
		out := make([]T, 0, len(items)+len(d.Values))
		out = append(out, items...)
		return append(out, d.Values...), nil

	case OpClear:
		return nil, nil

	case OpPushFront:
		out := make([]T, 0, len(items)+1)
		out = append(out, d.Value)
		return append(out, items...), nil

	case OpPushBack:
		out := make([]T, 0, len(items)+1)
		out = append(out, items...)
		return append(out, d.Value), nil

	case OpPopFront:
		if len(items) == 0 {
			return nil, fmt.Errorf("%s on empty sequence: %w", d.Op, ErrIndexOutOfRange)
		}
		out := make([]T, len(items)-1)
		copy(out, items[1:])
		return out, nil

	case OpPopBack:
		if len(items) == 0 {
			return nil, fmt.Errorf("%s on empty sequence: %w", d.Op, ErrIndexOutOfRange)
		}
		out := make([]T, len(items)-1)
		copy(out, items[:len(items)-1])
		return out, nil

	case OpInsert:
		if d.Index < 0 || d.Index > len(items) {
			return nil, fmt.Errorf("%s at %d, len %d: %w", d.Op, d.Index, len(items), ErrIndexOutOfRange)
		}
		out := make([]T, 0, len(items)+1)
		out = append(out, items[:d.Index]...)
		out = append(out, d.Value)
		return append(out, items[d.Index:]...), nil

	case OpSet:
		if d.Index < 0 || d.Index >= len(items) {
			return nil, fmt.Errorf("%s at %d, len %d: %w", d.Op, d.Index, len(items), ErrIndexOutOfRange)
		}
		out := make([]T, len(items))
		copy(out, items)
		out[d.Index] = d.Value
		return out, nil

	case OpRemove:
		if d.Index < 0 || d.Index >= len(items) {
			return nil, fmt.Errorf("%s at %d, len %d: %w", d.Op, d.Index, len(items), ErrIndexOutOfRange)
		}
		out := make([]T, 0, len(items)-1)
		out = append(out, items[:d.Index]...)
		return append(out, items[d.Index+1:]...), nil

	case OpTruncate:
		if d.Index < 0 || d.Index > len(items) {
			return nil, fmt.Errorf("%s to %d, len %d: %w", d.Op, d.Index, len(items), ErrIndexOutOfRange)
		}
		out := make([]T, d.Index)
		copy(out, items[:d.Index])
		return out, nil

	case OpReset:
		out := make([]T, len(d.Values))
		copy(out, d.Values)
		return out, nil

	default:
		return nil, fmt.Errorf("unknown diff op %d", int(d.Op))
	}
}

// ApplyAll applies a batch of diffs in order. The input slice is not
// mutated; on the first failing operation the error is returned and no
// partial result is produced.
func ApplyAll[T any](items []T, batch []Diff[T]) ([]T, error) {
	out := items
	for i, d := range batch {
		next, err := Apply(out, d)
		if err != nil {
			return nil, fmt.Errorf("batch op %d: %w", i, err)
		}
		out = next
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
