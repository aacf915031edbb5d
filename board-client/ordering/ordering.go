// Package ordering computes sibling positions for drag-and-drop moves.
//
// Positions are float64 values with gaps between siblings. A move normally
// assigns one new value between the target neighbours and leaves every other
// sibling untouched. When the gap is exhausted the whole sibling set is
// renumbered to evenly spaced multiples of Step.
package ordering

import (
	"math"
	"slices"
)

// Step is the spacing between renumbered siblings and the offset used when
// placing an item before the first or after the last sibling.
const Step = 1024.0

// minGap is the smallest neighbour gap still split in half.
const minGap = 1e-9

// Position returns a pointer to the position field of an item.
type Position[T any] func(*T) *float64

// PositionAt returns the position for an item inserted at index into a
// sibling sequence with the given sorted positions. ok is false when no
// value fits strictly between the neighbours and the caller must renumber.
func PositionAt(positions []float64, index int) (pos float64, ok bool) {
	n := len(positions)
	switch {
	case n == 0:
		return Step, true
	case index <= 0:
		pos = positions[0] - Step
		return pos, finite(pos) && pos < positions[0]
	case index >= n:
		pos = positions[n-1] + Step
		return pos, finite(pos) && pos > positions[n-1]
	}
	prev, next := positions[index-1], positions[index]
	if !finite(prev) || !finite(next) || next-prev <= minGap {
		return 0, false
	}
	pos = prev + (next-prev)/2
	return pos, prev < pos && pos < next
}

// Next returns the position for appending after the last item.
func Next[T any](items []T, pos Position[T]) float64 {
	p, ok := PositionAt(positions(items, pos), len(items))
	if !ok {
		return float64(len(items)+1) * Step
	}
	return p
}

// Insert returns a new slice with item placed at index. renumbered reports
// whether every sibling was reassigned.
func Insert[T any](items []T, item T, index int, pos Position[T]) (out []T, renumbered bool) {
	index = clamp(index, len(items))
	p, ok := PositionAt(positions(items, pos), index)
	out = make([]T, 0, len(items)+1)
	out = append(out, items[:index]...)
	out = append(out, item)
	out = append(out, items[index:]...)
	if !ok {
		Renumber(out, pos)
		return out, true
	}
	*pos(&out[index]) = p
	return out, false
}

// Reorder moves the item at from to index to within the same sequence. The
// input slice is not modified.
func Reorder[T any](items []T, from, to int, pos Position[T]) (out []T, renumbered bool) {
	if from < 0 || from >= len(items) {
		return slices.Clone(items), false
	}
	item := items[from]
	rest := slices.Delete(slices.Clone(items), from, from+1)
	return Insert(rest, item, to, pos)
}

// Transfer moves src[from] into dst at index to. Only the destination can
// be renumbered; the source keeps its remaining positions.
func Transfer[T any](src, dst []T, from, to int, pos Position[T]) (newSrc, newDst []T, renumbered bool) {
	if from < 0 || from >= len(src) {
		return slices.Clone(src), slices.Clone(dst), false
	}
	item := src[from]
	newSrc = slices.Delete(slices.Clone(src), from, from+1)
	newDst, renumbered = Insert(dst, item, to, pos)
	return newSrc, newDst, renumbered
}

// Renumber assigns (i+1)*Step to every item in place, preserving order.
func Renumber[T any](items []T, pos Position[T]) {
	for i := range items {
		*pos(&items[i]) = float64(i+1) * Step
	}
}

// Sort orders items by position in place. Ties keep their current order.
func Sort[T any](items []T, pos Position[T]) {
	slices.SortStableFunc(items, func(a, b T) int {
		pa, pb := *pos(&a), *pos(&b)
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	})
}

func positions[T any](items []T, pos Position[T]) []float64 {
	out := make([]float64, len(items))
	for i := range items {
		out[i] = *pos(&items[i])
	}
	return out
}

func clamp(index, n int) int {
	if index < 0 {
		return 0
	}
	if index > n {
		return n
	}
	return index
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
