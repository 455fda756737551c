package domain

import (
	"fmt"
	"strings"
)

// MergeSuffix is appended to right-hand columns that collide with left ones
const MergeSuffix = "_right"

// InnerJoin matches rows of t and right on the key columns. Output columns are
// t's columns followed by right's non-key columns; row order follows t, and a
// left row matching several right rows yields one output row per match.
func (t Table) InnerJoin(right Table, keys ...string) (Table, error) {
	leftIdx := make([]int, len(keys))
	rightIdx := make([]int, len(keys))
	for i, k := range keys {
		leftIdx[i] = t.ColumnIndex(k)
		rightIdx[i] = right.ColumnIndex(k)
		if leftIdx[i] < 0 || rightIdx[i] < 0 {
			return Table{}, fmt.Errorf("join key %s missing from one side", k)
		}
	}

	isKey := make(map[int]bool, len(keys))
	for _, i := range rightIdx {
		isKey[i] = true
	}
	var carry []int
	cols := append([]string{}, t.Columns...)
	for i, c := range right.Columns {
		if isKey[i] {
			continue
		}
		carry = append(carry, i)
		if t.HasColumn(c) {
			c += MergeSuffix
		}
		cols = append(cols, c)
	}

	keyOf := func(row []string, idx []int) string {
		parts := make([]string, len(idx))
		for i, j := range idx {
			if j < len(row) {
				parts[i] = row[j]
			}
		}
		return strings.Join(parts, "\x1f")
	}

	byKey := make(map[string][]int, len(right.Rows))
	for r, row := range right.Rows {
		k := keyOf(row, rightIdx)
		byKey[k] = append(byKey[k], r)
	}

	out := NewTable(cols...)
	for _, row := range t.Rows {
		for _, r := range byKey[keyOf(row, leftIdx)] {
			merged := make([]string, 0, len(cols))
			merged = append(merged, row...)
			for len(merged) < len(t.Columns) {
				merged = append(merged, "")
			}
			src := right.Rows[r]
			for _, j := range carry {
				v := ""
				if j < len(src) {
					v = src[j]
				}
				merged = append(merged, v)
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out, nil
}
