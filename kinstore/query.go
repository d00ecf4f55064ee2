// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package kinstore

import (
	"fmt"
	"sort"
)

// Query is the filter/sort/skip/limit descriptor evaluated client-side over
// an adapter's find result. A nil *Query matches everything.
type Query struct {
	// Filter maps attribute names to either a literal (equality) or an
	// operator object: $gt, $gte, $lt, $lte, $ne, $in, $exists.
	Filter map[string]any

	Sort  []SortField
	Skip  int
	Limit int // 0 means no limit

	// Fields projects the result down to the listed attributes (the id
	// attribute is always kept). Empty means all attributes.
	Fields []string
}

// SortField orders by one attribute, ascending unless Descending.
type SortField struct {
	Field      string
	Descending bool
}

// Match reports whether doc satisfies the query's filter. Sort/skip/limit
// play no part in matching.
func (q *Query) Match(doc Document) bool {
	if q == nil {
		return true
	}
	for attr, cond := range q.Filter {
		val, present := doc[attr]
		if !matchCondition(val, present, cond) {
			return false
		}
	}
	return true
}

func matchCondition(val any, present bool, cond any) bool {
	ops, ok := cond.(map[string]any)
	if !ok {
		return present && equalValues(val, cond)
	}
	for op, operand := range ops {
		switch op {
		case "$ne":
			if present && equalValues(val, operand) {
				return false
			}
		case "$exists":
			want, _ := operand.(bool)
			if present != want {
				return false
			}
		case "$in":
			list, _ := operand.([]any)
			found := false
			for _, candidate := range list {
				if present && equalValues(val, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present {
				return false
			}
			c, ok := compareValues(val, operand)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				if c <= 0 {
					return false
				}
			case "$gte":
				if c < 0 {
					return false
				}
			case "$lt":
				if c >= 0 {
					return false
				}
			case "$lte":
				if c > 0 {
					return false
				}
			}
		default:
			// Unknown operator objects fall back to literal equality, the
			// same as the remote would treat a nested document.
			return present && equalValues(val, cond)
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues orders two scalars; ok is false for incomparable kinds.
func compareValues(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Apply filters docs, then applies sort, skip, limit, and projection.
func (q *Query) Apply(docs []Document) []Document {
	matched := q.filter(docs)
	if q == nil {
		return matched
	}
	if len(q.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return q.less(matched[i], matched[j])
		})
	}
	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	if len(q.Fields) > 0 {
		matched = q.project(matched)
	}
	return matched
}

// filter returns the subset of docs matching the query, preserving order.
func (q *Query) filter(docs []Document) []Document {
	var matched []Document
	for _, doc := range docs {
		if q.Match(doc) {
			matched = append(matched, doc)
		}
	}
	return matched
}

func (q *Query) less(a, b Document) bool {
	for _, sf := range q.Sort {
		c, ok := compareValues(a[sf.Field], b[sf.Field])
		if !ok || c == 0 {
			continue
		}
		if sf.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}

func (q *Query) project(docs []Document) []Document {
	idAttr := DefaultIDAttribute()
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		projected := Document{}
		if id, ok := doc[idAttr]; ok {
			projected[idAttr] = id
		}
		for _, field := range q.Fields {
			if v, ok := doc[field]; ok {
				projected[field] = v
			}
		}
		out = append(out, projected)
	}
	return out
}

// Aggregation is a client-evaluated grouping: documents are bucketed by the
// Key attributes, each bucket starts from a copy of Initial, and Reduce
// folds every document into its bucket's accumulator.
type Aggregation struct {
	Key     []string
	Initial map[string]any
	Reduce  func(doc Document, acc map[string]any)

	// Condition restricts the grouped set; nil groups everything.
	Condition *Query
}
