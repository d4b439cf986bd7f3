package pdfpages

import (
	"sort"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
)

// Plan describes a new page sequence in terms of the old one: Order[i] is
// the old number of the page that ends up at position i+1.
type Plan struct {
	Order   []int
	Removed []int
}

// Mapping returns old page number -> new page number for every kept page
func (p *Plan) Mapping() map[int]int {
	m := make(map[int]int, len(p.Order))
	for i, old := range p.Order {
		m[old] = i + 1
	}
	return m
}

// IsIdentity reports whether the plan keeps every page in place
func (p *Plan) IsIdentity() bool {
	if len(p.Removed) > 0 {
		return false
	}
	for i, old := range p.Order {
		if old != i+1 {
			return false
		}
	}
	return true
}

// PlanDelete validates pageNumbers against pageCount and returns the plan
// that keeps every other page in its original relative order.
func PlanDelete(pageCount int, pageNumbers []int) (*Plan, error) {
	if len(pageNumbers) == 0 {
		return nil, apperrors.Validation("no pages to delete")
	}
	remove := make(map[int]bool, len(pageNumbers))
	for _, n := range pageNumbers {
		if n < 1 || n > pageCount {
			return nil, apperrors.Validation("page %d is out of range 1..%d", n, pageCount)
		}
		remove[n] = true
	}
	if len(remove) >= pageCount {
		return nil, apperrors.Validation("cannot delete all %d pages of a document", pageCount)
	}

	plan := &Plan{Order: make([]int, 0, pageCount-len(remove))}
	for n := 1; n <= pageCount; n++ {
		if remove[n] {
			plan.Removed = append(plan.Removed, n)
			continue
		}
		plan.Order = append(plan.Order, n)
	}
	return plan, nil
}

// PlanReorder validates that newOrder is a permutation of 1..pageCount
func PlanReorder(pageCount int, newOrder []int) (*Plan, error) {
	if len(newOrder) != pageCount {
		return nil, apperrors.Validation("new order has %d entries, document has %d pages", len(newOrder), pageCount)
	}
	seen := make(map[int]bool, pageCount)
	for _, n := range newOrder {
		if n < 1 || n > pageCount {
			return nil, apperrors.Validation("page %d is out of range 1..%d", n, pageCount)
		}
		if seen[n] {
			return nil, apperrors.Validation("page %d appears more than once", n)
		}
		seen[n] = true
	}
	return &Plan{Order: append([]int(nil), newOrder...)}, nil
}

// Inverse returns the permutation that undoes order
func Inverse(order []int) []int {
	inv := make([]int, len(order))
	for newPos, old := range order {
		inv[old-1] = newPos + 1
	}
	return inv
}

// Range is an inclusive 1-indexed page range
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Len returns the number of pages in the range
func (r Range) Len() int {
	return r.To - r.From + 1
}

// PlanSplit validates ranges against pageCount. Ranges must be non-empty,
// in bounds and pairwise disjoint; they are returned sorted by start page.
func PlanSplit(pageCount int, ranges []Range) ([]Range, error) {
	if len(ranges) == 0 {
		return nil, apperrors.Validation("no ranges to split")
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	for i, r := range sorted {
		if r.From < 1 || r.To > pageCount || r.From > r.To {
			return nil, apperrors.Validation("range %d-%d is invalid for %d pages", r.From, r.To, pageCount)
		}
		if i > 0 && r.From <= sorted[i-1].To {
			return nil, apperrors.Validation("ranges %d-%d and %d-%d overlap",
				sorted[i-1].From, sorted[i-1].To, r.From, r.To)
		}
	}
	return sorted, nil
}
