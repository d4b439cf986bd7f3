package duplicates

import (
	"fmt"
	"strings"
	"time"

	"github.com/gmsas95/docdesk/internal/store"
)

// Fields is the header of a revision as seen by the comparator
type Fields struct {
	Category       string
	Vendor         string
	DocumentNumber string
	DocumentDate   *time.Time
	Currency       string
	Subtotal       string
	TaxAmount      string
	TotalAmount    string
}

// FieldsOf extracts the comparable header of a revision
func FieldsOf(r *store.DocumentRevision) Fields {
	return Fields{
		Category:       r.Category,
		Vendor:         r.Vendor,
		DocumentNumber: r.DocumentNumber,
		DocumentDate:   r.DocumentDate,
		Currency:       r.Currency,
		Subtotal:       r.Subtotal,
		TaxAmount:      r.TaxAmount,
		TotalAmount:    r.TotalAmount,
	}
}

// FieldMatch is the comparison outcome of one header field. Compared is
// false when either side is empty; such a field never matches.
type FieldMatch struct {
	Field    string  `json:"field"`
	Compared bool    `json:"compared"`
	Match    bool    `json:"match"`
	Weight   float64 `json:"weight"`
}

// Comparison is the result of comparing two headers
type Comparison struct {
	Fields []FieldMatch `json:"fields"`
	Score  float64      `json:"score"`
	Reason string       `json:"reason"`
}

type comparator struct {
	name   string
	weight float64
	cmp    func(a, b Fields) (compared, match bool)
}

// Weights add up to 1, so a full match scores 1.
var comparators = []comparator{
	{"vendor", 0.25, normalized(func(f Fields) string { return f.Vendor })},
	{"document_number", 0.25, normalized(func(f Fields) string { return f.DocumentNumber })},
	{"total_amount", 0.20, exact(func(f Fields) string { return f.TotalAmount })},
	{"document_date", 0.15, sameDate},
	{"currency", 0.05, exact(func(f Fields) string { return f.Currency })},
	{"category", 0.05, exact(func(f Fields) string { return f.Category })},
	{"subtotal", 0.025, exact(func(f Fields) string { return f.Subtotal })},
	{"tax_amount", 0.025, exact(func(f Fields) string { return f.TaxAmount })},
}

// Compare scores b against a. The score is the summed weight of matching
// fields.
func Compare(a, b Fields) Comparison {
	var c Comparison
	var matched []string
	for _, cp := range comparators {
		compared, match := cp.cmp(a, b)
		c.Fields = append(c.Fields, FieldMatch{
			Field:    cp.name,
			Compared: compared,
			Match:    match,
			Weight:   cp.weight,
		})
		if match {
			c.Score += cp.weight
			matched = append(matched, cp.name)
		}
	}
	// Float sums of the weights can land a hair above 1.
	if c.Score > 1 {
		c.Score = 1
	}
	if len(matched) == 0 {
		c.Reason = "no matching fields"
	} else {
		c.Reason = fmt.Sprintf("matched %s (score %.2f)", strings.Join(matched, ", "), c.Score)
	}
	return c
}

// Normalize lowercases, trims and collapses internal whitespace
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func exact(get func(Fields) string) func(a, b Fields) (bool, bool) {
	return func(a, b Fields) (bool, bool) {
		x, y := strings.TrimSpace(get(a)), strings.TrimSpace(get(b))
		if x == "" || y == "" {
			return false, false
		}
		return true, x == y
	}
}

func normalized(get func(Fields) string) func(a, b Fields) (bool, bool) {
	return func(a, b Fields) (bool, bool) {
		x, y := Normalize(get(a)), Normalize(get(b))
		if x == "" || y == "" {
			return false, false
		}
		return true, x == y
	}
}

func sameDate(a, b Fields) (bool, bool) {
	if a.DocumentDate == nil || b.DocumentDate == nil {
		return false, false
	}
	return true, a.DocumentDate.Equal(*b.DocumentDate)
}
