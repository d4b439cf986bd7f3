package pdfpages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/pdfpages/pdftest"
)

func widthsOf(t *testing.T, data []byte) []int {
	info, err := Inspect(data)
	require.NoError(t, err)
	out := make([]int, len(info.Pages))
	for i, p := range info.Pages {
		out[i] = p.Width
	}
	return out
}

func TestInspect(t *testing.T) {
	data := pdftest.Build(pdftest.Widths(3)...)

	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 3, info.PageCount)
	assert.Equal(t, []int{100, 110, 120}, widthsOf(t, data))
	assert.Equal(t, pdftest.PageHeight, info.Pages[0].Height)
	assert.Equal(t, 1, info.Pages[0].Number)
}

func TestInspect_Garbage(t *testing.T) {
	_, err := Inspect([]byte("not a pdf"))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestRemove(t *testing.T) {
	data := pdftest.Build(pdftest.Widths(5)...)

	out, err := Remove(data, []int{2, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{100, 120, 140}, widthsOf(t, out))
}

func TestSelect_ReorderAndInverse(t *testing.T) {
	data := pdftest.Build(pdftest.Widths(4)...)
	order := []int{3, 1, 4, 2}

	reordered, err := Select(data, order)
	require.NoError(t, err)
	assert.Equal(t, []int{120, 100, 130, 110}, widthsOf(t, reordered))

	restored, err := Select(reordered, Inverse(order))
	require.NoError(t, err)
	assert.Equal(t, widthsOf(t, data), widthsOf(t, restored))
}

func TestConcat(t *testing.T) {
	a := pdftest.Build(pdftest.WidthsFrom(200, 2)...)
	b := pdftest.Build(pdftest.WidthsFrom(300, 3)...)

	out, err := Concat([][]byte{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{200, 210, 300, 310, 320}, widthsOf(t, out))

	_, err = Concat([][]byte{a})
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	data := pdftest.Build(pdftest.Widths(5)...)

	out, err := Extract(data, Range{From: 2, To: 4})
	require.NoError(t, err)
	assert.Equal(t, []int{110, 120, 130}, widthsOf(t, out))
}

func TestPlanDelete(t *testing.T) {
	plan, err := PlanDelete(5, []int{4, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, plan.Order)
	assert.Equal(t, []int{2, 4}, plan.Removed)
	assert.Equal(t, map[int]int{1: 1, 3: 2, 5: 3}, plan.Mapping())
	assert.False(t, plan.IsIdentity())

	tests := []struct {
		name  string
		pages []int
	}{
		{"empty", nil},
		{"zero", []int{0}},
		{"past end", []int{6}},
		{"all pages", []int{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanDelete(5, tt.pages)
			assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
		})
	}
}

func TestPlanDelete_DenseForEverySubset(t *testing.T) {
	const n = 6
	for mask := 1; mask < (1<<n)-1; mask++ {
		var del []int
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				del = append(del, i+1)
			}
		}
		plan, err := PlanDelete(n, del)
		require.NoError(t, err)

		newNumbers := make(map[int]bool)
		for _, nn := range plan.Mapping() {
			newNumbers[nn] = true
		}
		require.Len(t, newNumbers, n-len(del))
		for k := 1; k <= n-len(del); k++ {
			assert.True(t, newNumbers[k], "mask %b missing page %d", mask, k)
		}
	}
}

func TestPlanReorder(t *testing.T) {
	plan, err := PlanReorder(3, []int{1, 2, 3})
	require.NoError(t, err)
	assert.True(t, plan.IsIdentity())

	plan, err = PlanReorder(3, []int{3, 1, 2})
	require.NoError(t, err)
	assert.False(t, plan.IsIdentity())
	assert.Equal(t, map[int]int{3: 1, 1: 2, 2: 3}, plan.Mapping())

	for _, bad := range [][]int{{1, 2}, {1, 1, 2}, {0, 1, 2}, {1, 2, 4}} {
		_, err := PlanReorder(3, bad)
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation), "%v", bad)
	}
}

func TestInverse(t *testing.T) {
	order := []int{2, 5, 1, 4, 3}
	inv := Inverse(order)

	composed := make([]int, len(order))
	for i, p := range inv {
		composed[i] = order[p-1]
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, composed)
}

func TestPlanSplit(t *testing.T) {
	ranges, err := PlanSplit(6, []Range{{From: 4, To: 6}, {From: 1, To: 2}})
	require.NoError(t, err)
	assert.Equal(t, []Range{{From: 1, To: 2}, {From: 4, To: 6}}, ranges)
	assert.Equal(t, 3, ranges[1].Len())

	bad := [][]Range{
		nil,
		{{From: 0, To: 2}},
		{{From: 3, To: 2}},
		{{From: 5, To: 7}},
		{{From: 1, To: 3}, {From: 3, To: 4}},
	}
	for _, r := range bad {
		_, err := PlanSplit(6, r)
		assert.True(t, apperrors.Is(err, apperrors.CodeValidation), "%v", r)
	}
}
