// Package pdfpages rewrites the page structure of PDF binaries in memory.
// Nothing here knows about storage or the database: callers plan a change
// against a page count, apply the plan to bytes, and persist the result.
package pdfpages

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrUnreadable wraps every failure to parse or rewrite a PDF
var ErrUnreadable = errors.New("pdfpages: unreadable pdf")

// PageInfo describes one page as laid out in the binary
type PageInfo struct {
	Number int
	Width  int
	Height int
}

// Info summarises a PDF binary
type Info struct {
	PageCount int
	Pages     []PageInfo
}

var disableConfigDir sync.Once

func newConfig() *model.Configuration {
	// pdfcpu otherwise creates a config directory under $HOME.
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func unreadable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnreadable, err)
}

// Inspect reads the page count and page dimensions
func Inspect(data []byte) (*Info, error) {
	conf := newConfig()
	count, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, unreadable("page count", err)
	}
	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return nil, unreadable("page dims", err)
	}
	if len(dims) != count {
		return nil, unreadable("page dims", fmt.Errorf("%d dims for %d pages", len(dims), count))
	}

	info := &Info{PageCount: count, Pages: make([]PageInfo, count)}
	for i, d := range dims {
		info.Pages[i] = PageInfo{
			Number: i + 1,
			Width:  int(math.Round(d.Width)),
			Height: int(math.Round(d.Height)),
		}
	}
	return info, nil
}

func selection(pages []int) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = strconv.Itoa(p)
	}
	return out
}

// Select copies the given pages, in the given order, into a new PDF
func Select(data []byte, order []int) ([]byte, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("select: no pages")
	}
	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(data), &out, selection(order), newConfig()); err != nil {
		return nil, unreadable("collect", err)
	}
	return out.Bytes(), nil
}

// Remove copies every page except the given ones into a new PDF
func Remove(data []byte, pages []int) ([]byte, error) {
	var out bytes.Buffer
	if err := api.RemovePages(bytes.NewReader(data), &out, selection(pages), newConfig()); err != nil {
		return nil, unreadable("remove pages", err)
	}
	return out.Bytes(), nil
}

// Concat appends the pages of every source, in order, into one PDF
func Concat(sources [][]byte) ([]byte, error) {
	if len(sources) < 2 {
		return nil, fmt.Errorf("concat: need at least two sources, got %d", len(sources))
	}
	readers := make([]io.ReadSeeker, len(sources))
	for i, src := range sources {
		readers[i] = bytes.NewReader(src)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newConfig()); err != nil {
		return nil, unreadable("merge", err)
	}
	return out.Bytes(), nil
}

// Extract copies the inclusive page range into a new PDF
func Extract(data []byte, r Range) ([]byte, error) {
	order := make([]int, 0, r.Len())
	for p := r.From; p <= r.To; p++ {
		order = append(order, p)
	}
	return Select(data, order)
}
