// Package pdftest builds small, valid PDF files for tests. Each page gets
// its own MediaBox width so page identity survives any rewrite and can be
// read back through the page dimensions.
package pdftest

import (
	"bytes"
	"fmt"
)

// PageHeight is the MediaBox height of every generated page
const PageHeight = 792

// Build returns a PDF with one page per width, in order
func Build(widths ...int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := ""
	for i := range widths {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(widths)))

	for i, w := range widths {
		content := fmt.Sprintf("0 0 m %d %d l S", w, i+1)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> /Contents %d 0 R >>",
			w, PageHeight, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Widths returns widths 100, 110, ... for n pages, a convenient default
// where page k is recognisable as width 90+10k.
func Widths(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 100 + 10*i
	}
	return out
}

// WidthsFrom is Widths starting at base, for telling documents apart
func WidthsFrom(base, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = base + 10*i
	}
	return out
}
