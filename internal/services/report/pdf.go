package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont      = "Arial"
	pdfBodySize  = 9.0
	pdfTableSize = 7.0
	pdfLine      = 5.0
	pdfWidth     = 277.0 // A4 landscape minus margins
	pdfBottom    = 200.0
)

var pdfMarkdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderPDF lays the report markdown out on landscape A4 pages. Text is
// mapped to the core font code page; characters outside it are not preserved.
func RenderPDF(markdown, title string) ([]byte, error) {
	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetTitle(title, true)
	doc.SetCreator("aurum", true)
	doc.SetMargins(10, 10, 10)
	doc.SetAutoPageBreak(true, 10)
	doc.AddPage()
	doc.SetFont(pdfFont, "", pdfBodySize)

	source := []byte(markdown)
	r := &pdfWriter{
		doc:    doc,
		source: source,
		tr:     doc.UnicodeTranslatorFromDescriptor(""),
	}
	root := pdfMarkdown.Parser().Parse(text.NewReader(source))
	if err := ast.Walk(root, r.walk); err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", err)
	}
	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	doc    *fpdf.Fpdf
	source []byte
	tr     func(string) string
	bold   bool
	italic bool
}

func (w *pdfWriter) setFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	w.doc.SetFont(pdfFont, style, pdfBodySize)
}

func (w *pdfWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.doc.Ln(4)
			size := 10.0
			switch node.Level {
			case 1:
				size = 15
			case 2:
				size = 12
			case 3:
				size = 10.5
			}
			w.doc.SetFont(pdfFont, "B", size)
		} else {
			w.doc.Ln(7)
			w.setFont()
		}
	case *ast.Paragraph:
		if !entering {
			w.doc.Ln(pdfLine + 1)
		}
	case *ast.Text:
		if entering {
			w.doc.Write(pdfLine, w.tr(string(node.Segment.Value(w.source))))
			if node.SoftLineBreak() || node.HardLineBreak() {
				w.doc.Write(pdfLine, " ")
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.setFont()
	case *ast.List:
		if !entering {
			w.doc.Ln(2)
		}
	case *ast.ListItem:
		if entering {
			if w.doc.GetX() > 15 {
				w.doc.Ln(pdfLine)
			}
			w.doc.SetX(15)
			w.doc.Write(pdfLine, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			w.doc.Ln(2)
			w.doc.Line(10, w.doc.GetY(), 10+pdfWidth, w.doc.GetY())
			w.doc.Ln(2)
		}
	case *extast.Table:
		if entering {
			w.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *pdfWriter) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		for c := child.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, w.tr(string(c.Text(w.source))))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	widths := w.columnWidths(rows)
	lineHeight := 4.0

	w.doc.Ln(1)
	for i, row := range rows {
		style, border := "", "D"
		if i == 0 {
			style, border = "B", "FD"
			w.doc.SetFillColor(230, 230, 230)
		}
		w.doc.SetFont(pdfFont, style, pdfTableSize)

		lines := 1
		for j, cell := range row {
			if j < len(widths) {
				lines = max(lines, len(w.doc.SplitText(cell, widths[j]-2)))
			}
		}
		height := float64(lines)*lineHeight + 1

		y := w.doc.GetY()
		if y+height > pdfBottom {
			w.doc.AddPage()
			y = w.doc.GetY()
		}
		x := 10.0
		for j, cell := range row {
			if j >= len(widths) {
				break
			}
			w.doc.Rect(x, y, widths[j], height, border)
			w.doc.SetXY(x+1, y+0.5)
			w.doc.MultiCell(widths[j]-2, lineHeight, cell, "", "L", false)
			x += widths[j]
		}
		w.doc.SetXY(10, y+height)
	}
	w.doc.Ln(3)
	w.setFont()
}

// columnWidths sizes columns to their widest cell, capped and scaled to the page
func (w *pdfWriter) columnWidths(rows [][]string) []float64 {
	cols := len(rows[0])
	widths := make([]float64, cols)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		w.doc.SetFont(pdfFont, style, pdfTableSize)
		for j, cell := range row {
			if j < cols {
				widths[j] = max(widths[j], w.doc.GetStringWidth(cell)+4)
			}
		}
	}

	total := 0.0
	for j := range widths {
		widths[j] = min(max(widths[j], 10), pdfWidth/2.5)
		total += widths[j]
	}
	if total > pdfWidth {
		for j := range widths {
			widths[j] *= pdfWidth / total
		}
	}
	return widths
}
