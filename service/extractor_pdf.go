package service

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var reParagraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Line layout thresholds, relative to the font size of the current line.
const (
	pdfDefaultFontSize = 12
	pdfParagraphGap    = 1.5
	pdfWordGap         = 0.15
)

// pdfPlainText extracts the text of every page, pages separated by a blank line.
func pdfPlainText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pages = append(pages, layoutText(page.Content().Text))
	}
	return strings.Join(pages, "\n\n"), nil
}

// layoutText rebuilds lines from positioned glyphs in content-stream order.
// A vertical move starts a new line; a move larger than the paragraph gap
// also inserts a blank line.
func layoutText(glyphs []pdf.Text) string {
	var (
		out      strings.Builder
		line     strings.Builder
		y, end   float64
		lineSize float64
	)
	for i, g := range glyphs {
		size := math.Abs(g.FontSize)
		if size == 0 {
			size = pdfDefaultFontSize
		}

		switch {
		case i == 0:
		case math.Abs(g.Y-y) > math.Max(lineSize, size)/2:
			out.WriteString(strings.TrimSpace(line.String()))
			out.WriteByte('\n')
			if math.Abs(y-g.Y) > pdfParagraphGap*math.Max(lineSize, size) {
				out.WriteByte('\n')
			}
			line.Reset()
			lineSize = 0
		case g.X-end > pdfWordGap*size && g.S != " " && !strings.HasSuffix(line.String(), " "):
			line.WriteByte(' ')
		}

		line.WriteString(g.S)
		y, end = g.Y, g.X+g.W
		lineSize = math.Max(lineSize, size)
	}
	out.WriteString(strings.TrimSpace(line.String()))
	return out.String()
}

// SplitTextBlocks splits text on blank lines and keeps the blocks whose
// trimmed length exceeds minChars.
func SplitTextBlocks(text string, minChars int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks []string
	for _, block := range reParagraphBreak.Split(text, -1) {
		block = strings.TrimSpace(block)
		if utf8.RuneCountInString(block) > minChars {
			blocks = append(blocks, block)
		}
	}
	return blocks
}
