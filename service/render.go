package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	slideWidth    = 1280
	slideHeight   = 720
	headerHeight  = 72
	slideMargin   = 64
	glyphWidth    = 7
	lineHeight    = 20
	maxSlideLines = (slideHeight - headerHeight - 2*slideMargin) / lineHeight
)

var (
	colorBackground  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	colorHeader      = color.NRGBA{R: 31, G: 58, B: 96, A: 255}
	colorText        = color.NRGBA{R: 33, G: 33, B: 33, A: 255}
	colorPlaceholder = color.NRGBA{R: 224, G: 224, B: 224, A: 255}
	colorMuted       = color.NRGBA{R: 97, G: 97, B: 97, A: 255}
)

// SlideRenderer draws a 16:9 PNG card for a slide: header, wrapped text and
// the slide's own picture on the right when there is one.
type SlideRenderer struct {
	face font.Face
}

func NewSlideRenderer() *SlideRenderer {
	return &SlideRenderer{face: basicfont.Face7x13}
}

func (r *SlideRenderer) Render(number int, text string, picture []byte) ([]byte, error) {
	canvas := imaging.New(slideWidth, slideHeight, colorBackground)
	canvas = imaging.Paste(canvas, imaging.New(slideWidth, headerHeight, colorHeader), image.Pt(0, 0))

	textWidth := slideWidth - 2*slideMargin
	if len(picture) > 0 {
		img, err := imaging.Decode(bytes.NewReader(picture), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decode slide picture: %w", err)
		}
		fitted := imaging.Fit(img, slideWidth/2-slideMargin, slideHeight-headerHeight-2*slideMargin, imaging.Lanczos)
		canvas = imaging.Overlay(canvas, fitted, image.Pt(slideWidth/2, headerHeight+slideMargin), 1.0)
		textWidth = slideWidth/2 - 2*slideMargin
	}

	r.drawString(canvas, fmt.Sprintf("Slide %d", number), slideMargin, headerHeight/2+5, color.White)

	lines := wrapText(text, textWidth/glyphWidth)
	if len(lines) > maxSlideLines {
		lines = append(lines[:maxSlideLines-1], "...")
	}
	for i, line := range lines {
		r.drawString(canvas, line, slideMargin, headerHeight+slideMargin+i*lineHeight, colorText)
	}

	return encodePNG(canvas)
}

// Placeholder is the clearly labeled card used when rendering fails.
func (r *SlideRenderer) Placeholder(number int) ([]byte, error) {
	canvas := imaging.New(slideWidth, slideHeight, colorPlaceholder)
	r.drawString(canvas, fmt.Sprintf("Slide %d", number), slideMargin, slideHeight/2-lineHeight, colorMuted)
	r.drawString(canvas, "Preview unavailable", slideMargin, slideHeight/2+lineHeight, colorMuted)
	return encodePNG(canvas)
}

func (r *SlideRenderer) drawString(dst *image.NRGBA, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapText greedily wraps each paragraph to width characters.
func wrapText(text string, width int) []string {
	if width < 1 {
		width = 1
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}

		var current []rune
		for _, word := range words {
			runes := []rune(word)
			for len(runes) > width {
				if len(current) > 0 {
					lines = append(lines, string(current))
					current = nil
				}
				lines = append(lines, string(runes[:width]))
				runes = runes[width:]
			}
			switch {
			case len(current) == 0:
				current = runes
			case len(current)+1+len(runes) <= width:
				current = append(append(current, ' '), runes...)
			default:
				lines = append(lines, string(current))
				current = runes
			}
		}
		if len(current) > 0 {
			lines = append(lines, string(current))
		}
	}
	return lines
}
