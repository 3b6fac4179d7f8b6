package display

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math/bits"
	"sync/atomic"

	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

const (
	mirrorWidth  = 120
	mirrorHeight = 224
)

var (
	colorBackground = color.RGBA{16, 16, 16, 255}
	colorLit        = color.RGBA{255, 40, 20, 255}
	colorDark       = color.RGBA{48, 20, 20, 255}
	colorCaption    = color.RGBA{200, 200, 200, 255}
)

// segment rectangles, indexed like the pattern bits
var segmentRects = [7]image.Rectangle{
	image.Rect(22, 10, 98, 22),    // a
	image.Rect(98, 22, 110, 96),   // b
	image.Rect(98, 104, 110, 178), // c
	image.Rect(22, 178, 98, 190),  // d
	image.Rect(10, 104, 22, 178),  // e
	image.Rect(10, 22, 22, 96),    // f
	image.Rect(22, 94, 98, 106),   // g
}

// Mirror is a Port that remembers the last pattern so it can be drawn for
// the dashboard.
type Mirror struct {
	pattern atomic.Uint32
}

func NewMirror() *Mirror {
	return &Mirror{}
}

func (m *Mirror) Write(pattern uint8) {
	m.pattern.Store(uint32(pattern))
}

func (m *Mirror) Pattern() uint8 {
	return uint8(m.pattern.Load())
}

// Caption names what a pattern shows.
func Caption(pattern uint8) string {
	if pattern == 0 {
		return "blank"
	}
	for digit, p := range Patterns {
		if p == pattern {
			return fmt.Sprintf("available: %d", digit)
		}
	}
	return fmt.Sprintf("segments: %d lit", bits.OnesCount8(pattern))
}

// Image draws the pattern as a seven-segment digit with a caption.
func (m *Mirror) Image() image.Image {
	pattern := m.Pattern()
	img := image.NewRGBA(image.Rect(0, 0, mirrorWidth, mirrorHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)
	for bit, r := range segmentRects {
		c := colorDark
		if pattern&(1<<bit) != 0 {
			c = colorLit
		}
		draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorCaption),
		Face: inconsolata.Regular8x16,
		Dot:  fixed.Point26_6{X: fixed.I(6), Y: fixed.I(mirrorHeight - 10)},
	}
	d.DrawString(Caption(pattern))
	return img
}

func (m *Mirror) WritePNG(w io.Writer) error {
	return png.Encode(w, m.Image())
}
