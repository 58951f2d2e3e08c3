package render

import (
	"image"
	"io"

	"github.com/gogpu/gg"
)

// DefaultBackground matches the white page the canvas sits on.
const DefaultBackground = "#ffffff"

// ImageSurface draws into an in-memory RGBA image using gg's software rasterizer.
type ImageSurface struct {
	dc         *gg.Context
	size       int
	background gg.RGBA
	err        error
}

func NewImageSurface(size int, background string) *ImageSurface {
	if background == "" {
		background = DefaultBackground
	}
	dc := gg.NewContext(size, size)
	dc.SetLineWidth(1)
	return &ImageSurface{dc: dc, size: size, background: gg.Hex(background)}
}

func (s *ImageSurface) FillRect(x, y, w, h float64, color string) {
	s.dc.SetHexColor(color)
	s.dc.DrawRectangle(x, y, w, h)
	s.keep(s.dc.Fill())
}

func (s *ImageSurface) StrokeRect(x, y, w, h float64, color string) {
	s.dc.SetHexColor(color)
	s.dc.DrawRectangle(x, y, w, h)
	s.keep(s.dc.Stroke())
}

// ClearRect resets the area to the background color.
func (s *ImageSurface) ClearRect(x, y, w, h float64) {
	if x <= 0 && y <= 0 && x+w >= float64(s.size) && y+h >= float64(s.size) {
		s.dc.ClearWithColor(s.background)
		return
	}
	s.dc.SetColor(s.background.Color())
	s.dc.DrawRectangle(x, y, w, h)
	s.keep(s.dc.Fill())
}

func (s *ImageSurface) keep(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

// Err returns the first rasterizer error since the surface was created.
func (s *ImageSurface) Err() error { return s.err }

func (s *ImageSurface) Image() image.Image { return s.dc.Image() }

func (s *ImageSurface) EncodePNG(w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	return s.dc.EncodePNG(w)
}

func (s *ImageSurface) Close() error { return s.dc.Close() }
