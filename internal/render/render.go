// Package render paints the visible part of a grid onto a 2D surface.
package render

import (
	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/viewport"
)

// Surface is the drawing target. Colors are CSS-style hex strings (#rrggbb or #rrggbbaa).
type Surface interface {
	FillRect(x, y, w, h float64, color string)
	StrokeRect(x, y, w, h float64, color string)
	ClearRect(x, y, w, h float64)
}

const (
	gridLineStrong = "#e5e7ebdd"
	gridLineMedium = "#e5e7eb66"
	gridLineFaint  = "#e5e7eb33"
)

// GridLineColor gets more opaque as the user zooms in.
func GridLineColor(zoom int) string {
	switch {
	case zoom > 4:
		return gridLineStrong
	case zoom > 2:
		return gridLineMedium
	default:
		return gridLineFaint
	}
}

// Render clears the surface and draws every cell that intersects it: the cell color
// (uncolored cells are left blank) and then its outline.
func Render(s Surface, g canvas.Grid, v *viewport.Viewport) {
	size := v.RenderSize()
	s.ClearRect(0, 0, size, size)
	if v.Degenerate() {
		return
	}

	cell := v.CellSize()
	line := GridLineColor(v.Zoom())
	xs, ys := v.Visible()
	for gy := ys.Start; gy < ys.Start+ys.Len; gy++ {
		for gx := xs.Start; gx < xs.Start+xs.Len; gx++ {
			if !g.InBounds(gx, gy) {
				continue
			}
			px, py := v.CellToScreen(gx, gy)
			if c := g.At(gx, gy); c != "" {
				s.FillRect(px, py, cell, cell, c)
			}
			s.StrokeRect(px, py, cell, cell, line)
		}
	}
}
