package client

import (
	"sync"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/render"
	"github.com/DoyleJ11/color-war-backend/internal/viewport"
)

// View couples a viewport with a surface and repaints only when the grid or the
// viewport actually changes.
type View struct {
	mu      sync.Mutex
	vp      *viewport.Viewport
	surface render.Surface
	grid    canvas.Grid
	renders int
}

func NewView(vp *viewport.Viewport, surface render.Surface) *View {
	v := &View{vp: vp, surface: surface, grid: canvas.NewGrid(vp.GridSize())}
	v.repaint()
	return v
}

// SetGrid is the OnGrid hook for a Client.
func (v *View) SetGrid(g canvas.Grid, _ int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.grid = g
	v.repaint()
}

func (v *View) ZoomAt(ax, ay float64, dir int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.vp.ZoomAt(ax, ay, dir) {
		return false
	}
	v.repaint()
	return true
}

func (v *View) Pan(dx, dy float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.vp.Pan(dx, dy) {
		return false
	}
	v.repaint()
	return true
}

func (v *View) Resize(size float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if size == v.vp.RenderSize() {
		return
	}
	v.vp.Resize(size)
	v.repaint()
}

// CellAt maps a click to a cell, rejecting points outside the grid.
func (v *View) CellAt(px, py float64) (x, y int, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vp.CellAt(px, py)
}

// Renders counts repaints so far.
func (v *View) Renders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders
}

func (v *View) repaint() {
	render.Render(v.surface, v.grid, v.vp)
	v.renders++
}
