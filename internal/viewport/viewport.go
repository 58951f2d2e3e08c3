// Package viewport maps between screen pixels and grid cells for a square render surface
// showing an N×N grid under discrete zoom steps and a fractional camera.
package viewport

import "math"

const (
	DefaultMinZoom = 1
	DefaultMaxZoom = 6
)

// Point is a fractional grid coordinate.
type Point struct {
	X, Y float64
}

// Viewport is owned by a single client and is not safe for concurrent use.
type Viewport struct {
	n          int
	renderSize float64
	minZoom    int
	maxZoom    int

	zoom   int
	camera Point
}

type Option func(*Viewport)

// WithZoomRange overrides the zoom bounds. Invalid ranges are ignored.
func WithZoomRange(lo, hi int) Option {
	return func(v *Viewport) {
		if lo >= 1 && hi >= lo {
			v.minZoom, v.maxZoom = lo, hi
		}
	}
}

func New(n int, renderSize float64, opts ...Option) *Viewport {
	v := &Viewport{
		n:          max(n, 0),
		renderSize: math.Max(renderSize, 0),
		minZoom:    DefaultMinZoom,
		maxZoom:    DefaultMaxZoom,
	}
	for _, o := range opts {
		o(v)
	}
	v.zoom = v.minZoom
	return v
}

func (v *Viewport) GridSize() int       { return v.n }
func (v *Viewport) RenderSize() float64 { return v.renderSize }
func (v *Viewport) Zoom() int           { return v.zoom }
func (v *Viewport) Camera() Point       { return v.camera }
func (v *Viewport) MinZoom() int        { return v.minZoom }
func (v *Viewport) MaxZoom() int        { return v.maxZoom }

// Degenerate reports a zero grid or zero render surface; all math short-circuits then.
func (v *Viewport) Degenerate() bool {
	return v.n == 0 || v.renderSize <= 0
}

func (v *Viewport) baseCellSize() float64 {
	return v.renderSize / float64(v.n)
}

// CellSize is the on-screen size of one cell in pixels at the current zoom.
func (v *Viewport) CellSize() float64 {
	if v.Degenerate() {
		return 0
	}
	return v.cellSizeAt(v.zoom)
}

func (v *Viewport) cellSizeAt(zoom int) float64 {
	return v.baseCellSize() * float64(zoom)
}

// ScreenToCell converts a screen point to the grid cell under it. The result may lie
// outside the grid; use CellAt to also get a bounds check.
func (v *Viewport) ScreenToCell(px, py float64) (x, y int) {
	if v.Degenerate() {
		return -1, -1
	}
	cell := v.CellSize()
	return int(math.Floor(px/cell + v.camera.X)), int(math.Floor(py/cell + v.camera.Y))
}

// CellAt is ScreenToCell plus a bounds check. Out-of-range points are rejected, never clamped.
func (v *Viewport) CellAt(px, py float64) (x, y int, ok bool) {
	if v.Degenerate() {
		return 0, 0, false
	}
	x, y = v.ScreenToCell(px, py)
	if x < 0 || y < 0 || x >= v.n || y >= v.n {
		return 0, 0, false
	}
	return x, y, true
}

// CellToScreen returns the top-left screen pixel of cell (x, y).
func (v *Viewport) CellToScreen(x, y int) (px, py float64) {
	cell := v.CellSize()
	return (float64(x) - v.camera.X) * cell, (float64(y) - v.camera.Y) * cell
}

// ScreenToWorld returns the fractional grid coordinate under a screen point.
func (v *Viewport) ScreenToWorld(px, py float64) Point {
	if v.Degenerate() {
		return Point{}
	}
	cell := v.CellSize()
	return Point{X: v.camera.X + px/cell, Y: v.camera.Y + py/cell}
}

// ZoomAt steps the zoom by one in the direction of dir (positive zooms in) keeping the
// grid point under (ax, ay) fixed on screen, then clamps the camera. It reports whether
// anything changed.
func (v *Viewport) ZoomAt(ax, ay float64, dir int) bool {
	if v.Degenerate() || dir == 0 {
		return false
	}
	step := 1
	if dir < 0 {
		step = -1
	}
	next := min(v.maxZoom, max(v.minZoom, v.zoom+step))
	if next == v.zoom {
		return false
	}

	world := v.ScreenToWorld(ax, ay)
	cell := v.cellSizeAt(next)
	v.zoom = next
	v.camera = v.clamp(Point{X: world.X - ax/cell, Y: world.Y - ay/cell})
	return true
}

// Pan moves the view by a screen-pixel delta, dragging the content along with it.
func (v *Viewport) Pan(dx, dy float64) bool {
	if v.Degenerate() {
		return false
	}
	cell := v.CellSize()
	prev := v.camera
	v.camera = v.clamp(Point{X: prev.X - dx/cell, Y: prev.Y - dy/cell})
	return v.camera != prev
}

func (v *Viewport) SetCamera(p Point) {
	if v.Degenerate() {
		return
	}
	v.camera = v.clamp(p)
}

// SetZoom jumps to a zoom level, clamped to the configured range, keeping the camera.
func (v *Viewport) SetZoom(zoom int) {
	if v.Degenerate() {
		return
	}
	v.zoom = min(v.maxZoom, max(v.minZoom, zoom))
	v.camera = v.clamp(v.camera)
}

// Resize changes the render surface size and re-clamps the camera.
func (v *Viewport) Resize(renderSize float64) {
	v.renderSize = math.Max(renderSize, 0)
	if v.Degenerate() {
		v.camera = Point{}
		return
	}
	v.camera = v.clamp(v.camera)
}

// VisibleExtent is how many cells fit across the surface at the current zoom.
func (v *Viewport) VisibleExtent() float64 {
	if v.Degenerate() {
		return 0
	}
	return v.renderSize / v.CellSize()
}

// MaxCamera is the largest camera coordinate that keeps the window inside the grid.
func (v *Viewport) MaxCamera() float64 {
	return math.Max(0, float64(v.n)-v.VisibleExtent())
}

func (v *Viewport) clamp(p Point) Point {
	hi := math.Max(0, float64(v.n)-v.renderSize/v.CellSize())
	return Point{X: clampf(p.X, 0, hi), Y: clampf(p.Y, 0, hi)}
}

func clampf(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}

// Range is a half-open run of cells [Start, Start+Len).
type Range struct {
	Start, Len int
}

// Visible returns the cell ranges that intersect the surface on each axis, already clipped
// to [0, N). It includes one extra cell so partially visible cells at the edge are drawn.
func (v *Viewport) Visible() (xs, ys Range) {
	if v.Degenerate() {
		return Range{}, Range{}
	}
	span := int(math.Ceil(v.renderSize/v.CellSize())) + 1
	axis := func(cam float64) Range {
		start := max(0, int(math.Floor(cam)))
		return Range{Start: start, Len: max(0, min(span, v.n-start))}
	}
	return axis(v.camera.X), axis(v.camera.Y)
}
