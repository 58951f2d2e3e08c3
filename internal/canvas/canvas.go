package canvas

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidRequest = errors.New("invalid request")
var ErrStoreUnavailable = errors.New("store unavailable")

// Grid is indexed grid[y][x]. An empty string is an uncolored cell.
type Grid [][]string

func NewGrid(n int) Grid {
	if n < 0 {
		n = 0
	}
	g := make(Grid, n)
	for y := range g {
		g[y] = make([]string, n)
	}
	return g
}

func (g Grid) Size() int { return len(g) }

func (g Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && y < len(g) && x < len(g[y])
}

// At returns "" for out-of-range coordinates.
func (g Grid) At(x, y int) string {
	if !g.InBounds(x, y) {
		return ""
	}
	return g[y][x]
}

func (g Grid) Set(x, y int, color string) {
	if g.InBounds(x, y) {
		g[y][x] = color
	}
}

func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for y, row := range g {
		out[y] = append([]string(nil), row...)
	}
	return out
}

type Placement struct {
	X     int
	Y     int
	Color string
}

// Validate checks the placement against a grid of size n and returns the placement with
// its color normalized to the palette's token.
func (p Placement) Validate(n int, palette Palette) (Placement, error) {
	if p.X < 0 || p.Y < 0 || p.X >= n || p.Y >= n {
		return p, fmt.Errorf("%w: cell (%d,%d) outside %dx%d grid", ErrInvalidRequest, p.X, p.Y, n, n)
	}
	color, ok := palette.Normalize(p.Color)
	if !ok {
		return p, fmt.Errorf("%w: unknown color %q", ErrInvalidRequest, p.Color)
	}
	p.Color = color
	return p, nil
}

// CellField is the per-cell address used by the persistence layer.
func CellField(x, y int) string {
	return fmt.Sprintf("%d:%d", x, y)
}

func ParseCellField(field string) (x, y int, ok bool) {
	xs, ys, found := strings.Cut(field, ":")
	if !found {
		return 0, 0, false
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return x, y, true
}
