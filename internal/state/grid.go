package state

import (
	"context"
	"errors"
	"strconv"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/kv"
)

// GridStore keeps one hash field per cell so concurrent placements on different cells
// never overwrite each other.
type GridStore struct {
	kv   kv.Store
	keys keys
	size int
}

func (g *GridStore) Size() int { return g.size }

// Snapshot returns the full grid. The first call against an empty backend records the
// grid as initialized (every cell uncolored).
func (g *GridStore) Snapshot(ctx context.Context) (canvas.Grid, error) {
	fields, err := g.kv.HGetAll(ctx, g.keys.grid())
	if err != nil {
		return nil, unavailable("grid snapshot", err)
	}
	if len(fields) == 0 {
		if err := g.ensureInitialized(ctx); err != nil {
			return nil, err
		}
	}

	grid := canvas.NewGrid(g.size)
	for field, color := range fields {
		x, y, ok := canvas.ParseCellField(field)
		if !ok || !grid.InBounds(x, y) {
			continue
		}
		grid[y][x] = color
	}
	return grid, nil
}

func (g *GridStore) ensureInitialized(ctx context.Context) error {
	_, err := g.kv.Get(ctx, g.keys.gridSize())
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return unavailable("grid init", err)
	}
	if _, err := g.kv.SetNX(ctx, g.keys.gridSize(), strconv.Itoa(g.size), 0); err != nil {
		return unavailable("grid init", err)
	}
	return nil
}

// SetCell writes a single cell. Callers validate coordinates and color first.
func (g *GridStore) SetCell(ctx context.Context, x, y int, color string) error {
	if err := g.kv.HSet(ctx, g.keys.grid(), canvas.CellField(x, y), color); err != nil {
		return unavailable("set cell", err)
	}
	return nil
}
