// pixelctl is a headless canvas client. It connects, optionally places one pixel, waits for
// the grid to settle and writes the chosen viewport to a PNG.
//
//	pixelctl -url ws://localhost:3001/ws -place 10,12,#ef4444 -zoom 3 -out canvas.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/client"
	"github.com/DoyleJ11/color-war-backend/internal/logging"
	"github.com/DoyleJ11/color-war-backend/internal/render"
	"github.com/DoyleJ11/color-war-backend/internal/viewport"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:3001/ws", "canvas websocket endpoint")
		place   = flag.String("place", "", "x,y,color to place before rendering")
		out     = flag.String("out", "canvas.png", "PNG output path")
		size    = flag.Int("size", 512, "render size in pixels")
		zoom    = flag.Int("zoom", 1, "zoom step")
		anchorX = flag.Float64("ax", -1, "zoom anchor x in pixels (default: center)")
		anchorY = flag.Float64("ay", -1, "zoom anchor y in pixels (default: center)")
		wait    = flag.Duration("wait", 2*time.Second, "how long to wait for updates")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log, err := logging.New("development", level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, *url, *place, *out, *size, *zoom, *anchorX, *anchorY, *wait); err != nil {
		log.Fatal("pixelctl failed", zap.Error(err))
	}
}

func run(log *zap.Logger, url, place, out string, size, zoom int, ax, ay float64, wait time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var target *canvas.Placement
	if place != "" {
		p, err := parsePlacement(place)
		if err != nil {
			return err
		}
		target = &p
	}

	grids := make(chan canvas.Grid, 8)
	c, err := client.Dial(ctx, url, client.Options{
		Logger: log,
		OnGrid: func(g canvas.Grid, seq int64) {
			log.Debug("grid update", zap.Int64("seq", seq))
			select {
			case grids <- g:
			default:
			}
		},
		OnCooldown: func(s int) { log.Debug("cooldown", zap.Int("seconds", s)) },
	})
	if err != nil {
		return err
	}
	defer c.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.Run(runCtx); err != nil {
			log.Warn("connection closed", zap.Error(err))
		}
	}()

	var first canvas.Grid
	select {
	case first = <-grids:
	case <-time.After(wait):
		return errors.New("no grid received")
	case <-ctx.Done():
		return ctx.Err()
	}

	if target != nil {
		if err := c.ApplyColor(ctx, target.X, target.Y, target.Color); err != nil {
			return err
		}
		log.Info("placement sent", zap.Int("x", target.X), zap.Int("y", target.Y), zap.String("color", target.Color))
	}
	// let broadcasts and the cooldown reply arrive
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	surface := render.NewImageSurface(size, "")
	defer surface.Close()
	vp := viewport.New(first.Size(), float64(size))
	view := client.NewView(vp, surface)
	if ax < 0 {
		ax = float64(size) / 2
	}
	if ay < 0 {
		ay = float64(size) / 2
	}
	for i := vp.Zoom(); i < zoom; i++ {
		view.ZoomAt(ax, ay, 1)
	}
	view.SetGrid(c.Grid(), c.Seq())

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := surface.EncodePNG(f); err != nil {
		return err
	}
	log.Info("canvas written",
		zap.String("path", out),
		zap.Int64("seq", c.Seq()),
		zap.Int64("placements", c.Count()),
		zap.Int("cooldown", c.Cooldown()),
	)
	return nil
}

func parsePlacement(s string) (canvas.Placement, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return canvas.Placement{}, fmt.Errorf("place: want x,y,color, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return canvas.Placement{}, fmt.Errorf("place: x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return canvas.Placement{}, fmt.Errorf("place: y: %w", err)
	}
	return canvas.Placement{X: x, Y: y, Color: strings.TrimSpace(parts[2])}, nil
}
