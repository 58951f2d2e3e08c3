package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/hub"
	"github.com/DoyleJ11/color-war-backend/internal/ledger"
	"github.com/DoyleJ11/color-war-backend/internal/render"
	"github.com/DoyleJ11/color-war-backend/internal/state"
	"github.com/DoyleJ11/color-war-backend/internal/viewport"
)

const (
	defaultImageSize = 512
	maxImageSize     = 2048
	maxRecent        = 500
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Readyz fails while the store is unreachable.
func Readyz(store *state.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

type configResponse struct {
	GridSize        int      `json:"grid_size"`
	CooldownSeconds int      `json:"cooldown_seconds"`
	Palette         []string `json:"palette"`
}

func CanvasConfig(store *state.Store, palette canvas.Palette) http.HandlerFunc {
	body := configResponse{
		GridSize:        store.Grid.Size(),
		CooldownSeconds: state.Seconds(store.Limiter.Cooldown()),
		Palette:         palette.Colors(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

type statsResponse struct {
	Count   int64 `json:"count"`
	Seq     int64 `json:"seq"`
	Clients int   `json:"clients"`
}

func Stats(store *state.Store, h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := store.Counter.Value(r.Context())
		if err != nil {
			log.Warn("stats: counter read failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		view, err := h.State(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "hub stopped")
			return
		}
		seq := view.Seq
		if seq < 0 {
			// nothing broadcast yet
			seq = count
		}
		writeJSON(w, http.StatusOK, statsResponse{Count: count, Seq: seq, Clients: view.NumClients})
	}
}

// CanvasPNG renders a viewport of the live grid: ?size=<px>&zoom=<step>&x=<cam>&y=<cam>.
func CanvasPNG(store *state.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		size, err := intParam(q.Get("size"), defaultImageSize)
		if err != nil || size <= 0 || size > maxImageSize {
			writeError(w, http.StatusBadRequest, "size must be between 1 and 2048")
			return
		}
		zoom, err := intParam(q.Get("zoom"), viewport.DefaultMinZoom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "zoom must be an integer")
			return
		}
		camX, errX := floatParam(q.Get("x"))
		camY, errY := floatParam(q.Get("y"))
		if errX != nil || errY != nil {
			writeError(w, http.StatusBadRequest, "x and y must be numbers")
			return
		}

		snap, err := store.Current(r.Context())
		if err != nil {
			log.Warn("canvas.png: snapshot failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}

		vp := viewport.New(snap.Grid.Size(), float64(size))
		vp.SetZoom(zoom)
		vp.SetCamera(viewport.Point{X: camX, Y: camY})

		surface := render.NewImageSurface(size, "")
		defer surface.Close()
		render.Render(surface, snap.Grid, vp)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Canvas-Seq", strconv.FormatInt(snap.Count, 10))
		if err := surface.EncodePNG(w); err != nil {
			log.Error("canvas.png: encode failed", zap.Error(err))
		}
	}
}

func RecentPlacements(history ledger.History, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := intParam(r.URL.Query().Get("limit"), 50)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(limit, maxRecent)
		entries, err := history.Recent(r.Context(), limit)
		if err != nil {
			log.Warn("recent placements failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "history unavailable")
			return
		}
		if entries == nil {
			entries = []ledger.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	return f, nil
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
