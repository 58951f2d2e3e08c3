package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/color-war-backend/internal/canvas"
	"github.com/DoyleJ11/color-war-backend/internal/hub"
	"github.com/DoyleJ11/color-war-backend/internal/ledger"
	"github.com/DoyleJ11/color-war-backend/internal/state"
	"github.com/DoyleJ11/color-war-backend/internal/ws"
)

type Deps struct {
	Store   *state.Store
	Hub     *hub.Hub
	Placer  *hub.Placer
	Palette canvas.Palette
	// History is optional; without it /api/placements/recent is not mounted.
	History ledger.History
	WS      ws.Options
	Log     *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(d.Store))
	r.Get("/ws", ws.Handler(ws.Deps{Store: d.Store, Hub: d.Hub, Placer: d.Placer, Log: d.Log}, d.WS))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(log))
		r.Get("/api/config", CanvasConfig(d.Store, d.Palette))
		r.Get("/api/stats", Stats(d.Store, d.Hub, log))
		if d.History != nil {
			r.Get("/api/placements/recent", RecentPlacements(d.History, log))
		}
		r.Get("/canvas.png", CanvasPNG(d.Store, log))
	})
	return r
}
