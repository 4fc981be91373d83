package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/coordinator"
	"github.com/matchdesk/matchdesk/internal/hub"
	"github.com/matchdesk/matchdesk/internal/store"
	"github.com/matchdesk/matchdesk/internal/ws"
)

// Deps carries the wired components into the route constructors.
type Deps struct {
	Store  *store.Store
	Coord  *coordinator.Coordinator
	Hub    *hub.Hub
	Logger *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Logger))

	r.Post("/api/gsi", IngestTelemetry(d))

	r.Route("/api/matches", func(r chi.Router) {
		r.Get("/", ListMatches(d))
		r.Post("/", CreateMatch(d))
		r.Get("/maps", GetMaps)
		r.Route("/current", func(r chi.Router) {
			r.Get("/", GetCurrentMatch(d))
			r.Get("/can-reverse", CanReverseSides(d))
		})
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", GetMatch(d))
			r.Put("/", UpdateMatch(d))
			r.Delete("/", RemoveMatch(d))
			r.Put("/current", SetCurrentMatch(d))
			r.Post("/reverse-side", ReverseSide(d))
		})
	})

	return r
}
