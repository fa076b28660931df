package http

import (
	"net/http"
	"time"

	httpmw "github.com/crisis-lab/sim-service/internal/transport/http/middleware"
	"github.com/crisis-lab/sim-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, wsServer *ws.Server, adminSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Admin-Secret"},
	}))

	// WS endpoint: one persistent connection per participant
	r.Get("/ws", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		// facilitator-only surface
		pr.With(httpmw.AdminMiddleware(adminSecret)).Get("/admin/rooms", h.ListRooms)

		pr.Route("/rooms/{code}", func(rr chi.Router) {
			rr.With(httpmw.AdminMiddleware(adminSecret)).Post("/events", h.InjectEvent)
			rr.Get("/events", h.GetEventHistory)
			rr.Get("/chat", h.GetChatHistory)
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
