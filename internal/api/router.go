// Package api wires the chi router, JWT auth middleware, and REST
// handlers for the seven endpoints of spec.md §6.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server hosts the DHOS connector's REST surface.
type Server struct {
	router   chi.Router
	handlers *Handlers
}

// NewServer builds a Server with the teacher's standard middleware stack
// and authSecret used to verify inbound bearer tokens.
func NewServer(handlers *Handlers, authSecret string) *Server {
	s := &Server{router: chi.NewRouter(), handlers: handlers}
	s.setupMiddleware(authSecret)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(authSecret string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(AuthMiddleware(authSecret))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/dhos/v1", func(r chi.Router) {
		r.Post("/message", s.handlers.SubmitMessage)
		r.Patch("/message/{uuid}", s.handlers.PatchMessage)
		r.Get("/message/{uuid}", s.handlers.GetMessage)
		r.Get("/message/search/{control_id}", s.handlers.SearchByControlID)
		r.Get("/message/search", s.handlers.SearchByIdentifier)
		r.Post("/oru_message", s.handlers.SubmitORU)
		r.Post("/cda_message", s.handlers.SubmitCDA)
	})
}

// Router returns the assembled http.Handler.
func (s *Server) Router() http.Handler {
	return s.router
}
