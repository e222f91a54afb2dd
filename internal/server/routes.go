package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.renameSession)
			r.Delete("/", s.deleteSession)

			r.Get("/message", s.listMessages)
			r.Post("/message", s.postMessage)
			r.Get("/message/{messageID}", s.getMessage)

			r.Post("/abort", s.abortSession)
			r.Post("/fork", s.forkSession)
			r.Post("/compact", s.compactSession)

			r.Post("/permissions/{permissionID}", s.respondPermission)
		})
	})

	r.Get("/event", s.events)

	r.Get("/config", s.getConfig)
	r.Get("/provider", s.listProviders)
	r.Get("/agent", s.listAgents)
	r.Get("/tool", s.listTools)
}
