package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/sauron/internal/web/handlers"
	"github.com/kozaktomas/sauron/internal/web/static"
)

func (s *Server) setupRoutes() {
	camerasHandler := handlers.NewCamerasHandler(s.deps.Manager, s.logger)
	streamHandler := handlers.NewStreamHandler(s.deps.Frames, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Registry)
	verifiersHandler := handlers.NewVerifiersHandler(s.deps.Verifiers, s.jobManager)
	detectionsHandler := handlers.NewDetectionsHandler(s.deps.DetectionLog, s.deps.Detections, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Cameras
		r.Get("/cameras", camerasHandler.List)
		r.Get("/cameras/{id}", camerasHandler.Get)
		r.Post("/cameras/{id}/start", camerasHandler.Start)
		r.Post("/cameras/{id}/stop", camerasHandler.Stop)
		r.Post("/cameras/{id}/detection", camerasHandler.SetDetection)
		r.Post("/detection/toggle", camerasHandler.ToggleAll)

		// Frames
		r.Get("/cameras/{id}/stream", streamHandler.Stream)
		r.Get("/cameras/{id}/snapshot", streamHandler.Snapshot)

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{id}", identitiesHandler.Get)

		// Verifiers (long-running jobs)
		r.Post("/verifiers", verifiersHandler.Start)
		r.Get("/verifiers", verifiersHandler.List)
		r.Get("/verifiers/{jobId}", verifiersHandler.Status)
		r.Get("/verifiers/{jobId}/events", verifiersHandler.Events)
		r.Delete("/verifiers/{jobId}", verifiersHandler.Cancel)

		// Detection log
		r.Get("/detections", detectionsHandler.List)
	})

	// Dashboard
	s.router.Handle("/*", http.FileServer(static.GetFileSystem()))
}
