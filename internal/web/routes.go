package web

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/attendance/internal/web/handlers"
	"github.com/kozaktomas/attendance/internal/web/middleware"
	"github.com/kozaktomas/attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Job, s.deps.Events)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", s.deps.Health)

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/", attendanceHandler.Submit)
			r.Get("/status", attendanceHandler.Status)
			r.Get("/result", attendanceHandler.Result)
			r.Get("/events", attendanceHandler.Events)
			r.Post("/stop", attendanceHandler.Stop)
		})

		if s.deps.Records != nil {
			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(30 * time.Second))
				r.Get("/records", s.deps.Records.List)
				r.Get("/records/{date}/{period}/{subject}", s.deps.Records.Get)
			})
		}
	})

	// Routes of the original classroom dashboard.
	s.router.Post("/capture_attendance", attendanceHandler.LegacyCapture)
	s.router.Get("/get_status", attendanceHandler.LegacyStatus)
	s.router.Get("/get_attendance", attendanceHandler.LegacyAttendance)

	s.router.With(middleware.SecurityHeaders()).Get("/", s.serveDashboard)
}

// serveDashboard serves the embedded status page.
func (s *Server) serveDashboard(w http.ResponseWriter, r *http.Request) {
	f, err := static.GetFileSystem().Open("/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
