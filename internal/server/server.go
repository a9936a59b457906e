// Package server is the HTTP front end of the satori command: a small
// site that reports what it can read about each request and lets the
// client drive its own session.
package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satori-http/satori"
	"github.com/satori-http/satori/internal/metrics"
	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/session"
	"github.com/satori-http/satori/sphyrw/hole"
)

// RequestIDHeader carries the per-request ID, echoed back if the client
// sent one.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	satori *satori.Satori
	logger *zap.Logger
}

func New(s *satori.Satori, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{satori: s, logger: logger}
}

// Routes returns the site's handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.With(hole.Middleware(hole.AllowCaching())).Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(hole.Middleware())

		r.Get("/whoami", s.handle(s.whoami))
		r.Get("/session", s.handle(s.sessionContents))
		r.Post("/session/regenerate", s.handle(s.regenerate))
		r.Post("/session/destroy", s.handle(s.destroy))
		r.Get("/session/values/{key}", s.handle(s.getValue))
		r.Put("/session/values/{key}", s.handle(s.putValue))
		r.Post("/session/values/{key}", s.handle(s.putValue))
		r.Delete("/session/values/{key}", s.handle(s.removeValue))
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		s.logger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.String("remote", r.RemoteAddr))
		next.ServeHTTP(w, r)
	})
}

// A pageFunc handles one request with its session already started. The
// result is sent as JSON once the session has been released, so the
// client never sees a response before its session is saved. param looks
// up route parameters.
type pageFunc func(req *request.Request, sess *session.Handle, param func(string) string) (any, error)

// statusError is a page failure with a status other than 500.
type statusError struct {
	status int
	msg    string
}

func (se statusError) Error() string {
	return se.msg
}

func (s *Server) handle(page pageFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		req, w, sess, err := s.satori.Begin(rw, r)
		defer w.Finish()

		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, request.ErrBodyTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, http.StatusText(status), status)
			return
		}

		ctx := r.Context()
		if err := sess.Start(ctx, ""); err != nil {
			s.logger.Error("couldn't start session", zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		result, err := page(req, sess, func(name string) string {
			return chi.URLParam(r, name)
		})
		var se statusError
		switch {
		case errors.As(err, &se):
			http.Error(w, se.msg, se.status)
			return
		case err != nil:
			s.logger.Error("page failed",
				zap.String("path", req.Path()), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError),
				http.StatusInternalServerError)
			return
		}

		if sess.State() == session.Active {
			if err := sess.Release(ctx); err != nil {
				s.logger.Error("couldn't save session", zap.Error(err))
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		if err := w.WriteJSON(result); err != nil {
			s.logger.Warn("couldn't write response", zap.Error(err))
		}
	}
}
