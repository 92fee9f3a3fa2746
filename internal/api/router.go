package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// appPrefix is the path prefix of the app's private API. Every segment is
// a parameter; only country and devid are read.
const appPrefix = "/{apiversion}/private/{country}/{language}/{devid}/{apptype}/{appversion}/{devtype}/{aid}"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleBase)

	// App session and informational routes
	r.Route(appPrefix, func(r chi.Router) {
		r.Get("/user/login", s.envelope(s.handleLogin))
		r.Get("/user/checkLogin", s.envelope(s.handleCheckLogin))
		r.Get("/user/logout", s.envelope(s.handleLogout))
		r.Get("/user/getAuthCode", s.envelope(s.handleGetAuthCode))
		r.Get("/user/checkAgreement", s.envelope(s.handleCheckAgreement))
		r.Get("/common/checkVersion", s.envelope(s.handleCheckVersion))
		r.Get("/campaign/homePageAlert", s.envelope(s.handleHomePageAlert))
	})

	r.Post("/api/pim/product/getProductIotMap", s.envelope(s.handleGetProductIotMap))

	// RPC-style endpoints with their own body shapes
	r.Get("/api/users/user.do", s.handleUsersRPC)
	r.Post("/api/users/user.do", s.handleUsersRPC)
	r.Post("/lookup.do", s.handleLookup)
	r.Post("/api/iot/devmanager.do", s.handleDevManager)

	// Operational surface
	r.Get("/api/system/status", s.handleStatus)
	if s.audit != nil {
		r.Get("/api/audit", s.handleListAuditLogs)
	}
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}
	if s.cfg.Events.Enabled {
		r.Get(s.cfg.Events.Path, s.handleWebSocket)
	}

	return r
}

// handleBase is the liveness marker.
func (s *Server) handleBase(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "Bumper!")
}

// handlerFunc is an app route that returns its payload or an error; the
// envelope wrapper turns either into the response body.
type handlerFunc func(r *http.Request) (any, error)

// envelope adapts h to an http.HandlerFunc, building the common envelope
// and logging failures at the boundary.
func (s *Server) envelope(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(r)
		if err != nil {
			code, msg, _ := s.logFailure(r, err)
			writeJSON(w, http.StatusOK, failureEnvelope(code, msg))
			return
		}
		writeJSON(w, http.StatusOK, newEnvelope(data))
	}
}

// logFailure logs a handler error with request context and returns its
// envelope mapping.
func (s *Server) logFailure(r *http.Request, err error) (code, msg string, internal bool) {
	code, msg, internal = envelopeFor(err)
	args := []any{
		"path", r.URL.Path,
		"device_id", chi.URLParam(r, "devid"),
		"request_id", requestIDFrom(r.Context()),
		"code", code,
		"error", err,
	}
	if internal {
		s.logger.Error("request failed", args...)
	} else {
		s.logger.Debug("request rejected", args...)
	}
	return code, msg, internal
}
