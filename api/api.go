// Package api exposes the workflow core as a JSON HTTP API. It is one
// possible transport, the core package does not depend on it.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/kervik/signoff/core"
)

type Server struct {
	db            *core.CoreDB
	excludedRoots map[int]bool
}

// NewRouter builds the API router. excludedRoots holds the node ids the
// unconfigured-roots check skips. The caller wraps the router with the
// session manager's LoadAndSave middleware.
func NewRouter(db *core.CoreDB, excludedRoots map[int]bool) http.Handler {

	var s = &Server{db: db, excludedRoots: excludedRoots}
	var router = httprouter.New()

	// public
	router.POST("/login", s.handle(false, false, s.login))

	// any logged-in user
	router.GET("/logout", s.handle(true, false, s.logout))
	router.GET("/groups", s.handle(true, false, s.getGroups))
	router.GET("/groups/:id", s.handle(true, false, s.getGroup))
	router.GET("/nodes/:id/pending", s.handle(true, false, s.pendingForNode))
	router.GET("/instances", s.handle(true, false, s.getInstances))
	router.GET("/instances/:guid", s.handle(true, false, s.getInstance))
	router.POST("/instances", s.handle(true, false, s.startInstance))
	router.POST("/instances/:guid/approve", s.handle(true, false, s.approve))
	router.POST("/instances/:guid/reject", s.handle(true, false, s.reject))
	router.POST("/instances/:guid/cancel", s.handle(true, false, s.cancel))

	// admin only
	router.POST("/groups", s.handle(true, true, s.addGroup))
	router.PUT("/groups/:id", s.handle(true, true, s.saveGroup))
	router.DELETE("/groups/:id", s.handle(true, true, s.deleteGroup))
	router.GET("/config/unconfigured", s.handle(true, true, s.unconfiguredRoots))
	router.GET("/config/node/:id", s.handle(true, true, s.getNodeConfig))
	router.PUT("/config/node/:id", s.handle(true, true, s.saveNodeConfig))
	router.PUT("/config/type/:id", s.handle(true, true, s.saveTypeConfig))
	router.GET("/export", s.handle(true, true, s.export))
	router.POST("/import", s.handle(true, true, s.importSnapshot))

	return router
}

type handlerFunc func(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error

func (s *Server) handle(requireUser, requireAdmin bool, f handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {

		var actor core.Actor
		if uid := s.db.SessionManager.GetInt(req.Context(), "uid"); uid != 0 {
			u, err := s.db.GetUser(uid)
			if err == nil {
				actor = core.ActorFor(u)
			} else if !errors.Is(err, core.ErrUserNotFound) {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			// a stale session for a deleted user counts as not logged in
		}

		if requireUser && actor.UserID == 0 {
			writeError(w, http.StatusUnauthorized, errors.New("not logged in"))
			return
		}
		if requireAdmin && !actor.Admin {
			writeError(w, http.StatusForbidden, core.ErrUnauthorized)
			return
		}

		if err := f(w, req, actor, params); err != nil {
			writeError(w, statusFor(err), err)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNodeNotFound),
		errors.Is(err, core.ErrGroupNotFound),
		errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyActive),
		errors.Is(err, core.ErrAlreadyFinalized),
		errors.Is(err, core.ErrNameConflict),
		errors.Is(err, core.ErrAliasConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotConfigured),
		errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrMaterialize):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		log.Printf("api: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func readJSON(req *http.Request, v interface{}) error {
	defer req.Body.Close()
	if err := json.NewDecoder(req.Body).Decode(v); err != nil && err != io.EOF {
		return err
	}
	// an empty body leaves v zeroed
	return nil
}
