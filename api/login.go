package api

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/kervik/signoff/core"
)

var errLogin = errors.New("wrong username or password")

func (s *Server) login(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	var body struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := readJSON(req, &body); err != nil {
		return err
	}

	user, err := s.db.LoginUser(body.Name, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errLogin)
		return nil
	}

	// session fixation
	if err := s.db.SessionManager.RenewToken(req.Context()); err != nil {
		return err
	}
	s.db.SessionManager.Put(req.Context(), "uid", user.ID())

	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId": user.ID(),
		"name":   user.Name(),
		"admin":  user.Admin(),
	})
}

func (s *Server) logout(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {
	s.db.SessionManager.Remove(req.Context(), "uid")
	return writeJSON(w, http.StatusOK, map[string]string{"status": "goodbye"})
}
