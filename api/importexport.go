package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/kervik/signoff/core"
)

func (s *Server) export(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {
	snap, err := s.db.Export()
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

func (s *Server) importSnapshot(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	var snap core.Snapshot
	if err := readJSON(req, &snap); err != nil {
		return err
	}

	if err := s.db.Import(&snap); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}
