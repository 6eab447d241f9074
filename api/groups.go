package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/kervik/signoff/core"
)

type groupJSON struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Alias       string `json:"alias"`
	Description string `json:"description"`
	Deleted     bool   `json:"deleted"`
	Members     []int  `json:"members"`
}

func toGroupJSON(g core.DBGroup) (groupJSON, error) {
	members, err := g.Members()
	if err != nil {
		return groupJSON{}, err
	}
	var ids = make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return groupJSON{
		ID:          g.ID(),
		Name:        g.Name(),
		Alias:       g.Alias(),
		Description: g.Description(),
		Deleted:     g.Deleted(),
		Members:     ids,
	}, nil
}

func (s *Server) getGroups(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	groups, err := s.db.GetAllGroups(req.URL.Query().Get("includeDeleted") == "true")
	if err != nil {
		return err
	}

	var result = []groupJSON{}
	for _, g := range groups {
		gj, err := toGroupJSON(g)
		if err != nil {
			return err
		}
		result = append(result, gj)
	}
	return writeJSON(w, http.StatusOK, result)
}

func (s *Server) getGroup(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	id, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	g, err := s.db.GroupDB.GetGroup(id)
	if err != nil {
		return err
	}

	gj, err := toGroupJSON(g)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, gj)
}

func (s *Server) addGroup(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	var body struct {
		Name string `json:"name"`
	}
	if err := readJSON(req, &body); err != nil {
		return err
	}

	g, err := s.db.CreateGroup(body.Name)
	if err != nil {
		return err
	}

	// the id lets the client route to the edit view
	return writeJSON(w, http.StatusCreated, map[string]interface{}{"id": g.ID()})
}

func (s *Server) saveGroup(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	id, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	var body groupJSON
	if err := readJSON(req, &body); err != nil {
		return err
	}

	g, err := s.db.SaveGroup(id, body.Name, body.Alias, body.Description, body.Members)
	if err != nil {
		return err
	}

	gj, err := toGroupJSON(g)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, gj)
}

func (s *Server) deleteGroup(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	id, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	// existing workflow instances keep their group snapshots
	if err := s.db.DeleteGroup(id); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
