package api

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/kervik/signoff/core"
)

func (s *Server) unconfiguredRoots(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {
	names, err := s.db.ListUnconfiguredRoots(s.excludedRoots)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, names)
}

// chain payload: ordered group ids, step indices are implied by position
type chainJSON struct {
	Groups []int `json:"groups"`
}

func toChain(groups []int) core.Chain {
	var chain = make(core.Chain, len(groups))
	for i, groupID := range groups {
		chain[i] = core.Step{Index: i, GroupID: groupID}
	}
	return chain
}

func (s *Server) getNodeConfig(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	nodeID, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	node, err := s.db.Nodes.GetNode(nodeID)
	if err != nil {
		return err
	}

	chain, err := s.db.ResolveChain(nodeID, node.ContentTypeID)
	if err != nil {
		return err
	}

	var groups = []int{}
	for _, step := range chain {
		groups = append(groups, step.GroupID)
	}
	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": chain != nil,
		"groups":     groups,
	})
}

func (s *Server) saveNodeConfig(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	nodeID, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	var body chainJSON
	if err := readJSON(req, &body); err != nil {
		return err
	}

	if err := s.db.SetNodeChain(nodeID, toChain(body.Groups)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) saveTypeConfig(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	typeID, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	var body chainJSON
	if err := readJSON(req, &body); err != nil {
		return err
	}

	if err := s.db.SetTypeChain(typeID, toChain(body.Groups)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
