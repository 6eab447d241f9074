package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/kervik/signoff/core"
)

type taskJSON struct {
	ID               int    `json:"id"`
	InstanceGUID     string `json:"instanceGuid"`
	ApprovalStep     int    `json:"approvalStep"`
	GroupID          int    `json:"groupId"`
	GroupName        string `json:"groupName"`
	Status           string `json:"status"`
	Comment          string `json:"comment,omitempty"`
	ActionedByUserID *int   `json:"actionedByUserId,omitempty"`
	CompletedDate    *int64 `json:"completedDate,omitempty"`
}

type instanceJSON struct {
	ID            int        `json:"id"`
	GUID          string     `json:"guid"`
	NodeID        int        `json:"nodeId"`
	Type          string     `json:"type"`
	Description   string     `json:"description"`
	TotalSteps    int        `json:"totalSteps"`
	AuthorUserID  int        `json:"authorUserId"`
	AuthorComment string     `json:"authorComment,omitempty"`
	Status        string     `json:"status"`
	CreatedDate   int64      `json:"createdDate"`
	CompletedDate *int64     `json:"completedDate,omitempty"`
	ScheduledDate *int64     `json:"scheduledDate,omitempty"`
	Tasks         []taskJSON `json:"tasks"`
}

func toTaskJSON(t *core.Task) taskJSON {
	var tj = taskJSON{
		ID:               t.ID,
		InstanceGUID:     t.InstanceGUID.String(),
		ApprovalStep:     t.ApprovalStep,
		GroupID:          t.GroupID,
		GroupName:        t.GroupName,
		Status:           t.Status.String(),
		Comment:          t.Comment,
		ActionedByUserID: t.ActionedByUserID,
	}
	if t.CompletedDate != nil {
		var ts = t.CompletedDate.Unix()
		tj.CompletedDate = &ts
	}
	return tj
}

func toInstanceJSON(in *core.Instance) instanceJSON {
	var ij = instanceJSON{
		ID:            in.ID,
		GUID:          in.GUID.String(),
		NodeID:        in.NodeID,
		Type:          in.Type.String(),
		Description:   in.TypeDescription(),
		TotalSteps:    in.TotalSteps,
		AuthorUserID:  in.AuthorUserID,
		AuthorComment: in.AuthorComment,
		Status:        in.Status.String(),
		CreatedDate:   in.CreatedDate.Unix(),
		Tasks:         []taskJSON{},
	}
	if in.CompletedDate != nil {
		var ts = in.CompletedDate.Unix()
		ij.CompletedDate = &ts
	}
	if in.ScheduledDate != nil {
		var ts = in.ScheduledDate.Unix()
		ij.ScheduledDate = &ts
	}
	for _, t := range in.Tasks {
		ij.Tasks = append(ij.Tasks, toTaskJSON(t))
	}
	return ij
}

func (s *Server) startInstance(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	var body struct {
		NodeID  int    `json:"nodeId"`
		Type    int    `json:"type"`
		Comment string `json:"comment"`
	}
	if err := readJSON(req, &body); err != nil {
		return err
	}

	in, err := s.db.StartInstance(body.NodeID, core.ActionType(body.Type), actor.UserID, body.Comment)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, toInstanceJSON(in))
}

func (s *Server) getInstance(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	guid, err := uuid.Parse(params.ByName("guid"))
	if err != nil {
		return core.ErrInstanceNotFound
	}

	in, err := s.db.InstanceDB.GetInstance(guid)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toInstanceJSON(in))
}

func (s *Server) getInstances(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	var query = req.URL.Query()

	if nodeArg := query.Get("node"); nodeArg != "" {
		nodeID, err := strconv.Atoi(nodeArg)
		if err != nil {
			return err
		}
		all, err := s.db.InstanceDB.InstancesForNode(nodeID)
		if err != nil {
			return err
		}
		return writeInstances(w, all)
	}

	var limit, offset = 100, 0
	if limitArg := query.Get("limit"); limitArg != "" {
		var err error
		if limit, err = strconv.Atoi(limitArg); err != nil {
			return err
		}
	}
	if offsetArg := query.Get("offset"); offsetArg != "" {
		var err error
		if offset, err = strconv.Atoi(offsetArg); err != nil {
			return err
		}
	}

	all, err := s.db.InstanceDB.AllInstances(limit, offset)
	if err != nil {
		return err
	}
	return writeInstances(w, all)
}

func writeInstances(w http.ResponseWriter, all []*core.Instance) error {
	var result = []instanceJSON{}
	for _, in := range all {
		result = append(result, toInstanceJSON(in))
	}
	return writeJSON(w, http.StatusOK, result)
}

// pendingForNode backs the document drawer: is there a task requiring action,
// and may the current user act on it.
func (s *Server) pendingForNode(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {

	nodeID, err := strconv.Atoi(params.ByName("id"))
	if err != nil {
		return err
	}

	task, err := s.db.PendingForNode(nodeID)
	if err != nil {
		return err
	}
	if task == nil {
		return writeJSON(w, http.StatusOK, map[string]interface{}{"pending": false})
	}

	var canAction = actor.Admin
	if !canAction {
		group, err := s.db.GroupDB.GetGroup(task.GroupID)
		if err != nil {
			return err
		}
		if canAction, err = group.HasMember(actor.UserID); err != nil {
			return err
		}
	}

	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":   true,
		"task":      toTaskJSON(task),
		"canAction": canAction,
		"admin":     actor.Admin,
	})
}

type actionBody struct {
	Comment string `json:"comment"`
}

func (s *Server) action(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params,
	do func(uuid.UUID, core.Actor, string) (*core.Instance, error)) error {

	guid, err := uuid.Parse(params.ByName("guid"))
	if err != nil {
		return core.ErrInstanceNotFound
	}

	var body actionBody
	if err := readJSON(req, &body); err != nil {
		return err
	}

	in, err := do(guid, actor, body.Comment)
	if err != nil {
		if errors.Is(err, core.ErrMaterialize) && in != nil {
			// the approval is committed, the content change is not
			return writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":    err.Error(),
				"instance": toInstanceJSON(in),
			})
		}
		return err
	}
	return writeJSON(w, http.StatusOK, toInstanceJSON(in))
}

func (s *Server) approve(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {
	return s.action(w, req, actor, params, s.db.Approve)
}

func (s *Server) reject(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {
	return s.action(w, req, actor, params, s.db.Reject)
}

func (s *Server) cancel(w http.ResponseWriter, req *http.Request, actor core.Actor, params httprouter.Params) error {
	return s.action(w, req, actor, params, s.db.Cancel)
}
