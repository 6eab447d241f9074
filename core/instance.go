package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type WorkflowStatus int

const (
	StatusPendingApproval WorkflowStatus = iota + 1
	StatusApproved
	StatusRejected
	StatusCancelled
)

func (s WorkflowStatus) String() string {
	switch s {
	case StatusPendingApproval:
		return "Pending Approval"
	case StatusApproved:
		return "Approved"
	case StatusRejected:
		return "Rejected"
	case StatusCancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("Unknown (%d)", int(s))
}

type TaskStatus int

const (
	TaskNotStarted TaskStatus = iota // step has not been reached yet
	TaskPendingApproval
	TaskApproved
	TaskRejected
)

func (s TaskStatus) String() string {
	switch s {
	case TaskNotStarted:
		return "Not Started"
	case TaskPendingApproval:
		return "Pending Approval"
	case TaskApproved:
		return "Approved"
	case TaskRejected:
		return "Rejected"
	}
	return fmt.Sprintf("Unknown (%d)", int(s))
}

// ActionType is the content action a workflow approves. Values above
// ActionUnpublish are application-defined custom actions.
type ActionType int

const (
	ActionPublish   ActionType = 1
	ActionUnpublish ActionType = 2
)

func (t ActionType) String() string {
	switch t {
	case ActionPublish:
		return "Publish"
	case ActionUnpublish:
		return "Unpublish"
	}
	return fmt.Sprintf("Custom (%d)", int(t))
}

// An Instance is one approval process for one proposed action on one node.
// Once its status is terminal it is immutable.
type Instance struct {
	ID            int
	GUID          uuid.UUID // stable externally-shareable identifier
	NodeID        int
	Type          ActionType
	TotalSteps    int // snapshotted at creation, later config changes don't apply
	AuthorUserID  int
	AuthorComment string
	Status        WorkflowStatus
	CreatedDate   time.Time
	CompletedDate *time.Time
	ScheduledDate *time.Time
	Tasks         []*Task // one per step, ordered by step
}

func (in *Instance) Active() bool {
	return in.Status == StatusPendingApproval
}

// CurrentTask returns the pending task with the lowest step index, or nil if
// the instance is terminal or all steps are complete.
func (in *Instance) CurrentTask() *Task {
	if !in.Active() {
		return nil
	}
	for _, t := range in.Tasks {
		if t.Status == TaskPendingApproval {
			return t
		}
	}
	return nil
}

// TypeDescription describes the workflow action, including the scheduled
// date if one is set. Computed on read, never stored.
func (in *Instance) TypeDescription() string {
	if in.ScheduledDate != nil {
		return fmt.Sprintf("Schedule for %s at %s", in.Type, in.ScheduledDate.Format("02/01/06 15:04"))
	}
	return in.Type.String()
}

// A Task records one step's outcome within an instance. GroupID and GroupName
// are snapshots taken at instance creation, later group changes don't touch
// them.
type Task struct {
	ID               int
	InstanceGUID     uuid.UUID
	ApprovalStep     int
	GroupID          int
	GroupName        string
	Status           TaskStatus
	Comment          string
	ActionedByUserID *int
	CreatedDate      time.Time
	CompletedDate    *time.Time
}

func (t *Task) Active() bool {
	return t.Status == TaskPendingApproval
}

// A Finalize carries the terminal fields of an instance transition.
type Finalize struct {
	Status        WorkflowStatus
	CompletedDate time.Time
	ScheduledDate *time.Time
}

type InstanceDB interface {
	// InsertInstance stores a new instance together with all of its tasks as
	// one atomic unit and fills in the generated ids.
	InsertInstance(in *Instance) error

	GetInstance(guid uuid.UUID) (*Instance, error) // with tasks, ErrInstanceNotFound
	ActiveForNode(nodeID int) (*Instance, error)   // nil, nil if none
	InstancesForNode(nodeID int) ([]*Instance, error)
	AllInstances(limit, offset int) ([]*Instance, error)

	// ActionTask applies a terminal task transition, optionally activates the
	// next step's task and optionally finalizes the instance, all atomically.
	// The task update is guarded on the stored status still being pending, a
	// lost race returns ErrAlreadyFinalized without any partial write.
	ActionTask(task *Task, activateTaskID int, fin *Finalize) error

	// FinalizeInstance finalizes an instance without touching its tasks,
	// guarded on the stored status still being pending.
	FinalizeInstance(guid uuid.UUID, fin Finalize) error
}

// StartInstance resolves the node's approval chain, snapshots it into a new
// instance and stores it. At most one active instance per node is enforced
// here: the check and the create run under the node's lock. The Notifier
// runs with the lock released.
func (c *CoreDB) StartInstance(nodeID int, action ActionType, authorUserID int, comment string) (*Instance, error) {

	in, err := c.startLocked(nodeID, action, authorUserID, comment)
	if err != nil {
		return nil, err
	}

	c.Notifier.Notify(EventStarted, in, in.Tasks[0], Actor{UserID: authorUserID}, comment)
	return in, nil
}

func (c *CoreDB) startLocked(nodeID int, action ActionType, authorUserID int, comment string) (*Instance, error) {

	node, err := c.Nodes.GetNode(nodeID)
	if err != nil {
		return nil, err
	}

	chain, err := c.ResolveChain(nodeID, node.ContentTypeID)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, ErrNotConfigured
	}

	unlock := c.locks.lock(nodeKey(nodeID))
	defer unlock()

	if active, err := c.InstanceDB.ActiveForNode(nodeID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrAlreadyActive
	}

	var now = time.Now()
	var in = &Instance{
		GUID:          uuid.New(),
		NodeID:        nodeID,
		Type:          action,
		TotalSteps:    len(chain),
		AuthorUserID:  authorUserID,
		AuthorComment: comment,
		Status:        StatusPendingApproval,
		CreatedDate:   now,
	}

	for _, step := range chain {
		group, err := c.GroupDB.GetGroup(step.GroupID)
		if err != nil {
			return nil, err
		}
		var status = TaskNotStarted
		if step.Index == 0 {
			status = TaskPendingApproval
		}
		in.Tasks = append(in.Tasks, &Task{
			InstanceGUID: in.GUID,
			ApprovalStep: step.Index,
			GroupID:      group.ID(),
			GroupName:    group.Name(), // snapshot, survives later renames
			Status:       status,
			CreatedDate:  now,
		})
	}

	if err := c.InstanceDB.InsertInstance(in); err != nil {
		return nil, err
	}

	return in, nil
}

// PendingForNode returns the task currently requiring action for a node, or
// nil if the node has no active workflow.
func (c *CoreDB) PendingForNode(nodeID int) (*Task, error) {
	active, err := c.InstanceDB.ActiveForNode(nodeID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}
	return active.CurrentTask(), nil
}
