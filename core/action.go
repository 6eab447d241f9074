package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lockTable hands out one mutex per key. Entries are removed when the last
// holder releases, so the table stays bounded by in-flight operations.
type lockTable struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func nodeKey(nodeID int) string {
	return fmt.Sprintf("node/%d", nodeID)
}

func instanceKey(guid uuid.UUID) string {
	return "instance/" + guid.String()
}

func (lt *lockTable) lock(key string) (unlock func()) {

	lt.mu.Lock()
	if lt.held == nil {
		lt.held = make(map[string]*lockEntry)
	}
	entry, ok := lt.held[key]
	if !ok {
		entry = &lockEntry{}
		lt.held[key] = entry
	}
	entry.refs++
	lt.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		lt.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(lt.held, key)
		}
		lt.mu.Unlock()
	}
}

// authorizeTask checks that the actor may act on the task's step: membership
// of the step's group, or the admin override. The membership check runs
// against the live group, the task's GroupName snapshot is history only.
func (c *CoreDB) authorizeTask(task *Task, actor Actor) error {

	if actor.Admin {
		return nil
	}

	group, err := c.GroupDB.GetGroup(task.GroupID)
	if err != nil {
		return err
	}

	ok, err := group.HasMember(actor.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}

	return nil
}

// Approve approves the current step of a workflow. If this was the final
// step, the instance is finalized as Approved, the scheduled date is computed
// and stored, and the approved action is handed to the Materializer after the
// transition has been committed. Otherwise the next step is activated.
// The Notifier and the Materializer run with the instance lock released, so
// their implementations may act on the workflow themselves.
func (c *CoreDB) Approve(guid uuid.UUID, actor Actor, comment string) (*Instance, error) {

	in, task, err := c.approveLocked(guid, actor, comment)
	if err != nil {
		return nil, err
	}

	if in.Active() {
		c.Notifier.Notify(EventApproved, in, task, actor, comment)
		return in, nil
	}

	c.Notifier.Notify(EventComplete, in, task, actor, comment)

	// the workflow state is committed, a materialization failure is
	// reported separately and can be retried by the caller
	if err := c.Materializer.ApplyAction(in.NodeID, in.Type, in.ScheduledDate); err != nil {
		return in, fmt.Errorf("%w: %v", ErrMaterialize, err)
	}

	return in, nil
}

func (c *CoreDB) approveLocked(guid uuid.UUID, actor Actor, comment string) (*Instance, *Task, error) {

	unlock := c.locks.lock(instanceKey(guid))
	defer unlock()

	in, err := c.InstanceDB.GetInstance(guid)
	if err != nil {
		return nil, nil, err
	}

	task := in.CurrentTask()
	if task == nil {
		return nil, nil, ErrAlreadyFinalized
	}

	if err := c.authorizeTask(task, actor); err != nil {
		return nil, nil, err
	}

	var now = time.Now()
	task.Status = TaskApproved
	task.Comment = comment
	task.ActionedByUserID = &actor.UserID
	task.CompletedDate = &now

	var activateID int
	var fin *Finalize

	if task.ApprovalStep == in.TotalSteps-1 {
		node, err := c.Nodes.GetNode(in.NodeID)
		if err != nil {
			return nil, nil, err
		}
		fin = &Finalize{
			Status:        StatusApproved,
			CompletedDate: now,
			ScheduledDate: ScheduledDate(in.Type, node, now),
		}
	} else {
		next := in.Tasks[task.ApprovalStep+1]
		activateID = next.ID
	}

	if err := c.InstanceDB.ActionTask(task, activateID, fin); err != nil {
		return nil, nil, err
	}

	if fin != nil {
		in.Status = fin.Status
		in.CompletedDate = &fin.CompletedDate
		in.ScheduledDate = fin.ScheduledDate
	} else {
		in.Tasks[task.ApprovalStep+1].Status = TaskPendingApproval
	}

	return in, task, nil
}

// Reject rejects the current step. A single rejection finalizes the whole
// instance as Rejected, later steps are left as never started.
func (c *CoreDB) Reject(guid uuid.UUID, actor Actor, comment string) (*Instance, error) {

	in, task, err := c.rejectLocked(guid, actor, comment)
	if err != nil {
		return nil, err
	}

	c.Notifier.Notify(EventRejected, in, task, actor, comment)
	return in, nil
}

func (c *CoreDB) rejectLocked(guid uuid.UUID, actor Actor, comment string) (*Instance, *Task, error) {

	unlock := c.locks.lock(instanceKey(guid))
	defer unlock()

	in, err := c.InstanceDB.GetInstance(guid)
	if err != nil {
		return nil, nil, err
	}

	task := in.CurrentTask()
	if task == nil {
		return nil, nil, ErrAlreadyFinalized
	}

	if err := c.authorizeTask(task, actor); err != nil {
		return nil, nil, err
	}

	var now = time.Now()
	task.Status = TaskRejected
	task.Comment = comment
	task.ActionedByUserID = &actor.UserID
	task.CompletedDate = &now

	var fin = &Finalize{Status: StatusRejected, CompletedDate: now}
	if err := c.InstanceDB.ActionTask(task, 0, fin); err != nil {
		return nil, nil, err
	}

	in.Status = StatusRejected
	in.CompletedDate = &now
	return in, task, nil
}

// Cancel withdraws an in-flight workflow. Only the admin override may cancel.
// The pending task is left as-is, the instance status governs whether
// anything is actionable.
func (c *CoreDB) Cancel(guid uuid.UUID, actor Actor, comment string) (*Instance, error) {

	if !actor.Admin {
		return nil, ErrUnauthorized
	}

	in, err := c.cancelLocked(guid)
	if err != nil {
		return nil, err
	}

	c.Notifier.Notify(EventCancelled, in, nil, actor, comment)
	return in, nil
}

func (c *CoreDB) cancelLocked(guid uuid.UUID) (*Instance, error) {

	unlock := c.locks.lock(instanceKey(guid))
	defer unlock()

	in, err := c.InstanceDB.GetInstance(guid)
	if err != nil {
		return nil, err
	}

	if !in.Active() {
		return nil, ErrAlreadyFinalized
	}

	var now = time.Now()
	var fin = Finalize{Status: StatusCancelled, CompletedDate: now}
	if err := c.InstanceDB.FinalizeInstance(guid, fin); err != nil {
		return nil, err
	}

	in.Status = StatusCancelled
	in.CompletedDate = &now
	return in, nil
}
