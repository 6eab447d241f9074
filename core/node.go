package core

import "time"

// A Node is the content-node metadata the workflow core needs. The content
// tree itself lives outside the core, nodes enter every operation through the
// NodeStore collaborator.
type Node struct {
	ID            int
	Name          string
	ContentTypeID int
	ParentID      int // 0 means root node
	ReleaseDate   *time.Time
	ExpireDate    *time.Time
}

func (n Node) Root() bool {
	return n.ParentID == 0
}

type NodeStore interface {
	GetNode(id int) (Node, error) // returns ErrNodeNotFound for unknown ids
	Roots() ([]Node, error)
}

// A Materializer applies a fully approved action to its content node.
// It is called after the workflow transition has been committed.
type Materializer interface {
	ApplyAction(nodeID int, action ActionType, scheduled *time.Time) error
}

// Event kinds passed to the Notifier.
const (
	EventStarted   = "started"
	EventApproved  = "approved" // one step approved, more steps remain
	EventComplete  = "complete" // final step approved
	EventRejected  = "rejected"
	EventCancelled = "cancelled"
)

// A Notifier is told about workflow transitions after they have been
// committed. Delivery (email etc.) is the implementer's concern.
type Notifier interface {
	Notify(event string, instance *Instance, task *Task, actor Actor, comment string)
}

// LogNotifier is the default Notifier, it only logs.
type LogNotifier struct {
	Printf func(format string, args ...interface{})
}

func (n LogNotifier) Notify(event string, instance *Instance, task *Task, actor Actor, comment string) {
	if n.Printf != nil {
		n.Printf("workflow %s %s (node %d, user %d)", instance.GUID, event, instance.NodeID, actor.UserID)
	}
}
