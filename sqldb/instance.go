package sqldb

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/kervik/signoff/core"
)

type InstanceDB struct {
	db            *sql.DB
	insert        *sql.Stmt
	insertTask    *sql.Stmt
	get           *sql.Stmt
	getTasks      *sql.Stmt
	activeForNode *sql.Stmt
	forNode       *sql.Stmt
	getAll        *sql.Stmt
	actionTask    *sql.Stmt
	activateTask  *sql.Stmt
	finalize      *sql.Stmt
}

func NewInstanceDB(db *sql.DB) *InstanceDB {

	db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_instance (
			id INTEGER PRIMARY KEY,
			guid char(36) NOT NULL,
			nodeId int(11) NOT NULL,
			type int(11) NOT NULL,
			totalSteps int(11) NOT NULL,
			authorUserId int(11) NOT NULL,
			authorComment text NOT NULL,
			status int(11) NOT NULL,
			createdDate int(11) NOT NULL,
			completedDate int(11) NOT NULL DEFAULT 0,
			scheduledDate int(11) NOT NULL DEFAULT 0,
			UNIQUE(guid)
		);
		CREATE TABLE IF NOT EXISTS workflow_task (
			id INTEGER PRIMARY KEY,
			instanceGuid char(36) NOT NULL,
			approvalStep int(11) NOT NULL,
			groupId int(11) NOT NULL,
			groupName varchar(64) NOT NULL,
			status int(11) NOT NULL,
			comment text NOT NULL DEFAULT '',
			actionedByUserId int(11) NOT NULL DEFAULT 0,
			createdDate int(11) NOT NULL,
			completedDate int(11) NOT NULL DEFAULT 0,
			UNIQUE(instanceGuid, approvalStep)
		);`)

	var instanceDB = &InstanceDB{}
	instanceDB.db = db
	instanceDB.insert = mustPrepare(db, "INSERT INTO workflow_instance (guid, nodeId, type, totalSteps, authorUserId, authorComment, status, createdDate) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	instanceDB.insertTask = mustPrepare(db, "INSERT INTO workflow_task (instanceGuid, approvalStep, groupId, groupName, status, createdDate) VALUES (?, ?, ?, ?, ?, ?)")
	instanceDB.get = mustPrepare(db, "SELECT id, guid, nodeId, type, totalSteps, authorUserId, authorComment, status, createdDate, completedDate, scheduledDate FROM workflow_instance WHERE guid = ? LIMIT 1")
	instanceDB.getTasks = mustPrepare(db, "SELECT id, instanceGuid, approvalStep, groupId, groupName, status, comment, actionedByUserId, createdDate, completedDate FROM workflow_task WHERE instanceGuid = ? ORDER BY approvalStep")
	instanceDB.activeForNode = mustPrepare(db, "SELECT guid FROM workflow_instance WHERE nodeId = ? AND status = ? LIMIT 1")
	instanceDB.forNode = mustPrepare(db, "SELECT guid FROM workflow_instance WHERE nodeId = ? ORDER BY id")
	instanceDB.getAll = mustPrepare(db, "SELECT guid FROM workflow_instance ORDER BY id LIMIT ? OFFSET ?")
	// the status guard makes concurrent transitions lose cleanly
	instanceDB.actionTask = mustPrepare(db, "UPDATE workflow_task SET status = ?, comment = ?, actionedByUserId = ?, completedDate = ? WHERE id = ? AND status = ?")
	instanceDB.activateTask = mustPrepare(db, "UPDATE workflow_task SET status = ? WHERE id = ? AND status = ?")
	instanceDB.finalize = mustPrepare(db, "UPDATE workflow_instance SET status = ?, completedDate = ?, scheduledDate = ? WHERE guid = ? AND status = ?")
	return instanceDB
}

func (db *InstanceDB) InsertInstance(in *core.Instance) error {

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	res, err := tx.Stmt(db.insert).Exec(in.GUID.String(), in.NodeID, int(in.Type), in.TotalSteps, in.AuthorUserID, in.AuthorComment, int(in.Status), in.CreatedDate.Unix())
	if err != nil {
		tx.Rollback()
		return storageErr("insert workflow", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return storageErr("insert workflow", err)
	}
	in.ID = int(id)

	for _, t := range in.Tasks {
		res, err := tx.Stmt(db.insertTask).Exec(t.InstanceGUID.String(), t.ApprovalStep, t.GroupID, t.GroupName, int(t.Status), t.CreatedDate.Unix())
		if err != nil {
			tx.Rollback()
			return storageErr("insert workflow", err)
		}
		taskID, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return storageErr("insert workflow", err)
		}
		t.ID = int(taskID)
	}

	return tx.Commit()
}

func (db *InstanceDB) scanInstance(row *sql.Row) (*core.Instance, error) {

	var in = &core.Instance{}
	var guid string
	var created, completed, scheduled int64
	err := row.Scan(&in.ID, &guid, &in.NodeID, (*int)(&in.Type), &in.TotalSteps, &in.AuthorUserID, &in.AuthorComment, (*int)(&in.Status), &created, &completed, &scheduled)
	if err == sql.ErrNoRows {
		return nil, core.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}

	if in.GUID, err = uuid.Parse(guid); err != nil {
		return nil, err
	}
	in.CreatedDate = *fromUnix(created)
	in.CompletedDate = fromUnix(completed)
	in.ScheduledDate = fromUnix(scheduled)

	rows, err := db.getTasks.Query(guid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t = &core.Task{}
		var taskGUID string
		var actionedBy int
		var taskCreated, taskCompleted int64
		if err = rows.Scan(&t.ID, &taskGUID, &t.ApprovalStep, &t.GroupID, &t.GroupName, (*int)(&t.Status), &t.Comment, &actionedBy, &taskCreated, &taskCompleted); err != nil {
			return nil, err
		}
		if t.InstanceGUID, err = uuid.Parse(taskGUID); err != nil {
			return nil, err
		}
		if actionedBy != 0 {
			t.ActionedByUserID = &actionedBy
		}
		t.CreatedDate = *fromUnix(taskCreated)
		t.CompletedDate = fromUnix(taskCompleted)
		in.Tasks = append(in.Tasks, t)
	}

	return in, nil
}

func (db *InstanceDB) GetInstance(guid uuid.UUID) (*core.Instance, error) {
	return db.scanInstance(db.get.QueryRow(guid.String()))
}

func (db *InstanceDB) ActiveForNode(nodeID int) (*core.Instance, error) {

	var guid string
	err := db.activeForNode.QueryRow(nodeID, int(core.StatusPendingApproval)).Scan(&guid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(guid)
	if err != nil {
		return nil, err
	}
	return db.GetInstance(parsed)
}

func (db *InstanceDB) getMultiple(stmt *sql.Stmt, args ...interface{}) ([]*core.Instance, error) {

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var guids []uuid.UUID
	for rows.Next() {
		var guid string
		if err = rows.Scan(&guid); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(guid)
		if err != nil {
			return nil, err
		}
		guids = append(guids, parsed)
	}
	rows.Close()

	var all = []*core.Instance{}
	for _, guid := range guids {
		in, err := db.GetInstance(guid)
		if err != nil {
			return nil, err
		}
		all = append(all, in)
	}
	return all, nil
}

func (db *InstanceDB) InstancesForNode(nodeID int) ([]*core.Instance, error) {
	return db.getMultiple(db.forNode, nodeID)
}

func (db *InstanceDB) AllInstances(limit, offset int) ([]*core.Instance, error) {
	return db.getMultiple(db.getAll, limit, offset)
}

func (db *InstanceDB) ActionTask(task *core.Task, activateTaskID int, fin *core.Finalize) error {

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	var actionedBy = 0
	if task.ActionedByUserID != nil {
		actionedBy = *task.ActionedByUserID
	}

	res, err := tx.Stmt(db.actionTask).Exec(int(task.Status), task.Comment, actionedBy, toUnix(task.CompletedDate), task.ID, int(core.TaskPendingApproval))
	if err != nil {
		tx.Rollback()
		return storageErr("action task", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		tx.Rollback()
		return storageErr("action task", err)
	} else if affected == 0 {
		tx.Rollback()
		return core.ErrAlreadyFinalized
	}

	if activateTaskID != 0 {
		if _, err = tx.Stmt(db.activateTask).Exec(int(core.TaskPendingApproval), activateTaskID, int(core.TaskNotStarted)); err != nil {
			tx.Rollback()
			return storageErr("action task", err)
		}
	}

	if fin != nil {
		res, err := tx.Stmt(db.finalize).Exec(int(fin.Status), fin.CompletedDate.Unix(), toUnix(fin.ScheduledDate), task.InstanceGUID.String(), int(core.StatusPendingApproval))
		if err != nil {
			tx.Rollback()
			return storageErr("action task", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			tx.Rollback()
			return storageErr("action task", err)
		} else if affected == 0 {
			tx.Rollback()
			return core.ErrAlreadyFinalized
		}
	}

	return tx.Commit()
}

func (db *InstanceDB) FinalizeInstance(guid uuid.UUID, fin core.Finalize) error {

	res, err := db.finalize.Exec(int(fin.Status), fin.CompletedDate.Unix(), toUnix(fin.ScheduledDate), guid.String(), int(core.StatusPendingApproval))
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return core.ErrAlreadyFinalized
	}
	return nil
}
