package memdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervik/signoff/core"
)

func testInstance() *core.Instance {
	var guid = uuid.New()
	var now = time.Now()
	return &core.Instance{
		GUID:        guid,
		NodeID:      7,
		Type:        core.ActionPublish,
		TotalSteps:  2,
		Status:      core.StatusPendingApproval,
		CreatedDate: now,
		Tasks: []*core.Task{
			{InstanceGUID: guid, ApprovalStep: 0, GroupID: 1, GroupName: "Editors", Status: core.TaskPendingApproval, CreatedDate: now},
			{InstanceGUID: guid, ApprovalStep: 1, GroupID: 2, GroupName: "Publishers", Status: core.TaskNotStarted, CreatedDate: now},
		},
	}
}

func TestInsertInstanceAssignsIDs(t *testing.T) {
	db := NewInstanceDB()

	in := testInstance()
	require.NoError(t, db.InsertInstance(in))
	assert.NotZero(t, in.ID)
	assert.NotZero(t, in.Tasks[0].ID)
	assert.NotZero(t, in.Tasks[1].ID)
	assert.NotEqual(t, in.Tasks[0].ID, in.Tasks[1].ID)

	// mutating the inserted value must not leak into the store
	in.Tasks[0].Status = core.TaskApproved
	stored, err := db.GetInstance(in.GUID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskPendingApproval, stored.Tasks[0].Status)
}

func TestActionTaskGuards(t *testing.T) {
	db := NewInstanceDB()

	in := testInstance()
	require.NoError(t, db.InsertInstance(in))

	var now = time.Now()
	var userID = 10
	var update = &core.Task{
		ID:               in.Tasks[0].ID,
		InstanceGUID:     in.GUID,
		Status:           core.TaskApproved,
		Comment:          "fine",
		ActionedByUserID: &userID,
		CompletedDate:    &now,
	}

	require.NoError(t, db.ActionTask(update, in.Tasks[1].ID, nil))

	stored, err := db.GetInstance(in.GUID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskApproved, stored.Tasks[0].Status)
	assert.Equal(t, core.TaskPendingApproval, stored.Tasks[1].Status)
	assert.True(t, stored.Active())

	// the same transition again loses against the status guard
	err = db.ActionTask(update, in.Tasks[1].ID, nil)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)
}

func TestActionTaskFinalizes(t *testing.T) {
	db := NewInstanceDB()

	in := testInstance()
	require.NoError(t, db.InsertInstance(in))

	var now = time.Now()
	require.NoError(t, db.ActionTask(&core.Task{
		ID:            in.Tasks[0].ID,
		InstanceGUID:  in.GUID,
		Status:        core.TaskRejected,
		CompletedDate: &now,
	}, 0, &core.Finalize{Status: core.StatusRejected, CompletedDate: now}))

	stored, err := db.GetInstance(in.GUID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRejected, stored.Status)
	require.NotNil(t, stored.CompletedDate)
	assert.Equal(t, core.TaskNotStarted, stored.Tasks[1].Status)

	active, err := db.ActiveForNode(7)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestFinalizeInstanceGuard(t *testing.T) {
	db := NewInstanceDB()

	in := testInstance()
	require.NoError(t, db.InsertInstance(in))

	var fin = core.Finalize{Status: core.StatusCancelled, CompletedDate: time.Now()}
	require.NoError(t, db.FinalizeInstance(in.GUID, fin))
	require.ErrorIs(t, db.FinalizeInstance(in.GUID, fin), core.ErrAlreadyFinalized)

	require.ErrorIs(t, db.FinalizeInstance(uuid.New(), fin), core.ErrInstanceNotFound)
}

func TestAllInstancesPaging(t *testing.T) {
	db := NewInstanceDB()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.InsertInstance(testInstance()))
	}

	page, err := db.AllInstances(2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].ID)

	page, err = db.AllInstances(2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 5, page[0].ID)
}
