package sqldb

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervik/signoff/core"
)

// openTestDB opens a per-test in-memory database. cache=shared keeps it alive
// across pooled connections, a single connection avoids table locking.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGroupStore(t *testing.T) {
	db := NewGroupDB(openTestDB(t))

	g, err := db.InsertGroup("Editors", "editors", "newsroom staff")
	require.NoError(t, err)
	assert.Equal(t, "Editors", g.Name())
	assert.Equal(t, "newsroom staff", g.Description())
	assert.False(t, g.Deleted())

	byName, err := db.GetGroupByName("Editors")
	require.NoError(t, err)
	assert.Equal(t, g.ID(), byName.ID())
	byAlias, err := db.GetGroupByAlias("editors")
	require.NoError(t, err)
	assert.Equal(t, g.ID(), byAlias.ID())

	_, err = db.GetGroupByName("Ghosts")
	require.ErrorIs(t, err, core.ErrGroupNotFound)

	require.NoError(t, db.UpdateGroup(g.ID(), "Editors", "editors", "", []int{5, 6}))
	g, err = db.GetGroup(g.ID())
	require.NoError(t, err)
	ok, err := g.HasMember(5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.HasMember(7)
	require.NoError(t, err)
	assert.False(t, ok)

	// updating replaces the member set
	require.NoError(t, db.UpdateGroup(g.ID(), "Editors", "editors", "", []int{7}))
	g, err = db.GetGroup(g.ID())
	require.NoError(t, err)
	ok, err = g.HasMember(5)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.SoftDeleteGroup(g.ID()))

	// soft-deleted groups are invisible to the name and alias lookups
	_, err = db.GetGroupByName("Editors")
	require.ErrorIs(t, err, core.ErrGroupNotFound)

	// but still loadable by id
	g, err = db.GetGroup(g.ID())
	require.NoError(t, err)
	assert.True(t, g.Deleted())

	visible, err := db.GetAllGroups(false)
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := db.GetAllGroups(true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGroupStoreReplaceAll(t *testing.T) {
	db := NewGroupDB(openTestDB(t))

	_, err := db.InsertGroup("Old", "old", "")
	require.NoError(t, err)

	require.NoError(t, db.ReplaceAllGroups([]core.GroupExport{
		{Name: "Editors", Alias: "editors", Members: []int{1, 2}},
		{Name: "Retired", Alias: "retired", Deleted: true},
	}))

	_, err = db.GetGroupByAlias("old")
	require.ErrorIs(t, err, core.ErrGroupNotFound)

	g, err := db.GetGroupByAlias("editors")
	require.NoError(t, err)
	members, err := g.Members()
	require.NoError(t, err)
	assert.Len(t, members, 2)

	all, err := db.GetAllGroups(true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUserStore(t *testing.T) {
	db := NewUserDB(openTestDB(t))

	u, err := db.InsertUser(" Alice@Example.Com ")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Name())
	assert.False(t, u.Admin())

	// no password set yet, nothing logs in
	_, err = db.LoginUser("alice@example.com", "")
	require.ErrorIs(t, err, core.ErrUnauthorized)

	require.NoError(t, db.SetPassword(u, "secret"))

	_, err = db.LoginUser("alice@example.com", "wrong")
	require.ErrorIs(t, err, core.ErrUnauthorized)
	logged, err := db.LoginUser("Alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.ID(), logged.ID())

	require.NoError(t, db.SetAdmin(u, true))
	u, err = db.GetUserByName("alice@example.com")
	require.NoError(t, err)
	assert.True(t, u.Admin())

	_, err = db.GetUser(404)
	require.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestConfigStore(t *testing.T) {
	db := NewConfigDB(openTestDB(t))

	chain, err := db.NodeChain(7)
	require.NoError(t, err)
	assert.Nil(t, chain)

	require.NoError(t, db.ReplaceNodeChain(7, core.Chain{
		{Index: 0, GroupID: 1},
		{Index: 1, GroupID: 2},
	}))
	require.NoError(t, db.ReplaceTypeChain(3, core.Chain{{Index: 0, GroupID: 2}}))

	chain, err = db.NodeChain(7)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, core.Step{Index: 0, GroupID: 1}, chain[0])
	assert.Equal(t, core.Step{Index: 1, GroupID: 2}, chain[1])

	// node and type scopes don't bleed into each other
	chain, err = db.TypeChain(7)
	require.NoError(t, err)
	assert.Nil(t, chain)

	// an empty replacement clears the entry
	require.NoError(t, db.ReplaceNodeChain(7, nil))
	chain, err = db.NodeChain(7)
	require.NoError(t, err)
	assert.Nil(t, chain)

	require.NoError(t, db.ReplaceAllChains(
		map[int]core.Chain{5: {{Index: 0, GroupID: 9}}},
		map[int]core.Chain{},
	))
	nodeChains, err := db.AllNodeChains()
	require.NoError(t, err)
	assert.Len(t, nodeChains, 1)
	typeChains, err := db.AllTypeChains()
	require.NoError(t, err)
	assert.Empty(t, typeChains)
}

func testStoredInstance() *core.Instance {
	var guid = uuid.New()
	var now = time.Now().Truncate(time.Second)
	return &core.Instance{
		GUID:          guid,
		NodeID:        7,
		Type:          core.ActionPublish,
		TotalSteps:    2,
		AuthorUserID:  1,
		AuthorComment: "please review",
		Status:        core.StatusPendingApproval,
		CreatedDate:   now,
		Tasks: []*core.Task{
			{InstanceGUID: guid, ApprovalStep: 0, GroupID: 1, GroupName: "Editors", Status: core.TaskPendingApproval, CreatedDate: now},
			{InstanceGUID: guid, ApprovalStep: 1, GroupID: 2, GroupName: "Publishers", Status: core.TaskNotStarted, CreatedDate: now},
		},
	}
}

func TestInstanceStore(t *testing.T) {
	db := NewInstanceDB(openTestDB(t))

	in := testStoredInstance()
	require.NoError(t, db.InsertInstance(in))
	require.NotZero(t, in.ID)
	require.NotZero(t, in.Tasks[0].ID)

	stored, err := db.GetInstance(in.GUID)
	require.NoError(t, err)
	assert.Equal(t, in.GUID, stored.GUID)
	assert.Equal(t, core.ActionPublish, stored.Type)
	assert.Equal(t, "please review", stored.AuthorComment)
	assert.Equal(t, in.CreatedDate.Unix(), stored.CreatedDate.Unix())
	assert.Nil(t, stored.CompletedDate)
	require.Len(t, stored.Tasks, 2)
	assert.Equal(t, "Editors", stored.Tasks[0].GroupName)
	assert.Equal(t, core.TaskNotStarted, stored.Tasks[1].Status)
	assert.Nil(t, stored.Tasks[0].ActionedByUserID)

	active, err := db.ActiveForNode(7)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, in.GUID, active.GUID)

	_, err = db.GetInstance(uuid.New())
	require.ErrorIs(t, err, core.ErrInstanceNotFound)
}

func TestInstanceStoreActionTask(t *testing.T) {
	db := NewInstanceDB(openTestDB(t))

	in := testStoredInstance()
	require.NoError(t, db.InsertInstance(in))

	var now = time.Now().Truncate(time.Second)
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
	assert.Equal(t, "fine", stored.Tasks[0].Comment)
	require.NotNil(t, stored.Tasks[0].ActionedByUserID)
	assert.Equal(t, 10, *stored.Tasks[0].ActionedByUserID)
	assert.Equal(t, core.TaskPendingApproval, stored.Tasks[1].Status)

	// the status guard rejects a repeated transition
	require.ErrorIs(t, db.ActionTask(update, 0, nil), core.ErrAlreadyFinalized)

	// final step approves and finalizes atomically
	var scheduled = now.Add(24 * time.Hour)
	var finalUpdate = &core.Task{
		ID:               stored.Tasks[1].ID,
		InstanceGUID:     in.GUID,
		Status:           core.TaskApproved,
		ActionedByUserID: &userID,
		CompletedDate:    &now,
	}
	require.NoError(t, db.ActionTask(finalUpdate, 0, &core.Finalize{
		Status:        core.StatusApproved,
		CompletedDate: now,
		ScheduledDate: &scheduled,
	}))

	stored, err = db.GetInstance(in.GUID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, stored.Status)
	require.NotNil(t, stored.CompletedDate)
	require.NotNil(t, stored.ScheduledDate)
	assert.Equal(t, scheduled.Unix(), stored.ScheduledDate.Unix())

	active, err := db.ActiveForNode(7)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestInstanceStoreFinalizeGuard(t *testing.T) {
	db := NewInstanceDB(openTestDB(t))

	in := testStoredInstance()
	require.NoError(t, db.InsertInstance(in))

	var fin = core.Finalize{Status: core.StatusCancelled, CompletedDate: time.Now()}
	require.NoError(t, db.FinalizeInstance(in.GUID, fin))
	require.ErrorIs(t, db.FinalizeInstance(in.GUID, fin), core.ErrAlreadyFinalized)

	// the pending task row is untouched
	stored, err := db.GetInstance(in.GUID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, stored.Status)
	assert.Equal(t, core.TaskPendingApproval, stored.Tasks[0].Status)
}

func TestNodeStore(t *testing.T) {
	store := NewNodeStore(openTestDB(t))

	var release = time.Now().Add(24 * time.Hour).Truncate(time.Second)
	require.NoError(t, store.PutNode(core.Node{ID: 1, Name: "Home", ContentTypeID: 3, ReleaseDate: &release}))
	require.NoError(t, store.PutNode(core.Node{ID: 2, Name: "About", ContentTypeID: 3}))
	require.NoError(t, store.PutNode(core.Node{ID: 3, Name: "Team", ContentTypeID: 4, ParentID: 2}))

	n, err := store.GetNode(1)
	require.NoError(t, err)
	assert.Equal(t, "Home", n.Name)
	require.NotNil(t, n.ReleaseDate)
	assert.Equal(t, release.Unix(), n.ReleaseDate.Unix())
	assert.Nil(t, n.ExpireDate)

	_, err = store.GetNode(404)
	require.ErrorIs(t, err, core.ErrNodeNotFound)

	roots, err := store.Roots()
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "Home", roots[0].Name)
	assert.Equal(t, "About", roots[1].Name)
}
