package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kervik/signoff/api"
	"github.com/kervik/signoff/core"
	"github.com/kervik/signoff/memdb"
)

// newTestAPI serves the router backed by memdb, with two accounts:
// admin/secret (workflow admin) and editor/secret.
func newTestAPI(t *testing.T) (*httptest.Server, *core.CoreDB, *memdb.NodeStore) {
	t.Helper()

	var nodes = memdb.NewNodeStore()
	var db = &core.CoreDB{
		GroupDB:    memdb.NewGroupDB(),
		UserDB:     memdb.NewUserDB(),
		ConfigDB:   memdb.NewConfigDB(),
		InstanceDB: memdb.NewInstanceDB(),
		Nodes:      nodes,
		Notifier:   core.LogNotifier{},
	}
	require.NoError(t, db.Init(memstore.New(), ""))

	admin, err := db.InsertUser("admin")
	require.NoError(t, err)
	require.NoError(t, db.SetPassword(admin, "secret"))
	require.NoError(t, db.SetAdmin(admin, true))

	editor, err := db.InsertUser("editor")
	require.NoError(t, err)
	require.NoError(t, db.SetPassword(editor, "secret"))

	ts := httptest.NewServer(db.SessionManager.LoadAndSave(api.NewRouter(db, nil)))
	t.Cleanup(ts.Close)
	return ts, db, nodes
}

func doJSON(t *testing.T, client *http.Client, method, url string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func login(t *testing.T, ts *httptest.Server, name, password string) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	var client = &http.Client{Jar: jar}

	resp := doJSON(t, client, http.MethodPost, ts.URL+"/login", map[string]string{"name": name, "password": password})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return client
}

func TestLoginRequired(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/groups")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, &http.Client{}, http.MethodPost, ts.URL+"/login", map[string]string{"name": "admin", "password": "wrong"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// failingUserDB returns err from GetUser when set, otherwise delegates.
type failingUserDB struct {
	core.UserDB
	err error
}

func (f *failingUserDB) GetUser(id int) (core.DBUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.UserDB.GetUser(id)
}

func TestSessionUserLookup(t *testing.T) {
	ts, db, _ := newTestAPI(t)
	admin := login(t, ts, "admin", "secret")

	users := &failingUserDB{UserDB: db.UserDB}
	db.UserDB = users

	// a storage failure must not pass as "not logged in"
	users.err = errors.New("disk failure")
	resp := doJSON(t, admin, http.MethodGet, ts.URL+"/groups", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// a stale session for a deleted user does
	users.err = core.ErrUserNotFound
	resp = doJSON(t, admin, http.MethodGet, ts.URL+"/groups", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	users.err = nil
	resp = doJSON(t, admin, http.MethodGet, ts.URL+"/groups", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminGate(t *testing.T) {
	ts, _, _ := newTestAPI(t)
	editor := login(t, ts, "editor", "secret")

	resp := doJSON(t, editor, http.MethodPost, ts.URL+"/groups", map[string]string{"name": "Editors"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, editor, http.MethodGet, ts.URL+"/export", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGroupLifecycle(t *testing.T) {
	ts, _, _ := newTestAPI(t)
	admin := login(t, ts, "admin", "secret")

	resp := doJSON(t, admin, http.MethodPost, ts.URL+"/groups", map[string]string{"name": "Editors"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID int `json:"id"`
	}
	decode(t, resp, &created)
	require.NotZero(t, created.ID)
	var groupURL = ts.URL + "/groups/" + strconv.Itoa(created.ID)

	// duplicate name
	resp = doJSON(t, admin, http.MethodPost, ts.URL+"/groups", map[string]string{"name": "Editors"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, admin, http.MethodPut, groupURL, map[string]interface{}{
		"name":    "Editors",
		"members": []int{2},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved struct {
		Alias   string `json:"alias"`
		Members []int  `json:"members"`
	}
	decode(t, resp, &saved)
	assert.Equal(t, "editors", saved.Alias)
	assert.Equal(t, []int{2}, saved.Members)

	resp = doJSON(t, admin, http.MethodDelete, groupURL, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// deleted groups are hidden by default
	resp = doJSON(t, admin, http.MethodGet, ts.URL+"/groups", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var groups []struct {
		ID int `json:"id"`
	}
	decode(t, resp, &groups)
	assert.Empty(t, groups)
}

func TestWorkflowOverAPI(t *testing.T) {
	ts, db, nodes := newTestAPI(t)
	nodes.Put(core.Node{ID: 7, Name: "Home", ContentTypeID: 3})

	admin := login(t, ts, "admin", "secret")
	editor := login(t, ts, "editor", "secret")

	// the editor account (user id 2) approves the single step
	g, err := db.CreateGroup("Editors")
	require.NoError(t, err)
	_, err = db.SaveGroup(g.ID(), g.Name(), g.Alias(), "", []int{2})
	require.NoError(t, err)

	resp := doJSON(t, admin, http.MethodPut, ts.URL+"/config/node/7", map[string]interface{}{"groups": []int{g.ID()}})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// starting against an unknown node fails
	resp = doJSON(t, editor, http.MethodPost, ts.URL+"/instances", map[string]interface{}{"nodeId": 8, "type": 1})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, editor, http.MethodPost, ts.URL+"/instances", map[string]interface{}{
		"nodeId":  7,
		"type":    1,
		"comment": "please publish",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var started struct {
		GUID   string `json:"guid"`
		Status string `json:"status"`
		Tasks  []struct {
			Status string `json:"status"`
		} `json:"tasks"`
	}
	decode(t, resp, &started)
	assert.Equal(t, "Pending Approval", started.Status)
	require.Len(t, started.Tasks, 1)

	// a second workflow on the same node conflicts
	resp = doJSON(t, editor, http.MethodPost, ts.URL+"/instances", map[string]interface{}{"nodeId": 7, "type": 2})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, editor, http.MethodGet, ts.URL+"/nodes/7/pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending struct {
		Pending   bool `json:"pending"`
		CanAction bool `json:"canAction"`
		Admin     bool `json:"admin"`
	}
	decode(t, resp, &pending)
	assert.True(t, pending.Pending)
	assert.True(t, pending.CanAction)
	assert.False(t, pending.Admin)

	resp = doJSON(t, editor, http.MethodPost, ts.URL+"/instances/"+started.GUID+"/approve", map[string]string{"comment": "ship it"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var approved struct {
		Status string `json:"status"`
	}
	decode(t, resp, &approved)
	assert.Equal(t, "Approved", approved.Status)

	resp = doJSON(t, editor, http.MethodGet, ts.URL+"/nodes/7/pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &pending)
	assert.False(t, pending.Pending)
}
