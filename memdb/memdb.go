// Package memdb implements the core store interfaces in memory. It backs the
// test suites and ephemeral deployments, everything is lost on restart.
package memdb

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kervik/signoff/core"
)

type group struct {
	id          int
	name        string
	alias       string
	description string
	deleted     bool
	members     map[int]struct{}
}

func (g *group) ID() int             { return g.id }
func (g *group) Name() string        { return g.name }
func (g *group) Alias() string       { return g.alias }
func (g *group) Description() string { return g.description }
func (g *group) Deleted() bool       { return g.deleted }

func (g *group) HasMember(userID int) (bool, error) {
	members, err := g.Members()
	if err != nil {
		return false, err
	}
	_, ok := members[userID]
	return ok, nil
}

func (g *group) Members() (map[int]struct{}, error) {
	var members = make(map[int]struct{}, len(g.members))
	for id := range g.members {
		members[id] = struct{}{}
	}
	return members, nil
}

type GroupDB struct {
	mu     sync.RWMutex
	nextID int
	groups map[int]*group
}

func NewGroupDB() *GroupDB {
	return &GroupDB{
		nextID: 1,
		groups: make(map[int]*group),
	}
}

// snapshot returns a detached copy, so callers never see later mutations.
func (g *group) snapshot() *group {
	var members = make(map[int]struct{}, len(g.members))
	for id := range g.members {
		members[id] = struct{}{}
	}
	var copied = *g
	copied.members = members
	return &copied
}

func (db *GroupDB) InsertGroup(name, alias, description string) (core.DBGroup, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var g = &group{
		id:          db.nextID,
		name:        name,
		alias:       alias,
		description: description,
		members:     make(map[int]struct{}),
	}
	db.nextID++
	db.groups[g.id] = g
	return g.snapshot(), nil
}

func (db *GroupDB) UpdateGroup(id int, name, alias, description string, members []int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	g, ok := db.groups[id]
	if !ok {
		return core.ErrGroupNotFound
	}
	g.name = name
	g.alias = alias
	g.description = description
	g.members = make(map[int]struct{}, len(members))
	for _, userID := range members {
		g.members[userID] = struct{}{}
	}
	return nil
}

func (db *GroupDB) SoftDeleteGroup(id int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	g, ok := db.groups[id]
	if !ok {
		return core.ErrGroupNotFound
	}
	g.deleted = true
	return nil
}

func (db *GroupDB) GetGroup(id int) (core.DBGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	g, ok := db.groups[id]
	if !ok {
		return nil, core.ErrGroupNotFound
	}
	return g.snapshot(), nil
}

func (db *GroupDB) GetGroupByName(name string) (core.DBGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, g := range db.groups {
		if !g.deleted && g.name == name {
			return g.snapshot(), nil
		}
	}
	return nil, core.ErrGroupNotFound
}

func (db *GroupDB) GetGroupByAlias(alias string) (core.DBGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, g := range db.groups {
		if !g.deleted && g.alias == alias {
			return g.snapshot(), nil
		}
	}
	return nil, core.ErrGroupNotFound
}

func (db *GroupDB) GetAllGroups(includeDeleted bool) ([]core.DBGroup, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var all = []core.DBGroup{}
	for _, g := range db.groups {
		if g.deleted && !includeDeleted {
			continue
		}
		all = append(all, g.snapshot())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })
	return all, nil
}

func (db *GroupDB) ReplaceAllGroups(groups []core.GroupExport) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.groups = make(map[int]*group)
	db.nextID = 1
	for _, ge := range groups {
		var g = &group{
			id:          db.nextID,
			name:        ge.Name,
			alias:       ge.Alias,
			description: ge.Description,
			deleted:     ge.Deleted,
			members:     make(map[int]struct{}, len(ge.Members)),
		}
		for _, userID := range ge.Members {
			g.members[userID] = struct{}{}
		}
		db.nextID++
		db.groups[g.id] = g
	}
	return nil
}

type user struct {
	id       int
	name     string
	admin    bool
	password string
}

func (u *user) ID() int      { return u.id }
func (u *user) Name() string { return u.name }
func (u *user) Admin() bool  { return u.admin }

type UserDB struct {
	mu     sync.RWMutex
	nextID int
	users  map[int]*user
}

func NewUserDB() *UserDB {
	return &UserDB{
		nextID: 1,
		users:  make(map[int]*user),
	}
}

func (db *UserDB) InsertUser(name string) (core.DBUser, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var u = &user{id: db.nextID, name: name}
	db.nextID++
	db.users[u.id] = u
	var copied = *u
	return &copied, nil
}

func (db *UserDB) GetUser(id int) (core.DBUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	var copied = *u
	return &copied, nil
}

func (db *UserDB) GetUserByName(name string) (core.DBUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.name == name {
			var copied = *u
			return &copied, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (db *UserDB) GetAllUsers(limit, offset int) ([]core.DBUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var ids = make([]int, 0, len(db.users))
	for id := range db.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var all = []core.DBUser{}
	for i, id := range ids {
		if i < offset {
			continue
		}
		if len(all) == limit {
			break
		}
		var copied = *db.users[id]
		all = append(all, &copied)
	}
	return all, nil
}

func (db *UserDB) LoginUser(name, password string) (core.DBUser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.name == name && u.password != "" && u.password == password {
			var copied = *u
			return &copied, nil
		}
	}
	return nil, core.ErrUnauthorized
}

func (db *UserDB) SetPassword(u core.DBUser, password string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.users[u.ID()]
	if !ok {
		return core.ErrUserNotFound
	}
	stored.password = password
	return nil
}

func (db *UserDB) SetAdmin(u core.DBUser, admin bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.users[u.ID()]
	if !ok {
		return core.ErrUserNotFound
	}
	stored.admin = admin
	return nil
}

type ConfigDB struct {
	mu         sync.RWMutex
	nodeChains map[int]core.Chain
	typeChains map[int]core.Chain
}

func NewConfigDB() *ConfigDB {
	return &ConfigDB{
		nodeChains: make(map[int]core.Chain),
		typeChains: make(map[int]core.Chain),
	}
}

func copyChain(chain core.Chain) core.Chain {
	if chain == nil {
		return nil
	}
	var copied = make(core.Chain, len(chain))
	copy(copied, chain)
	return copied
}

func (db *ConfigDB) NodeChain(nodeID int) (core.Chain, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return copyChain(db.nodeChains[nodeID]), nil
}

func (db *ConfigDB) TypeChain(contentTypeID int) (core.Chain, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return copyChain(db.typeChains[contentTypeID]), nil
}

func (db *ConfigDB) ReplaceNodeChain(nodeID int, chain core.Chain) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(chain) == 0 {
		delete(db.nodeChains, nodeID)
	} else {
		db.nodeChains[nodeID] = copyChain(chain)
	}
	return nil
}

func (db *ConfigDB) ReplaceTypeChain(contentTypeID int, chain core.Chain) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(chain) == 0 {
		delete(db.typeChains, contentTypeID)
	} else {
		db.typeChains[contentTypeID] = copyChain(chain)
	}
	return nil
}

func (db *ConfigDB) AllNodeChains() (map[int]core.Chain, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var all = make(map[int]core.Chain, len(db.nodeChains))
	for id, chain := range db.nodeChains {
		all[id] = copyChain(chain)
	}
	return all, nil
}

func (db *ConfigDB) AllTypeChains() (map[int]core.Chain, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var all = make(map[int]core.Chain, len(db.typeChains))
	for id, chain := range db.typeChains {
		all[id] = copyChain(chain)
	}
	return all, nil
}

func (db *ConfigDB) ReplaceAllChains(nodeChains, typeChains map[int]core.Chain) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nodeChains = make(map[int]core.Chain, len(nodeChains))
	for id, chain := range nodeChains {
		db.nodeChains[id] = copyChain(chain)
	}
	db.typeChains = make(map[int]core.Chain, len(typeChains))
	for id, chain := range typeChains {
		db.typeChains[id] = copyChain(chain)
	}
	return nil
}

type InstanceDB struct {
	mu         sync.Mutex
	nextID     int
	nextTaskID int
	instances  map[uuid.UUID]*core.Instance
}

func NewInstanceDB() *InstanceDB {
	return &InstanceDB{
		nextID:     1,
		nextTaskID: 1,
		instances:  make(map[uuid.UUID]*core.Instance),
	}
}

func copyInstance(in *core.Instance) *core.Instance {
	var copied = *in
	copied.Tasks = make([]*core.Task, len(in.Tasks))
	for i, t := range in.Tasks {
		var task = *t
		copied.Tasks[i] = &task
	}
	return &copied
}

func (db *InstanceDB) InsertInstance(in *core.Instance) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	in.ID = db.nextID
	db.nextID++
	for _, t := range in.Tasks {
		t.ID = db.nextTaskID
		db.nextTaskID++
	}
	db.instances[in.GUID] = copyInstance(in)
	return nil
}

func (db *InstanceDB) GetInstance(guid uuid.UUID) (*core.Instance, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	in, ok := db.instances[guid]
	if !ok {
		return nil, core.ErrInstanceNotFound
	}
	return copyInstance(in), nil
}

func (db *InstanceDB) ActiveForNode(nodeID int) (*core.Instance, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, in := range db.instances {
		if in.NodeID == nodeID && in.Status == core.StatusPendingApproval {
			return copyInstance(in), nil
		}
	}
	return nil, nil
}

func (db *InstanceDB) InstancesForNode(nodeID int) ([]*core.Instance, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var all = []*core.Instance{}
	for _, in := range db.instances {
		if in.NodeID == nodeID {
			all = append(all, copyInstance(in))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (db *InstanceDB) AllInstances(limit, offset int) ([]*core.Instance, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var all = []*core.Instance{}
	for _, in := range db.instances {
		all = append(all, copyInstance(in))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (db *InstanceDB) ActionTask(task *core.Task, activateTaskID int, fin *core.Finalize) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	in, ok := db.instances[task.InstanceGUID]
	if !ok {
		return core.ErrInstanceNotFound
	}
	if in.Status != core.StatusPendingApproval {
		return core.ErrAlreadyFinalized
	}

	var stored *core.Task
	for _, t := range in.Tasks {
		if t.ID == task.ID {
			stored = t
			break
		}
	}
	if stored == nil || stored.Status != core.TaskPendingApproval {
		return core.ErrAlreadyFinalized
	}

	stored.Status = task.Status
	stored.Comment = task.Comment
	stored.ActionedByUserID = task.ActionedByUserID
	stored.CompletedDate = task.CompletedDate

	if activateTaskID != 0 {
		for _, t := range in.Tasks {
			if t.ID == activateTaskID && t.Status == core.TaskNotStarted {
				t.Status = core.TaskPendingApproval
			}
		}
	}

	if fin != nil {
		in.Status = fin.Status
		completed := fin.CompletedDate
		in.CompletedDate = &completed
		in.ScheduledDate = fin.ScheduledDate
	}

	return nil
}

func (db *InstanceDB) FinalizeInstance(guid uuid.UUID, fin core.Finalize) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	in, ok := db.instances[guid]
	if !ok {
		return core.ErrInstanceNotFound
	}
	if in.Status != core.StatusPendingApproval {
		return core.ErrAlreadyFinalized
	}

	in.Status = fin.Status
	completed := fin.CompletedDate
	in.CompletedDate = &completed
	in.ScheduledDate = fin.ScheduledDate
	return nil
}

type NodeStore struct {
	mu    sync.RWMutex
	nodes map[int]core.Node
}

func NewNodeStore() *NodeStore {
	return &NodeStore{
		nodes: make(map[int]core.Node),
	}
}

func (s *NodeStore) Put(n core.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

func (s *NodeStore) GetNode(id int) (core.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return core.Node{}, core.ErrNodeNotFound
	}
	return n, nil
}

func (s *NodeStore) Roots() ([]core.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roots = []core.Node{}
	for _, n := range s.nodes {
		if n.Root() {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })
	return roots, nil
}
