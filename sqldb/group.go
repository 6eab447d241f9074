package sqldb

import (
	"database/sql"

	"github.com/kervik/signoff/core"
)

type group struct {
	db            *GroupDB // required for lazy loading
	id            int
	name          string
	alias         string
	description   string
	deleted       bool
	members       map[int]struct{}
	membersLoaded bool // lazy loading
}

func (g *group) ID() int {
	return g.id
}

func (g *group) Name() string {
	return g.name
}

func (g *group) Alias() string {
	return g.alias
}

func (g *group) Description() string {
	return g.description
}

func (g *group) Deleted() bool {
	return g.deleted
}

func (g *group) HasMember(userID int) (bool, error) {
	if members, err := g.Members(); err == nil {
		_, ok := members[userID]
		return ok, nil
	} else {
		return false, err
	}
}

func (g *group) Members() (map[int]struct{}, error) {

	if !g.membersLoaded {

		g.members = make(map[int]struct{})

		rows, err := g.db.members.Query(g.id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var userID int
			if err = rows.Scan(&userID); err != nil {
				return nil, err
			}
			g.members[userID] = struct{}{}
		}

		g.membersLoaded = true
	}

	return g.members, nil
}

type GroupDB struct {
	*sql.DB
	softDelete   *sql.Stmt
	get          *sql.Stmt
	getByName    *sql.Stmt
	getByAlias   *sql.Stmt
	getAll       *sql.Stmt
	getNondel    *sql.Stmt
	insert       *sql.Stmt
	update       *sql.Stmt
	joinMember   *sql.Stmt
	leaveMembers *sql.Stmt
	members      *sql.Stmt
}

func NewGroupDB(db *sql.DB) *GroupDB {

	db.Exec(`
		CREATE TABLE IF NOT EXISTS grp (
			id INTEGER PRIMARY KEY,
			name varchar(64) NOT NULL,
			alias varchar(64) NOT NULL,
			description varchar(255) NOT NULL DEFAULT '',
			deleted int(1) NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS membership (
			grp int(11) NOT NULL,
			usr int(11) NOT NULL,
			PRIMARY KEY (grp, usr)
		);`)

	var groupDB = &GroupDB{}
	groupDB.DB = db
	groupDB.softDelete = mustPrepare(db, "UPDATE grp SET deleted = 1 WHERE id = ?")
	groupDB.get = mustPrepare(db, "SELECT name, alias, description, deleted FROM grp WHERE id = ? LIMIT 1")
	groupDB.getByName = mustPrepare(db, "SELECT id, name, alias, description, deleted FROM grp WHERE name = ? AND deleted = 0 LIMIT 1")
	groupDB.getByAlias = mustPrepare(db, "SELECT id, name, alias, description, deleted FROM grp WHERE alias = ? AND deleted = 0 LIMIT 1")
	groupDB.getAll = mustPrepare(db, "SELECT id, name, alias, description, deleted FROM grp ORDER BY name")
	groupDB.getNondel = mustPrepare(db, "SELECT id, name, alias, description, deleted FROM grp WHERE deleted = 0 ORDER BY name")
	groupDB.insert = mustPrepare(db, "INSERT INTO grp (name, alias, description, deleted) VALUES (?, ?, ?, 0)")
	groupDB.update = mustPrepare(db, "UPDATE grp SET name = ?, alias = ?, description = ? WHERE id = ?")
	groupDB.joinMember = mustPrepare(db, "INSERT INTO membership (grp, usr) VALUES (?, ?)")
	groupDB.leaveMembers = mustPrepare(db, "DELETE FROM membership WHERE grp = ?")
	groupDB.members = mustPrepare(db, "SELECT usr FROM membership WHERE grp = ?")
	return groupDB
}

func (db *GroupDB) InsertGroup(name, alias, description string) (core.DBGroup, error) {

	res, err := db.insert.Exec(name, alias, description)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetGroup(int(id))
}

// UpdateGroup replaces name, alias, description and the member set in one
// transaction.
func (db *GroupDB) UpdateGroup(id int, name, alias, description string, members []int) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Stmt(db.update).Exec(name, alias, description, id); err != nil {
		tx.Rollback()
		return storageErr("update group", err)
	}

	if _, err = tx.Stmt(db.leaveMembers).Exec(id); err != nil {
		tx.Rollback()
		return storageErr("update group", err)
	}

	for _, userID := range members {
		if _, err = tx.Stmt(db.joinMember).Exec(id, userID); err != nil {
			tx.Rollback()
			return storageErr("update group", err)
		}
	}

	return tx.Commit()
}

// SoftDeleteGroup sets the deleted flag. Memberships and the row itself are
// kept, historical task snapshots stay resolvable.
func (db *GroupDB) SoftDeleteGroup(id int) error {
	_, err := db.softDelete.Exec(id)
	return err
}

func (db *GroupDB) GetGroup(id int) (core.DBGroup, error) {
	var g = &group{
		db: db,
		id: id,
	}
	err := db.get.QueryRow(id).Scan(&g.name, &g.alias, &g.description, &g.deleted)
	if err == sql.ErrNoRows {
		return nil, core.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (db *GroupDB) getOne(stmt *sql.Stmt, arg interface{}) (core.DBGroup, error) {
	var g = &group{
		db: db,
	}
	err := stmt.QueryRow(arg).Scan(&g.id, &g.name, &g.alias, &g.description, &g.deleted)
	if err == sql.ErrNoRows {
		return nil, core.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (db *GroupDB) GetGroupByName(name string) (core.DBGroup, error) {
	return db.getOne(db.getByName, name)
}

func (db *GroupDB) GetGroupByAlias(alias string) (core.DBGroup, error) {
	return db.getOne(db.getByAlias, alias)
}

func (db *GroupDB) GetAllGroups(includeDeleted bool) ([]core.DBGroup, error) {

	var stmt = db.getNondel
	if includeDeleted {
		stmt = db.getAll
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups = []core.DBGroup{}
	for rows.Next() {
		var g = &group{
			db: db,
		}
		if err = rows.Scan(&g.id, &g.name, &g.alias, &g.description, &g.deleted); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// ReplaceAllGroups clears both tables and inserts the given groups, all in
// one transaction.
func (db *GroupDB) ReplaceAllGroups(groups []core.GroupExport) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM membership"); err != nil {
		tx.Rollback()
		return storageErr("replace groups", err)
	}
	if _, err = tx.Exec("DELETE FROM grp"); err != nil {
		tx.Rollback()
		return storageErr("replace groups", err)
	}

	for _, g := range groups {
		var deleted = 0
		if g.Deleted {
			deleted = 1
		}
		res, err := tx.Exec("INSERT INTO grp (name, alias, description, deleted) VALUES (?, ?, ?, ?)", g.Name, g.Alias, g.Description, deleted)
		if err != nil {
			tx.Rollback()
			return storageErr("replace groups", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return storageErr("replace groups", err)
		}
		for _, userID := range g.Members {
			if _, err = tx.Stmt(db.joinMember).Exec(id, userID); err != nil {
				tx.Rollback()
				return storageErr("replace groups", err)
			}
		}
	}

	return tx.Commit()
}
