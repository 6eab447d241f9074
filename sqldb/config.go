package sqldb

import (
	"database/sql"

	"github.com/kervik/signoff/core"
)

// ConfigDB stores the node-level and type-level approval chains. One row per
// step, keyed by scope ("node" or "type") plus the scoped id.
type ConfigDB struct {
	db       *sql.DB
	get      *sql.Stmt
	getScope *sql.Stmt
	remove   *sql.Stmt
	insert   *sql.Stmt
}

const (
	scopeNode = "node"
	scopeType = "type"
)

func NewConfigDB(db *sql.DB) *ConfigDB {

	db.Exec(`
		CREATE TABLE IF NOT EXISTS approval_step (
			scope varchar(4) NOT NULL,
			scopeId int(11) NOT NULL,
			step int(11) NOT NULL,
			groupId int(11) NOT NULL,
			PRIMARY KEY (scope, scopeId, step)
		);`)

	var configDB = &ConfigDB{}
	configDB.db = db
	configDB.get = mustPrepare(db, "SELECT step, groupId FROM approval_step WHERE scope = ? AND scopeId = ? ORDER BY step")
	configDB.getScope = mustPrepare(db, "SELECT scopeId, step, groupId FROM approval_step WHERE scope = ? ORDER BY scopeId, step")
	configDB.remove = mustPrepare(db, "DELETE FROM approval_step WHERE scope = ? AND scopeId = ?")
	configDB.insert = mustPrepare(db, "INSERT INTO approval_step (scope, scopeId, step, groupId) VALUES (?, ?, ?, ?)")
	return configDB
}

func (db *ConfigDB) chain(scope string, scopeID int) (core.Chain, error) {

	rows, err := db.get.Query(scope, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chain core.Chain // stays nil if there are no rows
	for rows.Next() {
		var step core.Step
		if err = rows.Scan(&step.Index, &step.GroupID); err != nil {
			return nil, err
		}
		chain = append(chain, step)
	}
	return chain, nil
}

func (db *ConfigDB) NodeChain(nodeID int) (core.Chain, error) {
	return db.chain(scopeNode, nodeID)
}

func (db *ConfigDB) TypeChain(contentTypeID int) (core.Chain, error) {
	return db.chain(scopeType, contentTypeID)
}

func (db *ConfigDB) replaceChain(scope string, scopeID int, chain core.Chain) error {

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Stmt(db.remove).Exec(scope, scopeID); err != nil {
		tx.Rollback()
		return storageErr("replace chain", err)
	}

	for _, step := range chain {
		if _, err = tx.Stmt(db.insert).Exec(scope, scopeID, step.Index, step.GroupID); err != nil {
			tx.Rollback()
			return storageErr("replace chain", err)
		}
	}

	return tx.Commit()
}

func (db *ConfigDB) ReplaceNodeChain(nodeID int, chain core.Chain) error {
	return db.replaceChain(scopeNode, nodeID, chain)
}

func (db *ConfigDB) ReplaceTypeChain(contentTypeID int, chain core.Chain) error {
	return db.replaceChain(scopeType, contentTypeID, chain)
}

func (db *ConfigDB) allChains(scope string) (map[int]core.Chain, error) {

	rows, err := db.getScope.Query(scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all = make(map[int]core.Chain)
	for rows.Next() {
		var scopeID int
		var step core.Step
		if err = rows.Scan(&scopeID, &step.Index, &step.GroupID); err != nil {
			return nil, err
		}
		all[scopeID] = append(all[scopeID], step)
	}
	return all, nil
}

func (db *ConfigDB) AllNodeChains() (map[int]core.Chain, error) {
	return db.allChains(scopeNode)
}

func (db *ConfigDB) AllTypeChains() (map[int]core.Chain, error) {
	return db.allChains(scopeType)
}

func (db *ConfigDB) ReplaceAllChains(nodeChains, typeChains map[int]core.Chain) error {

	tx, err := db.db.Begin()
	if err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM approval_step"); err != nil {
		tx.Rollback()
		return storageErr("replace chains", err)
	}

	var insert = func(scope string, chains map[int]core.Chain) error {
		for scopeID, chain := range chains {
			for _, step := range chain {
				if _, err := tx.Stmt(db.insert).Exec(scope, scopeID, step.Index, step.GroupID); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err = insert(scopeNode, nodeChains); err != nil {
		tx.Rollback()
		return storageErr("replace chains", err)
	}
	if err = insert(scopeType, typeChains); err != nil {
		tx.Rollback()
		return storageErr("replace chains", err)
	}

	return tx.Commit()
}
