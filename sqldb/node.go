package sqldb

import (
	"database/sql"

	"github.com/kervik/signoff/core"
)

// NodeStore is a minimal content-node registry so the system runs standalone.
// Deployments embedded into a CMS supply their own core.NodeStore instead.
type NodeStore struct {
	db     *sql.DB
	get    *sql.Stmt
	roots  *sql.Stmt
	insert *sql.Stmt
}

func NewNodeStore(db *sql.DB) *NodeStore {

	db.Exec(`
		CREATE TABLE IF NOT EXISTS node (
			id INTEGER PRIMARY KEY,
			name varchar(128) NOT NULL,
			contentTypeId int(11) NOT NULL,
			parentId int(11) NOT NULL DEFAULT 0,
			releaseDate int(11) NOT NULL DEFAULT 0,
			expireDate int(11) NOT NULL DEFAULT 0
		);`)

	var nodeStore = &NodeStore{}
	nodeStore.db = db
	nodeStore.get = mustPrepare(db, "SELECT id, name, contentTypeId, parentId, releaseDate, expireDate FROM node WHERE id = ? LIMIT 1")
	nodeStore.roots = mustPrepare(db, "SELECT id, name, contentTypeId, parentId, releaseDate, expireDate FROM node WHERE parentId = 0 ORDER BY id")
	nodeStore.insert = mustPrepare(db, "INSERT INTO node (id, name, contentTypeId, parentId, releaseDate, expireDate) VALUES (?, ?, ?, ?, ?, ?)")
	return nodeStore
}

func scanNode(scan func(...interface{}) error) (core.Node, error) {
	var n core.Node
	var release, expire int64
	if err := scan(&n.ID, &n.Name, &n.ContentTypeID, &n.ParentID, &release, &expire); err != nil {
		return core.Node{}, err
	}
	n.ReleaseDate = fromUnix(release)
	n.ExpireDate = fromUnix(expire)
	return n, nil
}

func (s *NodeStore) GetNode(id int) (core.Node, error) {
	n, err := scanNode(s.get.QueryRow(id).Scan)
	if err == sql.ErrNoRows {
		return core.Node{}, core.ErrNodeNotFound
	}
	return n, err
}

func (s *NodeStore) Roots() ([]core.Node, error) {

	rows, err := s.roots.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roots = []core.Node{}
	for rows.Next() {
		n, err := scanNode(rows.Scan)
		if err != nil {
			return nil, err
		}
		roots = append(roots, n)
	}
	return roots, nil
}

// PutNode registers a content node.
func (s *NodeStore) PutNode(n core.Node) error {
	_, err := s.insert.Exec(n.ID, n.Name, n.ContentTypeID, n.ParentID, toUnix(n.ReleaseDate), toUnix(n.ExpireDate))
	return err
}
