package sqldb

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/kervik/signoff/core"
)

func clean(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func hash(salt string, password string) string {
	var sum = sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

type user struct {
	id    int
	name  string
	admin bool
	salt  string
	pass  string // hash
}

func (u *user) hash(password string) string {
	return hash(u.salt, password)
}

func (u *user) ID() int {
	return u.id
}

func (u *user) Name() string {
	return u.name
}

func (u *user) Admin() bool {
	return u.admin
}

type UserDB struct {
	*sql.DB
	get         *sql.Stmt
	getByName   *sql.Stmt
	getAll      *sql.Stmt
	insert      *sql.Stmt
	login       *sql.Stmt
	setAdmin    *sql.Stmt
	setPassword *sql.Stmt
}

func NewUserDB(db *sql.DB) *UserDB {

	db.Exec(
		`CREATE TABLE IF NOT EXISTS usr (
			id INTEGER PRIMARY KEY,
			mail varchar(128) NOT NULL,
			admin int(1) NOT NULL DEFAULT 0,
			salt varchar(64) NOT NULL,
			password varchar(64) NOT NULL,
			UNIQUE(mail)
		);`)

	var userDB = &UserDB{}
	userDB.DB = db
	userDB.get = mustPrepare(db, "SELECT mail, admin FROM usr WHERE id = ? LIMIT 1")
	userDB.getByName = mustPrepare(db, "SELECT id, mail, admin FROM usr WHERE mail = ? LIMIT 1")
	userDB.getAll = mustPrepare(db, "SELECT id, mail, admin FROM usr ORDER BY mail LIMIT ? OFFSET ?")
	userDB.insert = mustPrepare(db, "INSERT INTO usr (mail, salt, password) VALUES (?, '', '')") // empty password field is safe because no hash value equals it
	userDB.login = mustPrepare(db, "SELECT id, admin, salt, password FROM usr WHERE mail = ?")
	userDB.setAdmin = mustPrepare(db, "UPDATE usr SET admin = ? WHERE id = ?")
	userDB.setPassword = mustPrepare(db, "UPDATE usr SET salt = ?, password = ? WHERE id = ?")
	return userDB
}

func (db *UserDB) InsertUser(name string) (core.DBUser, error) {

	res, err := db.insert.Exec(clean(name))
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUser(int(id))
}

func (db *UserDB) GetUser(id int) (core.DBUser, error) {
	var u = &user{
		id: id,
	}
	err := db.get.QueryRow(id).Scan(&u.name, &u.admin)
	if err == sql.ErrNoRows {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (db *UserDB) GetUserByName(name string) (core.DBUser, error) {
	var u = &user{}
	err := db.getByName.QueryRow(clean(name)).Scan(&u.id, &u.name, &u.admin)
	if err == sql.ErrNoRows {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (db *UserDB) GetAllUsers(limit, offset int) ([]core.DBUser, error) {

	rows, err := db.getAll.Query(limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all = []core.DBUser{}
	for rows.Next() {
		var u = &user{}
		if err = rows.Scan(&u.id, &u.name, &u.admin); err != nil {
			return nil, err
		}
		all = append(all, u)
	}
	return all, nil
}

func (db *UserDB) LoginUser(name, password string) (core.DBUser, error) {

	var u = &user{
		name: clean(name),
	}
	err := db.login.QueryRow(u.name).Scan(&u.id, &u.admin, &u.salt, &u.pass)
	if err == sql.ErrNoRows {
		return nil, core.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}

	if u.hash(password) != u.pass {
		return nil, core.ErrUnauthorized
	}

	return u, nil
}

func (db *UserDB) SetPassword(u core.DBUser, password string) error {

	salt, err := randomString32()
	if err != nil {
		return err
	}

	_, err = db.setPassword.Exec(salt, hash(salt, password), u.ID())
	return err
}

func (db *UserDB) SetAdmin(u core.DBUser, admin bool) error {
	var flag = 0
	if admin {
		flag = 1
	}
	_, err := db.setAdmin.Exec(flag, u.ID())
	return err
}
