// Package sqldb implements the core store interfaces on database/sql.
// It is tested with SQLite and MySQL, see the sqlite3 and mysql subpackages
// for the matching session stores.
package sqldb

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/kervik/signoff/core"
)

// storageErr marks a failed multi-statement write whose transaction has been
// rolled back, so no partial state was committed.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &core.StorageError{Op: op, Err: err}
}

// randomString32 returns a 32 bytes long string with 24 bytes (192 bits) of entropy.
func randomString32() (string, error) {

	b := make([]byte, 24)

	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	result := base64.URLEncoding.EncodeToString(b)

	if len(result) < 32 {
		return "", errors.New("randomString32 too short")
	}

	return result[:32], nil
}

func mustPrepare(db *sql.DB, query string) *sql.Stmt {
	stmt, err := db.Prepare(query)
	if err != nil {
		panic(err)
	}
	return stmt
}

// unix timestamps are stored, zero means null
func toUnix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}

func fromUnix(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	var t = time.Unix(ts, 0)
	return &t
}
