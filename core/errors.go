package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured    = errors.New("no approval chain configured for node")
	ErrAlreadyActive    = errors.New("node already has an active workflow")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyFinalized = errors.New("task or workflow already finalized")
	ErrNameConflict     = errors.New("group name already exists")
	ErrAliasConflict    = errors.New("group alias already exists")
	ErrValidation       = errors.New("invalid approval chain")
	ErrNodeNotFound     = errors.New("node not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrInstanceNotFound = errors.New("workflow not found")

	// ErrMaterialize means the workflow was approved and committed, but applying
	// the approved action to the content node failed. The caller can retry the
	// materialization, the workflow state is already correct.
	ErrMaterialize = errors.New("approved action could not be applied")
)

// A StorageError wraps an error from the underlying store.
// State-changing operations guarantee that no partial write has been committed
// when a StorageError is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
