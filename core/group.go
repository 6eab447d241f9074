package core

import (
	"errors"
	"strings"
)

type DBGroup interface {
	ID() int
	Name() string
	Alias() string
	Description() string
	Deleted() bool
	HasMember(userID int) (bool, error)
	Members() (map[int]struct{}, error) // user id => struct{}
}

type GroupDB interface {
	InsertGroup(name, alias, description string) (DBGroup, error)
	UpdateGroup(id int, name, alias, description string, members []int) error
	SoftDeleteGroup(id int) error
	GetGroup(id int) (DBGroup, error)              // also returns soft-deleted groups
	GetGroupByName(name string) (DBGroup, error)   // non-deleted groups only
	GetGroupByAlias(alias string) (DBGroup, error) // non-deleted groups only
	GetAllGroups(includeDeleted bool) ([]DBGroup, error)
	ReplaceAllGroups(groups []GroupExport) error // all-or-nothing, used by Import
}

// DeriveAlias turns a group name into its default alias.
func DeriveAlias(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// CreateGroup shadows GroupDB.InsertGroup, deriving the alias from the name and
// checking both for collisions with non-deleted groups.
func (c *CoreDB) CreateGroup(name string) (DBGroup, error) {

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("missing group name")
	}

	var alias = DeriveAlias(name)

	if err := c.checkGroupConflicts(0, name, alias); err != nil {
		return nil, err
	}

	return c.GroupDB.InsertGroup(name, alias, "")
}

// SaveGroup renames a group and replaces its member set. The uniqueness checks
// exclude the group itself, so saving without renaming is always allowed.
func (c *CoreDB) SaveGroup(id int, name, alias, description string, members []int) (DBGroup, error) {

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("missing group name")
	}

	alias = strings.TrimSpace(alias)
	if alias == "" {
		alias = DeriveAlias(name)
	}

	if _, err := c.GroupDB.GetGroup(id); err != nil {
		return nil, err
	}

	if err := c.checkGroupConflicts(id, name, alias); err != nil {
		return nil, err
	}

	if err := c.GroupDB.UpdateGroup(id, name, alias, description, members); err != nil {
		return nil, err
	}

	return c.GroupDB.GetGroup(id)
}

// DeleteGroup sets the soft-deleted flag. Existing workflow tasks keep their
// group snapshot, only future chain configuration rejects the group.
func (c *CoreDB) DeleteGroup(id int) error {
	if _, err := c.GroupDB.GetGroup(id); err != nil {
		return err
	}
	return c.GroupDB.SoftDeleteGroup(id)
}

func (c *CoreDB) checkGroupConflicts(selfID int, name, alias string) error {

	if existing, err := c.GroupDB.GetGroupByName(name); err == nil {
		if existing.ID() != selfID {
			return ErrNameConflict
		}
	} else if !errors.Is(err, ErrGroupNotFound) {
		return err
	}

	if existing, err := c.GroupDB.GetGroupByAlias(alias); err == nil {
		if existing.ID() != selfID {
			return ErrAliasConflict
		}
	} else if !errors.Is(err, ErrGroupNotFound) {
		return err
	}

	return nil
}
