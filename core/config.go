package core

import (
	"errors"
	"fmt"
	"sort"
)

// A Step is one position in an approval chain.
type Step struct {
	Index   int
	GroupID int
}

// A Chain is the ordered sequence of steps resolved for a node. A nil Chain
// means "unconfigured", which is a valid, reportable state, not an error.
type Chain []Step

type ConfigDB interface {
	NodeChain(nodeID int) (Chain, error) // nil if no node-level entry
	TypeChain(contentTypeID int) (Chain, error)
	ReplaceNodeChain(nodeID int, chain Chain) error // full replace, empty chain clears
	ReplaceTypeChain(contentTypeID int, chain Chain) error
	AllNodeChains() (map[int]Chain, error)
	AllTypeChains() (map[int]Chain, error)
	ReplaceAllChains(nodeChains, typeChains map[int]Chain) error // all-or-nothing, used by Import
}

// validateChain checks that the step indices are the contiguous sequence
// 0..n-1 and that no referenced group is soft-deleted.
func (c *CoreDB) validateChain(chain Chain) error {

	var sorted = make(Chain, len(chain))
	copy(sorted, chain)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for i, step := range sorted {
		if step.Index != i {
			return fmt.Errorf("%w: step indices must be 0..%d", ErrValidation, len(chain)-1)
		}
		group, err := c.GroupDB.GetGroup(step.GroupID)
		if err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrValidation, i, err)
		}
		if group.Deleted() {
			return fmt.Errorf("%w: step %d references deleted group %s", ErrValidation, i, group.Name())
		}
	}

	return nil
}

// SetNodeChain replaces the node-level approval chain. An empty chain removes
// the node-level entry, so the node falls back to its content type.
func (c *CoreDB) SetNodeChain(nodeID int, chain Chain) error {
	if len(chain) > 0 {
		if err := c.validateChain(chain); err != nil {
			return err
		}
	}
	return c.ConfigDB.ReplaceNodeChain(nodeID, chain)
}

// SetTypeChain replaces the content-type-level approval chain.
func (c *CoreDB) SetTypeChain(contentTypeID int, chain Chain) error {
	if len(chain) > 0 {
		if err := c.validateChain(chain); err != nil {
			return err
		}
	}
	return c.ConfigDB.ReplaceTypeChain(contentTypeID, chain)
}

// ResolveChain returns the approval chain for a node: the node-level entry if
// one exists, else the content-type-level entry, else nil ("unconfigured").
// A chain that references a soft-deleted group is rejected, historical
// instances are not affected because they snapshot their chain at start.
func (c *CoreDB) ResolveChain(nodeID, contentTypeID int) (Chain, error) {

	chain, err := c.ConfigDB.NodeChain(nodeID)
	if err != nil {
		return nil, err
	}

	if chain == nil {
		chain, err = c.ConfigDB.TypeChain(contentTypeID)
		if err != nil {
			return nil, err
		}
	}

	if chain == nil {
		return nil, nil
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].Index < chain[j].Index })

	if err := c.validateChain(chain); err != nil {
		return nil, err
	}

	return chain, nil
}

// ListUnconfiguredRoots returns the names of root nodes without a resolvable
// approval chain, skipping the excluded ids. Pure read, used by health checks.
func (c *CoreDB) ListUnconfiguredRoots(exclude map[int]bool) ([]string, error) {

	roots, err := c.Nodes.Roots()
	if err != nil {
		return nil, err
	}

	var names = []string{}
	for _, root := range roots {
		if exclude[root.ID] {
			continue
		}
		chain, err := c.ResolveChain(root.ID, root.ContentTypeID)
		if err != nil && !errors.Is(err, ErrValidation) {
			return nil, err
		}
		// a chain that fails validation can't start a workflow either
		if chain == nil {
			names = append(names, root.Name)
		}
	}

	return names, nil
}
