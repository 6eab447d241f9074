package core

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// A Snapshot is the full workflow configuration of an environment: groups
// with their members plus the node-level and type-level permission maps.
// Chains reference groups by alias so a snapshot can move between
// environments with different group ids.
type Snapshot struct {
	Groups     []GroupExport    `json:"groups" validate:"dive"`
	NodeChains map[int][]string `json:"nodeChains" validate:"dive,min=1,dive,required"`
	TypeChains map[int][]string `json:"typeChains" validate:"dive,min=1,dive,required"`
}

type GroupExport struct {
	Name        string `json:"name" validate:"required"`
	Alias       string `json:"alias" validate:"required"`
	Description string `json:"description"`
	Deleted     bool   `json:"deleted"`
	Members     []int  `json:"members"`
}

var validate = validator.New()

// Export produces the full configuration snapshot. Soft-deleted groups are
// included so historical task snapshots stay resolvable after an import.
// Aliases must be unique within a snapshot, but a deleted group can share its
// alias with a later group that reused the name. Chains can only reference the
// live group, so on a collision the deleted group is left out.
func (c *CoreDB) Export() (*Snapshot, error) {

	groups, err := c.GroupDB.GetAllGroups(true)
	if err != nil {
		return nil, err
	}

	var snap = &Snapshot{
		NodeChains: make(map[int][]string),
		TypeChains: make(map[int][]string),
	}

	var aliases = make(map[int]string)
	var taken = make(map[string]bool)
	for _, deleted := range []bool{false, true} { // live groups claim their alias first
		for _, g := range groups {
			if g.Deleted() != deleted {
				continue
			}
			aliases[g.ID()] = g.Alias()
			if taken[g.Alias()] {
				continue
			}
			taken[g.Alias()] = true
			members, err := g.Members()
			if err != nil {
				return nil, err
			}
			var ids = make([]int, 0, len(members))
			for id := range members {
				ids = append(ids, id)
			}
			sort.Ints(ids)
			snap.Groups = append(snap.Groups, GroupExport{
				Name:        g.Name(),
				Alias:       g.Alias(),
				Description: g.Description(),
				Deleted:     g.Deleted(),
				Members:     ids,
			})
		}
	}

	nodeChains, err := c.ConfigDB.AllNodeChains()
	if err != nil {
		return nil, err
	}
	typeChains, err := c.ConfigDB.AllTypeChains()
	if err != nil {
		return nil, err
	}

	for nodeID, chain := range nodeChains {
		snap.NodeChains[nodeID] = chainAliases(chain, aliases)
	}
	for typeID, chain := range typeChains {
		snap.TypeChains[typeID] = chainAliases(chain, aliases)
	}

	return snap, nil
}

func chainAliases(chain Chain, aliases map[int]string) []string {
	sort.Slice(chain, func(i, j int) bool { return chain[i].Index < chain[j].Index })
	var result = make([]string, len(chain))
	for i, step := range chain {
		result[i] = aliases[step.GroupID]
	}
	return result
}

// Import replaces the current configuration with a snapshot. Each entity
// group is all-or-nothing: the group list fully replaces or is rejected,
// then both permission maps fully replace or are rejected. Workflow instances
// are never touched.
func (c *CoreDB) Import(snap *Snapshot) error {

	if err := validate.Struct(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var seen = make(map[string]bool)
	for _, g := range snap.Groups {
		if seen[g.Alias] {
			return fmt.Errorf("%w: duplicate group alias %q", ErrValidation, g.Alias)
		}
		seen[g.Alias] = true
	}

	if err := c.GroupDB.ReplaceAllGroups(snap.Groups); err != nil {
		return err
	}

	// resolve aliases against the freshly imported groups
	var byAlias = make(map[string]int)
	groups, err := c.GroupDB.GetAllGroups(true)
	if err != nil {
		return err
	}
	for _, g := range groups {
		byAlias[g.Alias()] = g.ID()
	}

	nodeChains, err := resolveChains(snap.NodeChains, byAlias)
	if err != nil {
		return err
	}
	typeChains, err := resolveChains(snap.TypeChains, byAlias)
	if err != nil {
		return err
	}

	return c.ConfigDB.ReplaceAllChains(nodeChains, typeChains)
}

func resolveChains(in map[int][]string, byAlias map[string]int) (map[int]Chain, error) {
	var out = make(map[int]Chain, len(in))
	for id, aliases := range in {
		var chain = make(Chain, len(aliases))
		for i, alias := range aliases {
			groupID, ok := byAlias[alias]
			if !ok {
				return nil, fmt.Errorf("%w: chain %d references unknown group alias %q", ErrValidation, id, alias)
			}
			chain[i] = Step{Index: i, GroupID: groupID}
		}
		out[id] = chain
	}
	return out, nil
}
