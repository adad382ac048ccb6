package eventjoin

import (
	"fmt"
	"slices"
	"strings"
)

// ActionGroup is an immutable set of sources that must all have arrived
// before the group fires
type ActionGroup struct {
	name    string
	groupID uint64
}

// NewActionGroup builds a group from its sources, as given by the caller, and
// the barrier's sorted source table. The name keeps the caller's order; the id
// has bit i set for every source at index i in sourceIndex.
func NewActionGroup(sources []string, sourceIndex []string) (ActionGroup, error) {
	if len(sources) == 0 {
		return ActionGroup{}, ErrEmptyGroup
	}

	var id uint64
	for _, source := range sources {
		idx := slices.Index(sourceIndex, source)
		if idx < 0 {
			return ActionGroup{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
		}
		id |= 1 << uint(idx)
	}

	return ActionGroup{
		name:    "[" + strings.Join(sources, ", ") + "]",
		groupID: id,
	}, nil
}

// Name returns the display name, e.g. "[C, B]"
func (g ActionGroup) Name() string {
	return g.name
}

// GroupID returns the bitmask of required sources.
// For group (A, B) with {A: 0, B: 2} the id is 0b101.
func (g ActionGroup) GroupID() uint64 {
	return g.groupID
}

// CanTrigger reports whether every required source is set in active
func (g ActionGroup) CanTrigger(active uint64) bool {
	return g.groupID&active == g.groupID
}

func (g ActionGroup) String() string {
	return fmt.Sprintf("%s(%#b)", g.name, g.groupID)
}
