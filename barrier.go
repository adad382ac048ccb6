package eventjoin

import (
	"fmt"
	"iter"
	"math/bits"
	"slices"

	"github.com/creastat/eventjoin/core"
)

// DefaultCacheItemSize is the capacity reserved up front for every source's payload cache
const DefaultCacheItemSize = 512

// GroupBarrier tracks which sources have arrived during the current epoch and
// fires each action group the first time all of its sources are active.
//
// The source table and groups are fixed at construction and shared by clones;
// everything else is per-epoch state cleared by Reset. A GroupBarrier is not
// safe for concurrent use.
type GroupBarrier struct {
	sources []string
	index   map[string]int
	groups  []ActionGroup

	active    uint64
	triggered []int
	cache     [][]byte
}

// NewGroupBarrier builds a barrier from ordered groups of source names. Sources
// are indexed by their rank in the sorted, deduplicated union of all names.
func NewGroupBarrier(groups [][]string) (*GroupBarrier, error) {
	var sources []string
	for _, g := range groups {
		sources = append(sources, g...)
	}
	slices.Sort(sources)
	sources = slices.Compact(sources)

	if len(sources) > MaxSources {
		return nil, ValidationError{
			Message: "group barrier",
			Details: fmt.Sprintf("%d sources exceed limit %d", len(sources), MaxSources),
			Err:     ErrTooManySources,
		}
	}

	index := make(map[string]int, len(sources))
	for i, s := range sources {
		index[s] = i
	}

	actionGroups := make([]ActionGroup, 0, len(groups))
	for i, g := range groups {
		ag, err := NewActionGroup(g, sources)
		if err != nil {
			return nil, ValidationError{
				Message: "group barrier",
				Details: fmt.Sprintf("group %d: %v", i, err),
				Err:     err,
			}
		}
		actionGroups = append(actionGroups, ag)
	}

	b := &GroupBarrier{
		sources: sources,
		index:   index,
		groups:  actionGroups,
	}
	b.allocState()
	return b, nil
}

// MustGroupBarrier is like NewGroupBarrier but panics on error
func MustGroupBarrier(groups [][]string) *GroupBarrier {
	b, err := NewGroupBarrier(groups)
	if err != nil {
		panic(err)
	}
	return b
}

// allocState reserves the per-epoch storage. triggered never grows past
// len(groups), so views handed out by Activate are not reallocated under the caller.
func (b *GroupBarrier) allocState() {
	b.active = 0
	b.triggered = make([]int, 0, len(b.groups))
	b.cache = make([][]byte, len(b.sources))
	for i := range b.cache {
		b.cache[i] = make([]byte, 0, DefaultCacheItemSize)
	}
}

// Clone returns a barrier with the same sources and groups and fresh epoch state
func (b *GroupBarrier) Clone() *GroupBarrier {
	c := &GroupBarrier{
		sources: b.sources,
		index:   b.index,
		groups:  b.groups,
	}
	c.allocState()
	return c
}

// GetSourceIndex returns the bit index of a source
func (b *GroupBarrier) GetSourceIndex(name string) (int, error) {
	idx, ok := b.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return idx, nil
}

// MustSourceIndex is like GetSourceIndex but panics for unknown names
func (b *GroupBarrier) MustSourceIndex(name string) int {
	idx, err := b.GetSourceIndex(name)
	if err != nil {
		panic(err)
	}
	return idx
}

// Sources returns the sorted source table. It must not be modified.
func (b *GroupBarrier) Sources() []string { return b.sources }

// Groups returns the action groups in definition order. It must not be modified.
func (b *GroupBarrier) Groups() []ActionGroup { return b.groups }

func (b *GroupBarrier) NumSources() int { return len(b.sources) }
func (b *GroupBarrier) NumGroups() int  { return len(b.groups) }

// ActiveMask returns the sources that arrived since the last Reset
func (b *GroupBarrier) ActiveMask() uint64 { return b.active }

// Triggered returns every group fired this epoch, in firing order
func (b *GroupBarrier) Triggered() TriggeredGroups {
	return TriggeredGroups{groups: b.groups, idx: b.triggered}
}

// Pending returns the groups that have not fired yet, in definition order
func (b *GroupBarrier) Pending() []ActionGroup {
	var out []ActionGroup
	for i, g := range b.groups {
		if !slices.Contains(b.triggered, i) {
			out = append(out, g)
		}
	}
	return out
}

// AllTriggered reports whether every group fired this epoch
func (b *GroupBarrier) AllTriggered() bool {
	return len(b.triggered) == len(b.groups)
}

// Activate marks a source as arrived and fires every group that became
// satisfiable. It returns the union of the fired groups' ids and the groups
// fired by this call in definition order; both are empty if nothing fired.
//
// This is the low-level primitive behind ArriveSource. It neither caches
// payloads nor calls a visitor. idx may be any bit in [0, MaxSources); bits
// outside the source table are recorded but no group requires them.
func (b *GroupBarrier) Activate(idx int) (uint64, TriggeredGroups) {
	if idx < 0 || idx >= MaxSources {
		panic(fmt.Sprintf("eventjoin: source index %d out of range", idx))
	}
	b.active |= 1 << uint(idx)

	start := len(b.triggered)
	var required uint64
	for i, g := range b.groups {
		if slices.Contains(b.triggered[:start], i) {
			continue
		}
		if g.CanTrigger(b.active) {
			required |= g.GroupID()
			b.triggered = append(b.triggered, i)
		}
	}

	return required, TriggeredGroups{groups: b.groups, idx: b.triggered[start:]}
}

// ArriveSource records data as the latest payload of source idx and fires any
// groups it completes. When something fires, visitor is called once for every
// source required by the fired groups, in ascending index order. The arriving
// source is replayed from data when visitCurrentSource is set, otherwise from
// the cache; every other source is replayed from the cache.
//
// The returned groups are valid until the next call that mutates the barrier.
func (b *GroupBarrier) ArriveSource(idx int, visitor core.Visitor, data []byte, visitCurrentSource bool) (bool, TriggeredGroups) {
	if idx >= 0 && idx < len(b.cache) {
		b.cache[idx] = append(b.cache[idx][:0], data...)
	}

	required, fired := b.Activate(idx)
	if required == 0 {
		return false, fired
	}

	for required != 0 {
		i := bits.TrailingZeros64(required)
		required &^= 1 << uint(i)

		if i == idx && visitCurrentSource {
			visitor(data)
		} else {
			visitor(b.cache[i])
		}
	}
	return true, fired
}

// ArriveSourceByName resolves name and calls ArriveSource, replaying the arriving payload directly
func (b *GroupBarrier) ArriveSourceByName(name string, visitor core.Visitor, data []byte) (bool, TriggeredGroups, error) {
	idx, err := b.GetSourceIndex(name)
	if err != nil {
		return false, TriggeredGroups{}, err
	}
	fired, groups := b.ArriveSource(idx, visitor, data, true)
	return fired, groups, nil
}

// Reset starts a new epoch. Source and group tables, and cache capacity, are kept.
func (b *GroupBarrier) Reset() {
	b.active = 0
	b.triggered = b.triggered[:0]
	for i := range b.cache {
		b.cache[i] = b.cache[i][:0]
	}
}

// TriggeredGroups is a read-only view of fired groups, referenced by their
// position in the barrier's group list
type TriggeredGroups struct {
	groups []ActionGroup
	idx    []int
}

func (t TriggeredGroups) Len() int { return len(t.idx) }

// At returns the i-th fired group
func (t TriggeredGroups) At(i int) ActionGroup {
	return t.groups[t.idx[i]]
}

func (t TriggeredGroups) Names() []string {
	out := make([]string, len(t.idx))
	for i, gi := range t.idx {
		out[i] = t.groups[gi].Name()
	}
	return out
}

func (t TriggeredGroups) IDs() []uint64 {
	out := make([]uint64, len(t.idx))
	for i, gi := range t.idx {
		out[i] = t.groups[gi].GroupID()
	}
	return out
}

// All iterates over the fired groups in firing order
func (t TriggeredGroups) All() iter.Seq2[int, ActionGroup] {
	return func(yield func(int, ActionGroup) bool) {
		for i, gi := range t.idx {
			if !yield(i, t.groups[gi]) {
				return
			}
		}
	}
}
