package eventjoin

import (
	"iter"
)

// Element is the recycling contract for TimeSequenceBuffer slots: Init stamps
// the static shape once, Reset clears per-event state so the slot can be reused.
type Element[E any, A any] interface {
	*E
	Init(template A)
	Reset()
}

type entry[E any] struct {
	key  uint64
	item E
}

// TimeSequenceBuffer is a fixed-capacity ring of keyed slots addressed by a
// monotonically increasing sequence number. Slots in [read, write) are live.
// Allocating into a full buffer silently recycles the oldest live slot.
//
// Keys are supplied by the caller and are expected to be non-decreasing across
// GetBuffer calls; PurgeUntilKey relies on it. Not safe for concurrent use.
type TimeSequenceBuffer[E any, A any, PE Element[E, A]] struct {
	slots []entry[E]
	read  uint64
	write uint64
}

// NewTimeSequenceBuffer allocates capacity slots. Panics if capacity < 1.
func NewTimeSequenceBuffer[E any, A any, PE Element[E, A]](capacity int) *TimeSequenceBuffer[E, A, PE] {
	if capacity < 1 {
		panic("eventjoin: sequence buffer capacity must be > 0")
	}
	return &TimeSequenceBuffer[E, A, PE]{
		slots: make([]entry[E], capacity),
	}
}

// Init calls Init(template) on every slot
func (b *TimeSequenceBuffer[E, A, PE]) Init(template A) {
	for i := range b.slots {
		PE(&b.slots[i].item).Init(template)
	}
}

// Len returns the number of live slots
func (b *TimeSequenceBuffer[E, A, PE]) Len() int {
	return int(b.write - b.read)
}

// Cap returns the fixed number of slots
func (b *TimeSequenceBuffer[E, A, PE]) Cap() int {
	return len(b.slots)
}

func (b *TimeSequenceBuffer[E, A, PE]) at(seq uint64) *entry[E] {
	return &b.slots[seq%uint64(len(b.slots))]
}

// GetBuffer allocates the next slot stamped with key. If the buffer is full the
// oldest live slot is reset and dropped first.
func (b *TimeSequenceBuffer[E, A, PE]) GetBuffer(key uint64) Cursor[E, A, PE] {
	if b.write-b.read == uint64(len(b.slots)) {
		PE(&b.at(b.read).item).Reset()
		b.read++
	}

	c := Cursor[E, A, PE]{seq: b.write, buf: b}
	b.at(b.write).key = key
	b.write++
	return c
}

// FindIf returns the oldest live slot matching pred, or End()
func (b *TimeSequenceBuffer[E, A, PE]) FindIf(pred func(key uint64, item PE) bool) Cursor[E, A, PE] {
	end := b.End()
	for c := b.Begin(); !c.Equal(end); c = c.Next() {
		if pred(c.Key(), c.Item()) {
			return c
		}
	}
	return end
}

// PurgeUntil resets and drops every live slot from the oldest through pos.
// A cursor that is not live in this buffer is rejected with ErrCursorNotLive.
func (b *TimeSequenceBuffer[E, A, PE]) PurgeUntil(pos Cursor[E, A, PE]) error {
	if !pos.Live() || pos.buf != b {
		return ErrCursorNotLive
	}
	for b.read <= pos.seq {
		PE(&b.at(b.read).item).Reset()
		b.read++
	}
	return nil
}

// PurgeUntilKey resets and drops live slots, oldest first, while their key is
// <= key. It stops at the first larger key and returns how many were dropped.
func (b *TimeSequenceBuffer[E, A, PE]) PurgeUntilKey(key uint64) int {
	n := 0
	for b.read != b.write {
		e := b.at(b.read)
		if e.key > key {
			break
		}
		PE(&e.item).Reset()
		b.read++
		n++
	}
	return n
}

// Begin returns a cursor at the oldest live slot
func (b *TimeSequenceBuffer[E, A, PE]) Begin() Cursor[E, A, PE] {
	return Cursor[E, A, PE]{seq: b.read, buf: b}
}

// End returns the cursor one past the newest live slot
func (b *TimeSequenceBuffer[E, A, PE]) End() Cursor[E, A, PE] {
	return Cursor[E, A, PE]{seq: b.write, buf: b}
}

// All iterates over live slots from oldest to newest. The buffer must not be
// mutated during iteration.
func (b *TimeSequenceBuffer[E, A, PE]) All() iter.Seq2[uint64, PE] {
	return func(yield func(uint64, PE) bool) {
		for seq := b.read; seq != b.write; seq++ {
			e := b.at(seq)
			if !yield(e.key, PE(&e.item)) {
				return
			}
		}
	}
}

// Cursor is a position in a TimeSequenceBuffer's sequence space.
//
// A cursor is only meaningful until the next GetBuffer or PurgeUntil* call on
// its buffer: after that the slot it maps to may have been recycled for
// another key. Callers must not keep cursors across such calls.
type Cursor[E any, A any, PE Element[E, A]] struct {
	seq uint64
	buf *TimeSequenceBuffer[E, A, PE]
}

// Seq returns the logical sequence number
func (c Cursor[E, A, PE]) Seq() uint64 { return c.seq }

// Key returns the key stamped on the slot
func (c Cursor[E, A, PE]) Key() uint64 { return c.buf.at(c.seq).key }

// Item returns the slot's element
func (c Cursor[E, A, PE]) Item() PE { return PE(&c.buf.at(c.seq).item) }

// Next advances one slot
func (c Cursor[E, A, PE]) Next() Cursor[E, A, PE] {
	c.seq++
	return c
}

func (c Cursor[E, A, PE]) Equal(o Cursor[E, A, PE]) bool {
	return c.seq == o.seq && c.buf == o.buf
}

// Live reports whether the cursor currently maps to a live slot
func (c Cursor[E, A, PE]) Live() bool {
	return c.buf != nil && c.seq >= c.buf.read && c.seq < c.buf.write
}
