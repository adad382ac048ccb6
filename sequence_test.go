package eventjoin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// counter is a minimal slot element that records its recycling history
type counter struct {
	label  string
	value  int
	resets int
}

func (c *counter) Init(label string) { c.label = label }
func (c *counter) Reset() {
	c.value = 0
	c.resets++
}

func newCounterBuffer(capacity int) *TimeSequenceBuffer[counter, string, *counter] {
	b := NewTimeSequenceBuffer[counter, string](capacity)
	b.Init("slot")
	return b
}

func keys(b *TimeSequenceBuffer[counter, string, *counter]) []uint64 {
	var out []uint64
	for k := range b.All() {
		out = append(out, k)
	}
	return out
}

func TestSequenceBufferInit(t *testing.T) {
	b := newCounterBuffer(3)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 3, b.Cap())
	assert.True(t, b.Begin().Equal(b.End()))

	c := b.GetBuffer(1)
	assert.Equal(t, "slot", c.Item().label)
	assert.Panics(t, func() { NewTimeSequenceBuffer[counter, string](0) })
}

func TestSequenceBufferEvictsOldest(t *testing.T) {
	b := newCounterBuffer(3)
	for k := uint64(1); k <= 3; k++ {
		b.GetBuffer(k).Item().value = int(k)
	}
	require.Equal(t, 3, b.Len())
	first := b.Begin().Item()

	b.GetBuffer(4)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []uint64{2, 3, 4}, keys(b))
	// the slot reused for key 4 was the one holding key 1, reset on eviction
	assert.Equal(t, 1, first.resets)
	assert.Equal(t, 0, first.value)
}

func TestSequenceBufferFindIf(t *testing.T) {
	b := newCounterBuffer(4)
	for k := uint64(10); k < 14; k++ {
		b.GetBuffer(k).Item().value = int(k) * 2
	}

	c := b.FindIf(func(_ uint64, item *counter) bool { return item.value == 24 })
	require.False(t, c.Equal(b.End()))
	assert.Equal(t, uint64(12), c.Key())
	assert.True(t, c.Live())

	none := b.FindIf(func(key uint64, _ *counter) bool { return key == 99 })
	assert.True(t, none.Equal(b.End()))
	assert.False(t, none.Live())
}

func TestSequenceBufferPurgeUntilCursor(t *testing.T) {
	b := newCounterBuffer(4)
	for k := uint64(1); k <= 4; k++ {
		b.GetBuffer(k)
	}

	pos := b.FindIf(func(key uint64, _ *counter) bool { return key == 2 })
	require.NoError(t, b.PurgeUntil(pos))
	assert.Equal(t, []uint64{3, 4}, keys(b))

	// already purged
	assert.ErrorIs(t, b.PurgeUntil(pos), ErrCursorNotLive)
	// one past the newest
	assert.ErrorIs(t, b.PurgeUntil(b.End()), ErrCursorNotLive)
	// another buffer's cursor
	other := newCounterBuffer(2)
	assert.ErrorIs(t, b.PurgeUntil(other.GetBuffer(3)), ErrCursorNotLive)
	assert.Equal(t, []uint64{3, 4}, keys(b))

	last := b.FindIf(func(key uint64, _ *counter) bool { return key == 4 })
	require.NoError(t, b.PurgeUntil(last))
	assert.Equal(t, 0, b.Len())
}

func TestSequenceBufferPurgeUntilKey(t *testing.T) {
	b := newCounterBuffer(5)
	for _, k := range []uint64{1, 3, 3, 7, 9} {
		b.GetBuffer(k)
	}

	assert.Equal(t, 0, b.PurgeUntilKey(0))
	assert.Equal(t, 3, b.PurgeUntilKey(5))
	assert.Equal(t, []uint64{7, 9}, keys(b))
	assert.Equal(t, 2, b.PurgeUntilKey(100))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, b.PurgeUntilKey(100))
}

func TestSequenceBufferCursorWalk(t *testing.T) {
	b := newCounterBuffer(3)
	for k := uint64(1); k <= 5; k++ {
		b.GetBuffer(k)
	}

	var walked []uint64
	for c := b.Begin(); !c.Equal(b.End()); c = c.Next() {
		walked = append(walked, c.Key())
	}
	assert.Equal(t, []uint64{3, 4, 5}, walked)
	assert.Equal(t, uint64(2), b.Begin().Seq())
}

// For any sequence of allocations and key purges, the buffer SHALL never hold
// more than its capacity, SHALL keep the newest keys in order, and
// PurgeUntilKey SHALL remove exactly the prefix with keys <= threshold.
func TestPropertySequenceBufferModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(rt, "capacity")
		b := newCounterBuffer(capacity)

		var model []uint64
		var next uint64

		ops := rapid.IntRange(1, 60).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			if rapid.Bool().Draw(rt, "alloc") {
				next += rapid.Uint64Range(0, 3).Draw(rt, "step")
				b.GetBuffer(next)
				model = append(model, next)
				if len(model) > capacity {
					model = model[1:]
				}
			} else {
				threshold := rapid.Uint64Range(0, next+1).Draw(rt, "threshold")
				want := 0
				for want < len(model) && model[want] <= threshold {
					want++
				}
				if got := b.PurgeUntilKey(threshold); got != want {
					rt.Fatalf("PurgeUntilKey(%d) purged %d, expected %d", threshold, got, want)
				}
				model = model[want:]
			}

			if b.Len() > b.Cap() {
				rt.Fatalf("size %d exceeds capacity %d", b.Len(), b.Cap())
			}
			if diff := cmp.Diff(model, keys(b)); diff != "" && !(len(model) == 0 && b.Len() == 0) {
				rt.Fatalf("live keys mismatch (-model +buffer):\n%s", diff)
			}
		}
	})
}
