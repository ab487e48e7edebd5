package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversAfterFlushInOrder(t *testing.T) {
	b := NewBus()
	var got []uint64
	Subscribe(b, func(e ObjectEnteredRange) { got = append(got, uint64(e.Target)) })
	Subscribe(b, func(e ObjectLeftRange) { got = append(got, 100+uint64(e.Target)) })

	Emit(b, ObjectEnteredRange{Target: 1})
	Emit(b, ObjectLeftRange{Target: 2})
	Emit(b, ObjectEnteredRange{Target: 3})
	assert.Empty(t, got, "nothing is delivered before Flush")
	assert.Equal(t, 3, b.Pending())

	assert.Equal(t, 3, b.Flush())
	assert.Equal(t, []uint64{1, 102, 3}, got)
	assert.Equal(t, 0, b.Flush())
}

func TestBus_EmitDuringFlushWaitsForNextFlush(t *testing.T) {
	b := NewBus()
	var seen int
	Subscribe(b, func(e GridLoaded) {
		seen++
		if e.GridX == 0 {
			Emit(b, GridLoaded{GridX: 1})
		}
	})
	Emit(b, GridLoaded{GridX: 0})

	b.Flush()
	assert.Equal(t, 1, seen)
	assert.Equal(t, 1, b.Pending())
	b.Flush()
	assert.Equal(t, 2, seen)
}

func TestBus_SubscribeFromHandler(t *testing.T) {
	b := NewBus()
	var unloaded []uint32
	Subscribe(b, func(GridLoaded) {
		Subscribe(b, func(e GridUnloaded) { unloaded = append(unloaded, e.GridX) })
	})
	Emit(b, GridUnloaded{GridX: 1})
	Emit(b, GridLoaded{})
	Emit(b, GridUnloaded{GridX: 2})

	assert.Equal(t, 3, b.Flush())
	assert.Equal(t, []uint32{2}, unloaded, "subscribed mid-flush, sees the later event only")
}
