package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewport_IsNearBottom(t *testing.T) {
	v := NewViewport(DefaultNearBottom)

	assert.True(t, v.IsNearBottom(Metrics{ScrollHeight: 1000, ClientHeight: 500, ScrollTop: 450}))
	assert.False(t, v.IsNearBottom(Metrics{ScrollHeight: 1000, ClientHeight: 500, ScrollTop: 300}))
	assert.False(t, v.IsNearBottom(Metrics{ScrollHeight: 1000, ClientHeight: 500, ScrollTop: 400}), "distance 100 is not < 100")
}

func TestViewport_InitialMountScrollsInstantly(t *testing.T) {
	v := NewViewport(0)

	assert.Equal(t, ScrollNone, v.OnCountChange(0))
	assert.Equal(t, ScrollInstant, v.OnCountChange(50))
	assert.Equal(t, ScrollNone, v.OnCountChange(50))
}

func TestViewport_AutoScrollOnlyNearBottom(t *testing.T) {
	v := NewViewport(100)
	v.OnCountChange(50)

	v.OnScroll(Metrics{ScrollHeight: 1000, ClientHeight: 500, ScrollTop: 450})
	assert.Equal(t, ScrollSmooth, v.OnCountChange(51))
	assert.False(t, v.ShowJump())

	v.OnScroll(Metrics{ScrollHeight: 1100, ClientHeight: 500, ScrollTop: 200})
	assert.Equal(t, ScrollNone, v.OnCountChange(52))
	assert.True(t, v.ShowJump())

	v.JumpToBottom()
	assert.False(t, v.ShowJump())
	assert.True(t, v.NearBottom())
}

func TestViewport_ScrollingBackHidesJump(t *testing.T) {
	v := NewViewport(100)
	v.OnCountChange(10)
	v.OnScroll(Metrics{ScrollHeight: 1000, ClientHeight: 500, ScrollTop: 0})
	v.OnCountChange(11)
	assert.True(t, v.ShowJump())

	v.OnScroll(Metrics{ScrollHeight: 1000, ClientHeight: 500, ScrollTop: 480})
	assert.False(t, v.ShowJump())
}

func TestViewport_LoadMoreOncePerInFlightLoad(t *testing.T) {
	v := NewViewport(100)
	v.SetHasMore(true)
	v.OnCountChange(50)

	top := Metrics{ScrollHeight: 5000, ClientHeight: 500, ScrollTop: 0}

	calls := 0
	for i := 0; i < 5; i++ {
		if v.OnScroll(top) {
			calls++
		}
	}
	assert.Equal(t, 1, calls)
	assert.True(t, v.Loading())

	v.OnOlderLoaded(100)
	assert.False(t, v.Loading())
	assert.True(t, v.OnScroll(top), "a new top event after completion loads again")
}

func TestViewport_NoLoadWithoutMore(t *testing.T) {
	v := NewViewport(100)
	v.SetHasMore(false)
	assert.False(t, v.OnScroll(Metrics{ScrollHeight: 900, ClientHeight: 300, ScrollTop: 0}))
	assert.False(t, v.OnScroll(Metrics{ScrollHeight: 900, ClientHeight: 300, ScrollTop: 1}))
}

func TestViewport_OlderPageDoesNotShowJump(t *testing.T) {
	v := NewViewport(100)
	v.SetHasMore(true)
	v.OnCountChange(50)

	assert.True(t, v.OnScroll(Metrics{ScrollHeight: 5000, ClientHeight: 500, ScrollTop: 0}))
	v.OnOlderLoaded(100)
	assert.False(t, v.ShowJump())
	assert.Equal(t, ScrollNone, v.OnCountChange(100))
}

func TestViewport_LoadFailedAllowsRetry(t *testing.T) {
	v := NewViewport(100)
	v.SetHasMore(true)
	top := Metrics{ScrollHeight: 5000, ClientHeight: 500, ScrollTop: 0}

	assert.True(t, v.OnScroll(top))
	v.LoadFailed()
	assert.True(t, v.OnScroll(top))
}

func TestShowEmptyState(t *testing.T) {
	assert.True(t, ShowEmptyState(0, false))
	assert.False(t, ShowEmptyState(0, true))
	assert.False(t, ShowEmptyState(1, false))
}

func TestTypingLabel(t *testing.T) {
	assert.Equal(t, "", TypingLabel(nil))
	assert.Equal(t, "Alice is typing...", TypingLabel([]string{"Alice"}))
	assert.Equal(t, "Alice and Bob are typing...", TypingLabel([]string{"Alice", "Bob"}))
	assert.Equal(t, "Alice, Bob and 1 other are typing...", TypingLabel([]string{"Alice", "Bob", "Carol"}))
	assert.Equal(t, "Alice, Bob and 2 others are typing...", TypingLabel([]string{"Alice", "Bob", "Carol", "Dan"}))
}
