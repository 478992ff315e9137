package feed

import (
	"fmt"
	"strings"
)

// DefaultNearBottom is the distance from the bottom, in scroll units, under
// which the reader counts as following the feed.
const DefaultNearBottom = 100

// Metrics is one scroll measurement of the feed container.
type Metrics struct {
	ScrollHeight int
	ScrollTop    int
	ClientHeight int
}

func (m Metrics) DistanceFromBottom() int {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

type ScrollIntent int

const (
	ScrollNone ScrollIntent = iota
	ScrollInstant
	ScrollSmooth
)

// Viewport decides between auto-scroll and the jump-to-bottom affordance
// and gates backward pagination. It is owned by the UI loop and is not
// safe for concurrent use.
type Viewport struct {
	threshold  int
	nearBottom bool
	hasMore    bool
	loading    bool
	mounted    bool
	lastCount  int
	showJump   bool
}

func NewViewport(threshold int) *Viewport {
	if threshold <= 0 {
		threshold = DefaultNearBottom
	}
	return &Viewport{
		threshold:  threshold,
		nearBottom: true,
	}
}

// IsNearBottom reports whether m is within the threshold of the bottom.
func (v *Viewport) IsNearBottom(m Metrics) bool {
	return m.DistanceFromBottom() < v.threshold
}

// OnScroll records a scroll event and reports whether older messages
// should be requested now.
func (v *Viewport) OnScroll(m Metrics) bool {
	v.nearBottom = v.IsNearBottom(m)
	if v.nearBottom {
		v.showJump = false
	}
	if m.ScrollTop == 0 && v.hasMore && !v.loading {
		v.loading = true
		return true
	}
	return false
}

// OnCountChange is called when the number of rendered messages changes
// because of a new page or a live message at the end.
func (v *Viewport) OnCountChange(n int) ScrollIntent {
	defer func() { v.lastCount = n }()

	if !v.mounted {
		if n == 0 {
			return ScrollNone
		}
		v.mounted = true
		v.nearBottom = true
		return ScrollInstant
	}
	if n <= v.lastCount {
		return ScrollNone
	}
	if v.nearBottom {
		v.showJump = false
		return ScrollSmooth
	}
	v.showJump = true
	return ScrollNone
}

// OnOlderLoaded ends an in-flight load; the prepended messages never
// trigger auto-scroll or the affordance.
func (v *Viewport) OnOlderLoaded(n int) {
	v.loading = false
	v.lastCount = n
}

// LoadFailed ends an in-flight load without changing the count.
func (v *Viewport) LoadFailed() {
	v.loading = false
}

// JumpToBottom is the affordance being used.
func (v *Viewport) JumpToBottom() {
	v.nearBottom = true
	v.showJump = false
}

func (v *Viewport) SetHasMore(hasMore bool) { v.hasMore = hasMore }
func (v *Viewport) Loading() bool          { return v.loading }
func (v *Viewport) NearBottom() bool       { return v.nearBottom }
func (v *Viewport) ShowJump() bool         { return v.showJump }

// ShowEmptyState reports whether the placeholder replaces the list.
func ShowEmptyState(count int, loading bool) bool {
	return count == 0 && !loading
}

// TypingLabel renders the typing row for the given display names.
func TypingLabel(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", names[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing...", names[0], names[1])
	default:
		rest := len(names) - 2
		others := "others"
		if rest == 1 {
			others = "other"
		}
		return fmt.Sprintf("%s and %d %s are typing...", strings.Join(names[:2], ", "), rest, others)
	}
}
