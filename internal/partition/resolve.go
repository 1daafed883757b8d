package partition

import (
	"sort"
	"time"
)

// resolveWindow returns the part of a sorted timeline selected by
// [start, end].
//
// The lower boundary is the first partition created at or after start. The
// upper boundary is the first partition created after end, except that when
// end falls exactly on the timestamp of any partition but the first, the
// following partition is selected as well.
//
// TODO: confirm with product owners whether an exact end match should stop
// at the matching partition instead.
func resolveWindow(timeline []time.Time, start, end time.Time) []time.Time {
	n := len(timeline)
	lo := sort.Search(n, func(i int) bool { return !timeline[i].Before(start) })
	hi := sort.Search(n, func(i int) bool { return timeline[i].After(end) })
	if hi > 1 && timeline[hi-1].Equal(end) {
		hi = min(hi+1, n)
	}
	if lo >= hi {
		return nil
	}

	out := make([]time.Time, hi-lo)
	copy(out, timeline[lo:hi])
	return out
}
