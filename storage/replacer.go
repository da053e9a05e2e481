package storage

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

// ReplacementStrategy selects the policy a BufferPool uses to pick victim frames.
type ReplacementStrategy int

const (
	// FIFO evicts the frame whose page was loaded earliest.
	FIFO ReplacementStrategy = iota
	// LRU evicts the frame whose page was used least recently.
	LRU
	// Clock approximates LRU with a reference bit and a sweeping hand.
	Clock
)

func (s ReplacementStrategy) String() string {
	switch s {
	case FIFO:
		return "fifo"
	case LRU:
		return "lru"
	case Clock:
		return "clock"
	}
	return "unknown"
}

// ParseReplacementStrategy maps a configuration value onto a strategy.
func ParseReplacementStrategy(name string) (ReplacementStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fifo":
		return FIFO, nil
	case "lru":
		return LRU, nil
	case "clock":
		return Clock, nil
	}
	return 0, errors.Errorf("unknown replacement strategy %q", name)
}

// Replacer decides which frame a BufferPool reuses on a miss. Every method is called with the pool latch
// held, so implementations need no synchronization of their own.
type Replacer interface {
	// Victim returns the index of an unpinned frame to reuse, or false if every frame is pinned.
	Victim(frames []PageFrame) (int, bool)
	// Installed is called after a page has been loaded into frame idx.
	Installed(idx int)
	// Accessed is called when an already resident page in frame idx is pinned again.
	Accessed(idx int)
	// Unpinned is called after the fix count of frame idx was decremented.
	Unpinned(idx int)
}

func newReplacer(strategy ReplacementStrategy, numFrames int) Replacer {
	switch strategy {
	case FIFO:
		return &fifoReplacer{}
	case LRU:
		return newLRUReplacer(numFrames)
	case Clock:
		return &clockReplacer{}
	}
	panic("unknown replacement strategy")
}

// fifoReplacer keeps a circular cursor at the oldest loaded frame. Pinned frames are skipped, and the
// cursor moves past whichever frame is chosen.
type fifoReplacer struct {
	cursor int
}

func (r *fifoReplacer) Victim(frames []PageFrame) (int, bool) {
	n := len(frames)
	for i := 0; i < n; i++ {
		idx := (r.cursor + i) % n
		if frames[idx].fixCount == 0 {
			r.cursor = (idx + 1) % n
			return idx, true
		}
	}
	return 0, false
}

func (r *fifoReplacer) Installed(int) {}
func (r *fifoReplacer) Accessed(int)  {}
func (r *fifoReplacer) Unpinned(int)  {}

type lruItem struct {
	stamp uint64
	frame int
}

// lruReplacer gives every frame a recency stamp from a monotonically increasing counter. The stamps are
// kept ordered in a btree, so the victim is the first unpinned frame in ascending stamp order.
type lruReplacer struct {
	order  *btree.BTreeG[lruItem]
	stamps []uint64
	clock  uint64
}

func newLRUReplacer(numFrames int) *lruReplacer {
	r := &lruReplacer{
		order: btree.NewBTreeG(func(a, b lruItem) bool {
			return a.stamp < b.stamp
		}),
		stamps: make([]uint64, numFrames),
	}
	// Initial stamps follow frame order so that empty frames fill up front to back.
	for i := range r.stamps {
		r.stamps[i] = r.clock
		r.order.Set(lruItem{stamp: r.clock, frame: i})
		r.clock++
	}
	return r
}

func (r *lruReplacer) touch(idx int) {
	r.order.Delete(lruItem{stamp: r.stamps[idx], frame: idx})
	r.stamps[idx] = r.clock
	r.order.Set(lruItem{stamp: r.clock, frame: idx})
	r.clock++
}

func (r *lruReplacer) Victim(frames []PageFrame) (int, bool) {
	victim := -1
	r.order.Scan(func(item lruItem) bool {
		if frames[item.frame].fixCount == 0 {
			victim = item.frame
			return false
		}
		return true
	})
	return victim, victim >= 0
}

func (r *lruReplacer) Installed(idx int) { r.touch(idx) }
func (r *lruReplacer) Accessed(idx int)  { r.touch(idx) }
func (r *lruReplacer) Unpinned(idx int)  { r.touch(idx) }

// clockReplacer is the second-chance policy: a hit sets the frame's reference bit, and the hand clears
// bits as it sweeps until it finds an unpinned frame whose bit is already clear.
type clockReplacer struct {
	hand int
}

func (r *clockReplacer) Victim(frames []PageFrame) (int, bool) {
	n := len(frames)
	// One sweep clears every reference bit, so the second finds a victim if one exists.
	for i := 0; i < 2*n; i++ {
		idx := r.hand
		r.hand = (r.hand + 1) % n

		frame := &frames[idx]
		if frame.fixCount > 0 {
			continue
		}
		if !frame.refBit {
			return idx, true
		}
		frame.refBit = false
	}
	return 0, false
}

func (r *clockReplacer) Installed(int) {}
func (r *clockReplacer) Accessed(int)  {}
func (r *clockReplacer) Unpinned(int)  {}
