package storage

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/logger"
)

// BufferPool manages the reading and writing of pages between a PageFile and memory. It acts as a cache
// with a fixed number of frames: callers pin a page, read or modify its bytes through the returned
// PageHandle, mark it dirty if they changed it, and unpin it when done. When every frame is occupied, a
// miss evicts an unpinned frame chosen by the configured ReplacementStrategy, writing it back first if
// it is dirty.
//
// A single latch serializes frame-table mutation and the I/O of a miss. Page contents are not latched;
// callers coordinate access to the bytes of a pinned page themselves.
type BufferPool struct {
	file      PageFile
	strategy  ReplacementStrategy
	frames    []PageFrame
	replacer  Replacer
	pageTable *xsync.MapOf[common.PageNum, int]

	numReadIO  int
	numWriteIO int
	closed     bool

	mu  sync.Mutex
	log *logrus.Entry
}

// NewBufferPool creates a BufferPool with numFrames frames caching pages of file.
func NewBufferPool(file PageFile, numFrames int, strategy ReplacementStrategy) (*BufferPool, error) {
	if numFrames <= 0 {
		return nil, errors.Errorf("buffer pool needs at least one frame, got %d", numFrames)
	}
	bp := &BufferPool{
		file:      file,
		strategy:  strategy,
		frames:    make([]PageFrame, numFrames),
		replacer:  newReplacer(strategy, numFrames),
		pageTable: xsync.NewMapOf[common.PageNum, int](),
		log:       logger.WithComponent("bufferpool"),
	}
	for i := range bp.frames {
		bp.frames[i].reset()
	}
	return bp, nil
}

// InitBufferPool opens the page file at path and creates a BufferPool over it.
func InitBufferPool(path string, numFrames int, strategy ReplacementStrategy) (*BufferPool, error) {
	file, err := OpenPageFile(path)
	if err != nil {
		return nil, err
	}
	bp, err := NewBufferPool(file, numFrames, strategy)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return bp, nil
}

// File returns the underlying page file.
func (bp *BufferPool) File() PageFile {
	return bp.file
}

// Strategy returns the replacement strategy the pool was created with.
func (bp *BufferPool) Strategy() ReplacementStrategy {
	return bp.strategy
}

// NumFrames returns the capacity of the pool.
func (bp *BufferPool) NumFrames() int {
	return len(bp.frames)
}

func (bp *BufferPool) checkOpen() error {
	if bp.closed {
		return common.NewError(common.PoolClosedError, "buffer pool has been shut down")
	}
	return nil
}

// writeBack writes frame idx to its page and clears the dirty flag. Called with bp.mu held.
func (bp *BufferPool) writeBack(idx int) error {
	frame := &bp.frames[idx]
	if err := bp.file.WritePage(frame.pageNum, frame.Bytes[:]); err != nil {
		return err
	}
	bp.numWriteIO++
	frame.dirty = false
	return nil
}

// PinPage makes page pageNum resident and pins it, preventing its eviction until the matching UnpinPage.
// Pinning a page past the end of the file grows the file with zero pages first.
func (bp *BufferPool) PinPage(pageNum common.PageNum) (*PageHandle, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if err := bp.checkOpen(); err != nil {
		return nil, err
	}
	if pageNum < 0 {
		return nil, common.NewError(common.ReadNonExistingPageError, "invalid page number %d", pageNum)
	}

	if idx, ok := bp.pageTable.Load(pageNum); ok {
		frame := &bp.frames[idx]
		frame.fixCount++
		frame.refBit = true
		bp.replacer.Accessed(idx)
		return &PageHandle{PageNum: pageNum, Data: frame.Bytes[:]}, nil
	}

	idx, ok := bp.replacer.Victim(bp.frames)
	if !ok {
		return nil, common.NewError(common.PinnedPagesError,
			"cannot load page %d: all %d frames are pinned", pageNum, len(bp.frames))
	}
	frame := &bp.frames[idx]

	if !frame.isEmpty() {
		if frame.dirty {
			bp.log.WithFields(logrus.Fields{"frame": idx, "page": frame.pageNum}).Debug("write back dirty victim")
			if err := bp.writeBack(idx); err != nil {
				return nil, err
			}
		}
		bp.log.WithFields(logrus.Fields{"frame": idx, "evicted": frame.pageNum, "loaded": pageNum}).Debug("evict")
		bp.pageTable.Delete(frame.pageNum)
		frame.reset()
	}

	if int(pageNum) >= bp.file.NumPages() {
		if err := bp.file.EnsureCapacity(int(pageNum) + 1); err != nil {
			return nil, err
		}
	}
	if err := bp.file.ReadPage(pageNum, frame.Bytes[:]); err != nil {
		return nil, err
	}
	bp.numReadIO++

	frame.pageNum = pageNum
	frame.fixCount = 1
	// Do not initially set the ref bit -- only on second access do we consider it a true hot page
	frame.refBit = false
	frame.dirty = false
	bp.pageTable.Store(pageNum, idx)
	bp.replacer.Installed(idx)

	return &PageHandle{PageNum: pageNum, Data: frame.Bytes[:]}, nil
}

// residentFrame resolves a handle to its frame index. Called with bp.mu held.
func (bp *BufferPool) residentFrame(h *PageHandle) (int, error) {
	if err := bp.checkOpen(); err != nil {
		return 0, err
	}
	idx, ok := bp.pageTable.Load(h.PageNum)
	if !ok {
		return 0, common.NewError(common.PageNotResidentError, "page %d is not in the buffer pool", h.PageNum)
	}
	return idx, nil
}

// UnpinPage indicates that the caller is done using a page. Once its fix count drops to zero the page
// becomes eligible for eviction.
func (bp *BufferPool) UnpinPage(h *PageHandle) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, err := bp.residentFrame(h)
	if err != nil {
		return err
	}
	frame := &bp.frames[idx]
	if frame.fixCount == 0 {
		return common.NewError(common.PageNotPinnedError, "page %d is not pinned", h.PageNum)
	}
	frame.fixCount--
	bp.replacer.Unpinned(idx)
	return nil
}

// MarkDirty records that the page was modified, so it is written back before its frame is reused.
func (bp *BufferPool) MarkDirty(h *PageHandle) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, err := bp.residentFrame(h)
	if err != nil {
		return err
	}
	bp.frames[idx].dirty = true
	return nil
}

// ForcePage writes the page to the file immediately, whether or not it is dirty.
func (bp *BufferPool) ForcePage(h *PageHandle) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, err := bp.residentFrame(h)
	if err != nil {
		return err
	}
	return bp.writeBack(idx)
}

// ForceFlushPool writes every dirty page that nobody has pinned.
func (bp *BufferPool) ForceFlushPool() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if err := bp.checkOpen(); err != nil {
		return err
	}
	return bp.flushUnpinned()
}

func (bp *BufferPool) flushUnpinned() error {
	for i := range bp.frames {
		frame := &bp.frames[i]
		if frame.isEmpty() || !frame.dirty || frame.fixCount > 0 {
			continue
		}
		if err := bp.writeBack(i); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown flushes the pool and closes the page file. It fails with PinnedPagesError, leaving the pool
// usable, if any page is still pinned.
func (bp *BufferPool) Shutdown() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if err := bp.checkOpen(); err != nil {
		return err
	}
	if err := bp.flushUnpinned(); err != nil {
		return err
	}
	for i := range bp.frames {
		if bp.frames[i].fixCount > 0 {
			bp.log.WithFields(logrus.Fields{"frame": i, "page": bp.frames[i].pageNum}).Warn("shutdown with pinned page")
			return common.NewError(common.PinnedPagesError,
				"page %d is still pinned %d time(s)", bp.frames[i].pageNum, bp.frames[i].fixCount)
		}
	}
	if err := bp.file.Sync(); err != nil {
		return err
	}
	if err := bp.file.Close(); err != nil {
		return err
	}
	bp.closed = true
	bp.pageTable.Clear()
	for i := range bp.frames {
		bp.frames[i].reset()
	}
	bp.log.WithFields(logrus.Fields{"reads": bp.numReadIO, "writes": bp.numWriteIO}).Debug("shut down")
	return nil
}

// FrameContents returns the page number held by each frame, with common.NoPage for empty frames.
func (bp *BufferPool) FrameContents() []common.PageNum {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	out := make([]common.PageNum, len(bp.frames))
	for i := range bp.frames {
		out[i] = bp.frames[i].pageNum
	}
	return out
}

// DirtyFlags returns whether each frame holds unwritten changes.
func (bp *BufferPool) DirtyFlags() []bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	out := make([]bool, len(bp.frames))
	for i := range bp.frames {
		out[i] = bp.frames[i].dirty
	}
	return out
}

// FixCounts returns the fix count of each frame.
func (bp *BufferPool) FixCounts() []int {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	out := make([]int, len(bp.frames))
	for i := range bp.frames {
		out[i] = bp.frames[i].fixCount
	}
	return out
}

// NumReadIO returns how many pages have been read from the file since the pool was created.
func (bp *BufferPool) NumReadIO() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.numReadIO
}

// NumWriteIO returns how many pages have been written to the file since the pool was created.
func (bp *BufferPool) NumWriteIO() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.numWriteIO
}
