package storage

import (
	"github.com/woqer/Database-from-Scratch/common"
)

type pageFrameMetadata struct {
	pageNum  common.PageNum
	fixCount int
	refBit   bool
	dirty    bool
}

// PageFrame represents a physical page of data in memory.
// It holds the raw bytes of the page and the bookkeeping the buffer pool needs to manage it. All metadata
// is guarded by the owning pool's latch.
type PageFrame struct {
	// Bytes holds the raw physical data of the page.
	Bytes [common.PageSize]byte
	pageFrameMetadata
}

func (frame *PageFrame) reset() {
	frame.pageNum = common.NoPage
	frame.fixCount = 0
	frame.refBit = false
	frame.dirty = false
}

func (frame *PageFrame) isEmpty() bool {
	return frame.pageNum == common.NoPage
}

// PageHandle is what PinPage hands out: the page number and a view of the frame bytes. The view stays
// valid until the matching UnpinPage; after that the frame may be reused for another page.
type PageHandle struct {
	PageNum common.PageNum
	Data    []byte
}
