package storage

import (
	"github.com/woqer/Database-from-Scratch/common"
)

// DataPage is a view over a pinned page that stores fixed-width records. The page has no header: slot i
// occupies bytes [i*recordSize, (i+1)*recordSize) and whatever is left at the end of the page is unused.
// Which slots hold live records is tracked outside the page, in the table's occupancy bitmap.
type DataPage struct {
	data       []byte
	recordSize int
}

// SlotsPerPage returns how many records of recordSize bytes fit in a page.
func SlotsPerPage(recordSize int) int {
	common.Assert(recordSize > 0, "record size must be positive")
	return common.PageSize / recordSize
}

// AsDataPage interprets the bytes of a pinned page as a data page.
func AsDataPage(h *PageHandle, recordSize int) DataPage {
	common.Assert(recordSize > 0 && recordSize <= common.PageSize, "record size %d does not fit a page", recordSize)
	return DataPage{data: h.Data, recordSize: recordSize}
}

// NumSlots returns the slot capacity of the page.
func (dp DataPage) NumSlots() int {
	return SlotsPerPage(dp.recordSize)
}

func (dp DataPage) slot(i int) []byte {
	common.Assert(i >= 0 && i < dp.NumSlots(), "slot %d out of range", i)
	return dp.data[i*dp.recordSize : (i+1)*dp.recordSize]
}

// ReadRecord copies slot i into dst.
func (dp DataPage) ReadRecord(i int, dst []byte) {
	copy(dst, dp.slot(i))
}

// WriteRecord overwrites slot i with src.
func (dp DataPage) WriteRecord(i int, src []byte) {
	common.Assert(len(src) == dp.recordSize, "record is %d bytes, slot is %d", len(src), dp.recordSize)
	copy(dp.slot(i), src)
}
