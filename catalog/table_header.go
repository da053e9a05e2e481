package catalog

import (
	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/storage"
)

const tableHeaderMagic = "RMTB"

// TableHeader holds everything needed to address the records of one table: its schema, the data pages it
// owns, and which slots are occupied.
//
// Record ids address slots by (index into Pages, slot within that page). Slots are handed out in order;
// NextSlot is the first never-used slot of the last data page, so the allocated slots are
// (len(Pages)-1)*SlotsPerPage + NextSlot. A slot below that mark whose Occupancy bit is clear held a
// record that was deleted and may be reused.
//
// Layout:
// Magic (4) | NameLen (1) | Name | ID (4) | RecordSize (4) | SlotsPerPage (4) | NextSlot (4) | NumTuples (4) |
// NumPages (4) | NumPages * Page (4) | Schema | Occupancy bitmap
type TableHeader struct {
	Name         string
	ID           TableID
	RecordSize   int
	SlotsPerPage int
	NextSlot     int
	NumTuples    int
	Pages        []common.PageNum
	Schema       *Schema
	Occupancy    storage.Bitmap

	// chain lists the pages holding this header, starting with the page the directory points at.
	chain []common.PageNum
}

// NewTableHeader returns the header of an empty table with one data page.
func NewTableHeader(name string, schema *Schema, headerPage, firstDataPage common.PageNum) *TableHeader {
	spp := storage.SlotsPerPage(schema.RecordSize())
	return &TableHeader{
		Name:         name,
		RecordSize:   schema.RecordSize(),
		SlotsPerPage: spp,
		NextSlot:     0,
		NumTuples:    0,
		Pages:        []common.PageNum{firstDataPage},
		Schema:       schema,
		Occupancy:    storage.NewBitmap(spp),
		chain:        []common.PageNum{headerPage},
	}
}

// HeaderPage returns the first page of the header chain.
func (th *TableHeader) HeaderPage() common.PageNum {
	return th.chain[0]
}

// Chain returns every page holding the header.
func (th *TableHeader) Chain() []common.PageNum {
	return th.chain
}

// AllocatedSlots returns how many slots have ever been handed out.
func (th *TableHeader) AllocatedSlots() int {
	return (len(th.Pages)-1)*th.SlotsPerPage + th.NextSlot
}

// SlotIndex flattens a record id into a position in the occupancy bitmap.
func (th *TableHeader) SlotIndex(rid common.RecordID) int {
	return int(rid.Page)*th.SlotsPerPage + int(rid.Slot)
}

// RecordIDAt is the inverse of SlotIndex.
func (th *TableHeader) RecordIDAt(idx int) common.RecordID {
	return common.RecordID{Page: int32(idx / th.SlotsPerPage), Slot: int32(idx % th.SlotsPerPage)}
}

// ValidRecordID reports whether rid addresses an allocated slot.
func (th *TableHeader) ValidRecordID(rid common.RecordID) bool {
	if rid.Page < 0 || rid.Slot < 0 || int(rid.Slot) >= th.SlotsPerPage || int(rid.Page) >= len(th.Pages) {
		return false
	}
	return th.SlotIndex(rid) < th.AllocatedSlots()
}

// Encode serializes the header.
func (th *TableHeader) Encode() []byte {
	w := writer{}
	w.buf = append(w.buf, tableHeaderMagic...)
	w.string8(th.Name)
	w.uint32(uint32(th.ID))
	w.uint32(uint32(th.RecordSize))
	w.uint32(uint32(th.SlotsPerPage))
	w.uint32(uint32(th.NextSlot))
	w.uint32(uint32(th.NumTuples))
	w.uint32(uint32(len(th.Pages)))
	for _, p := range th.Pages {
		w.pageNum(p)
	}
	th.Schema.WriteTo(w.reserve(th.Schema.EncodedSize()))
	th.Occupancy.WriteTo(w.reserve(th.Occupancy.EncodedSize()))
	return w.buf
}

// DecodeTableHeader deserializes a header written by Encode.
func DecodeTableHeader(data []byte) (*TableHeader, error) {
	r := reader{buf: data}
	if magic := string(r.bytes(len(tableHeaderMagic))); r.err == nil && magic != tableHeaderMagic {
		return nil, common.NewError(common.CorruptHeaderError, "bad table header magic %q", magic)
	}
	th := &TableHeader{
		Name:         r.string8(),
		ID:           TableID(r.uint32()),
		RecordSize:   int(r.uint32()),
		SlotsPerPage: int(r.uint32()),
		NextSlot:     int(r.uint32()),
		NumTuples:    int(r.uint32()),
	}
	numPages := int(r.uint32())
	if r.err == nil && numPages*4 > len(data) {
		return nil, common.NewError(common.CorruptHeaderError, "table header claims %d pages", numPages)
	}
	th.Pages = make([]common.PageNum, 0, numPages)
	for i := 0; i < numPages && r.err == nil; i++ {
		th.Pages = append(th.Pages, r.pageNum())
	}
	if r.err != nil {
		return nil, r.err
	}

	schema, n, err := LoadSchema(data[r.off:])
	if err != nil {
		return nil, err
	}
	r.off += n
	th.Schema = schema

	occupancy, _, err := storage.LoadBitmap(data[r.off:])
	if err != nil {
		return nil, err
	}
	th.Occupancy = occupancy

	if th.RecordSize != schema.RecordSize() || th.SlotsPerPage != storage.SlotsPerPage(th.RecordSize) ||
		len(th.Pages) == 0 || th.NextSlot > th.SlotsPerPage || th.Occupancy.Len() != len(th.Pages)*th.SlotsPerPage {
		return nil, common.NewError(common.CorruptHeaderError, "table header of %q is inconsistent", th.Name)
	}
	return th, nil
}

// Clone returns a deep copy of the header.
func (th *TableHeader) Clone() *TableHeader {
	cp := *th
	cp.Pages = append([]common.PageNum(nil), th.Pages...)
	cp.Occupancy = th.Occupancy.Clone()
	cp.chain = append([]common.PageNum(nil), th.chain...)
	return &cp
}
