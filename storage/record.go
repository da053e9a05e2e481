package storage

import (
	"fmt"

	"github.com/woqer/Database-from-Scratch/common"
)

// RecordLayout describes the physical binary layout of a fixed-width record: attributes are stored back
// to back in declaration order with no padding.
type RecordLayout struct {
	fields      []common.Type
	lengths     []int
	offsets     []int // Cache of attribute => physical offset of first byte in the record
	bytesPerRow int
}

// NewRecordLayout creates a layout for the given attribute types. lengths holds the declared length of
// each attribute and only matters for strings.
func NewRecordLayout(fields []common.Type, lengths []int) *RecordLayout {
	common.Assert(len(fields) == len(lengths), "every field needs a length")
	size := 0
	offsets := make([]int, len(fields))
	for i := range fields {
		offsets[i] = size
		size += fields[i].Size(lengths[i])
	}
	return &RecordLayout{
		fields:      append([]common.Type(nil), fields...),
		lengths:     append([]int(nil), lengths...),
		offsets:     offsets,
		bytesPerRow: size,
	}
}

func (l *RecordLayout) String() string {
	return fmt.Sprintf("%v", l.fields)
}

// NumColumns returns the number of attributes.
func (l *RecordLayout) NumColumns() int {
	return len(l.fields)
}

// BytesPerRecord returns the fixed size in bytes of a record.
func (l *RecordLayout) BytesPerRecord() int {
	return l.bytesPerRow
}

// GetFieldType returns the type of attribute i.
func (l *RecordLayout) GetFieldType(i int) common.Type {
	return l.fields[i]
}

// GetFieldOffset returns the byte offset where attribute i begins.
func (l *RecordLayout) GetFieldOffset(i int) int {
	return l.offsets[i]
}

// GetFieldWidth returns the storage width of attribute i.
func (l *RecordLayout) GetFieldWidth(i int) int {
	return l.fields[i].Size(l.lengths[i])
}

func (l *RecordLayout) slot(data []byte, i int) []byte {
	return data[l.offsets[i] : l.offsets[i]+l.GetFieldWidth(i)]
}

// GetValue deserializes attribute i from the record bytes.
func (l *RecordLayout) GetValue(data []byte, i int) common.Value {
	return common.AsValue(l.fields[i], l.slot(data, i))
}

// SetValue serializes val into attribute i of the record bytes. Strings are truncated to the attribute
// length.
func (l *RecordLayout) SetValue(data []byte, i int, val common.Value) {
	common.Assert(val.Type() == l.fields[i], "type mismatch")
	val.WriteTo(l.slot(data, i))
}

// Record is a fixed-width row together with its address. Data is owned by the record: reading a record
// copies bytes out of the page, so a Record stays valid after the page is unpinned.
type Record struct {
	ID   common.RecordID
	Data []byte
}

// NewRecord allocates a zeroed record of the given width.
func NewRecord(size int) *Record {
	return &Record{ID: common.RecordID{Page: -1, Slot: -1}, Data: make([]byte, size)}
}

// Copy returns an independent copy of the record.
func (r *Record) Copy() *Record {
	return &Record{ID: r.ID, Data: append([]byte(nil), r.Data...)}
}
