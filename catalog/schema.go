package catalog

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/woqer/Database-from-Scratch/common"
	"github.com/woqer/Database-from-Scratch/storage"
)

// Column represents the basic unit of a table schema. Length is the declared width of string
// attributes and is ignored for every other type.
type Column struct {
	Name   string
	Type   common.Type
	Length int
}

// Schema describes the attributes of a table and which of them form its key. The key is informational
// only: nothing enforces uniqueness.
type Schema struct {
	Columns []Column
	Keys    []int

	layout *storage.RecordLayout
}

// NewSchema validates the attribute list and computes the record layout.
func NewSchema(columns []Column, keys []int) (*Schema, error) {
	if len(columns) == 0 {
		return nil, common.NewError(common.InvalidSchemaError, "a schema needs at least one attribute")
	}
	types := make([]common.Type, len(columns))
	lengths := make([]int, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		switch {
		case c.Name == "":
			return nil, common.NewError(common.InvalidSchemaError, "attribute %d has no name", i)
		case len(c.Name) > common.AttrNameLength:
			return nil, common.NewError(common.InvalidSchemaError,
				"attribute name %q is longer than %d bytes", c.Name, common.AttrNameLength)
		case !c.Type.Valid():
			return nil, common.NewError(common.InvalidSchemaError, "attribute %q has unknown type %d", c.Name, c.Type)
		case c.Type == common.StringType && c.Length <= 0:
			return nil, common.NewError(common.InvalidSchemaError, "string attribute %q needs a positive length", c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, common.NewError(common.InvalidSchemaError, "attribute %q declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}
		types[i] = c.Type
		if c.Type == common.StringType {
			lengths[i] = c.Length
		}
	}
	for _, k := range keys {
		if k < 0 || k >= len(columns) {
			return nil, common.NewError(common.InvalidSchemaError, "key attribute %d out of range", k)
		}
	}

	layout := storage.NewRecordLayout(types, lengths)
	if layout.BytesPerRecord() > common.PageSize {
		return nil, common.NewError(common.InvalidSchemaError,
			"records of %d bytes do not fit in a %d byte page", layout.BytesPerRecord(), common.PageSize)
	}

	cols := make([]Column, len(columns))
	copy(cols, columns)
	for i := range cols {
		cols[i].Length = lengths[i]
	}
	return &Schema{
		Columns: cols,
		Keys:    append([]int(nil), keys...),
		layout:  layout,
	}, nil
}

// NumAttrs returns the number of attributes.
func (s *Schema) NumAttrs() int {
	return len(s.Columns)
}

// RecordSize returns the fixed width of a record of this schema.
func (s *Schema) RecordSize() int {
	return s.layout.BytesPerRecord()
}

// Layout returns the physical layout of records of this schema.
func (s *Schema) Layout() *storage.RecordLayout {
	return s.layout
}

// ColumnIndex returns the position of the attribute called name.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// CreateRecord allocates a zeroed record of this schema.
func (s *Schema) CreateRecord() *storage.Record {
	return storage.NewRecord(s.RecordSize())
}

func (s *Schema) checkAttr(rec *storage.Record, attrNum int) error {
	if attrNum < 0 || attrNum >= len(s.Columns) {
		return common.NewError(common.InvalidSchemaError, "attribute %d out of range (schema has %d)", attrNum, len(s.Columns))
	}
	if len(rec.Data) != s.RecordSize() {
		return common.NewError(common.InvalidSchemaError,
			"record is %d bytes, schema expects %d", len(rec.Data), s.RecordSize())
	}
	return nil
}

// GetAttr reads attribute attrNum of rec.
func (s *Schema) GetAttr(rec *storage.Record, attrNum int) (common.Value, error) {
	if err := s.checkAttr(rec, attrNum); err != nil {
		return common.Value{}, err
	}
	return s.layout.GetValue(rec.Data, attrNum), nil
}

// SetAttr writes value into attribute attrNum of rec. String values longer than the attribute are
// truncated.
func (s *Schema) SetAttr(rec *storage.Record, attrNum int, value common.Value) error {
	if err := s.checkAttr(rec, attrNum); err != nil {
		return err
	}
	if value.Type() != s.Columns[attrNum].Type {
		return common.NewError(common.TypeMismatchError, "attribute %q is %s, value is %s",
			s.Columns[attrNum].Name, s.Columns[attrNum].Type, value.Type())
	}
	s.layout.SetValue(rec.Data, attrNum, value)
	return nil
}

// Schema layout:
// NumAttrs (4) | NumAttrs * [Name (32) | Type (1) | Length (4)] | NumKeys (4) | NumKeys * Key (4)
const schemaColumnSize = common.AttrNameLength + 1 + 4

// EncodedSize returns the number of bytes WriteTo produces.
func (s *Schema) EncodedSize() int {
	return 4 + len(s.Columns)*schemaColumnSize + 4 + 4*len(s.Keys)
}

// WriteTo serializes the schema into buf, which must hold EncodedSize bytes.
func (s *Schema) WriteTo(buf []byte) {
	common.Assert(len(buf) >= s.EncodedSize(), "buffer too small")
	binary.LittleEndian.PutUint32(buf, uint32(len(s.Columns)))
	off := 4
	for _, c := range s.Columns {
		name := buf[off : off+common.AttrNameLength]
		common.ZeroBytes(name)
		copy(name, c.Name)
		off += common.AttrNameLength
		buf[off] = byte(c.Type)
		binary.LittleEndian.PutUint32(buf[off+1:], uint32(c.Length))
		off += 5
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Keys)))
	off += 4
	for _, k := range s.Keys {
		binary.LittleEndian.PutUint32(buf[off:], uint32(k))
		off += 4
	}
}

// LoadSchema deserializes a schema written by WriteTo and returns it with the number of bytes consumed.
func LoadSchema(buf []byte) (*Schema, int, error) {
	r := reader{buf: buf}
	numAttrs := int(r.uint32())
	if r.err == nil && numAttrs*schemaColumnSize > len(buf) {
		return nil, 0, common.NewError(common.CorruptHeaderError, "schema claims %d attributes", numAttrs)
	}
	columns := make([]Column, 0, numAttrs)
	for i := 0; i < numAttrs && r.err == nil; i++ {
		name := strings.TrimRight(string(r.bytes(common.AttrNameLength)), "\x00")
		t := common.Type(r.uint8())
		length := int(r.uint32())
		columns = append(columns, Column{Name: name, Type: t, Length: length})
	}
	numKeys := int(r.uint32())
	if r.err == nil && numKeys*4 > len(buf) {
		return nil, 0, common.NewError(common.CorruptHeaderError, "schema claims %d keys", numKeys)
	}
	keys := make([]int, 0, numKeys)
	for i := 0; i < numKeys && r.err == nil; i++ {
		keys = append(keys, int(r.uint32()))
	}
	if r.err != nil {
		return nil, 0, r.err
	}
	s, err := NewSchema(columns, keys)
	if err != nil {
		return nil, 0, common.NewError(common.CorruptHeaderError, "stored schema is invalid: %v", err)
	}
	return s, r.off, nil
}

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		if c.Type == common.StringType {
			fmt.Fprintf(&b, "%s:%s[%d]", c.Name, c.Type, c.Length)
		} else {
			fmt.Fprintf(&b, "%s:%s", c.Name, c.Type)
		}
	}
	b.WriteByte(')')
	if len(s.Keys) > 0 {
		fmt.Fprintf(&b, " key%v", s.Keys)
	}
	return b.String()
}
