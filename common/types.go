package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

const (
	PageSize  int = 4096
	IntSize   int = 4
	FloatSize int = 4
	BoolSize  int = 1
	// AttrNameLength is the longest attribute name a schema can store.
	AttrNameLength int = 32
)

type Type int8

const (
	// For uninitialized Values
	DefaultType Type = iota
	IntType
	StringType
	FloatType
	BoolType
)

// Size returns the fixed-width storage size of the type in bytes. Strings are as wide as their declared
// length; every other type ignores typeLength.
func (t Type) Size(typeLength int) int {
	switch t {
	case IntType:
		return IntSize
	case FloatType:
		return FloatSize
	case BoolType:
		return BoolSize
	case StringType:
		return typeLength
	default:
		panic("unknown type")
	}
}

// Valid reports whether t names a storable attribute type.
func (t Type) Valid() bool {
	return t >= IntType && t <= BoolType
}

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	case FloatType:
		return "float"
	case BoolType:
		return "bool"
	}
	return "unknown"
}

// PageNum is the position of a page within the page file.
type PageNum int32

// NoPage marks an empty frame or the end of a header chain.
const NoPage PageNum = -1

// RecordID addresses a record within a table: Page is an index into the table's list of data pages
// (not a file page number) and Slot is the position within that page.
type RecordID struct {
	Page int32
	Slot int32
}

// RecordIDSize is the serialized size of a RecordID (page (4) + slot (4) = 8)
const RecordIDSize = 8

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%d, %d)", r.Page, r.Slot)
}

// WriteTo serializes the RecordID into the provided buffer. The buffer must be large enough to hold a RecordID.
func (r RecordID) WriteTo(data []byte) {
	if len(data) < RecordIDSize {
		panic("buffer too small")
	}
	binary.LittleEndian.PutUint32(data, uint32(r.Page))
	binary.LittleEndian.PutUint32(data[4:], uint32(r.Slot))
}

// LoadFrom deserializes a RecordID from the provided buffer. The buffer must be large enough to hold a RecordID.
func (r *RecordID) LoadFrom(data []byte) {
	if len(data) < RecordIDSize {
		panic("buffer too small")
	}
	r.Page = int32(binary.LittleEndian.Uint32(data))
	r.Slot = int32(binary.LittleEndian.Uint32(data[4:]))
}

// Value represents a (deserialized) attribute of a record. Values are always decoupled from the page
// they were read from, so they may outlive the pin on that page.
type Value struct {
	t                Type
	underlyingInt    int32
	underlyingFloat  float32
	underlyingBool   bool
	underlyingString string
}

// AsValue extracts a value from a raw attribute slot. For StringType the slot length is the declared
// string length; trailing zero bytes are padding and are not part of the value.
func AsValue(t Type, source []byte) Value {
	val := Value{t: t}
	switch t {
	case IntType:
		val.underlyingInt = int32(binary.LittleEndian.Uint32(source))
	case FloatType:
		val.underlyingFloat = math.Float32frombits(binary.LittleEndian.Uint32(source))
	case BoolType:
		val.underlyingBool = source[0] != 0
	case StringType:
		realLen := len(source)
		for i := 0; i < len(source); i++ {
			if source[i] == 0 {
				realLen = i
				break
			}
		}
		val.underlyingString = string(source[:realLen])
	default:
		panic("unknown type")
	}
	return val
}

// IsNil returns true if the Value is uninitialized.
func (v Value) IsNil() bool {
	return v.t == DefaultType
}

// NewIntValue creates a new integer Value.
func NewIntValue(v int32) Value {
	return Value{t: IntType, underlyingInt: v}
}

// NewFloatValue creates a new float Value.
func NewFloatValue(v float32) Value {
	return Value{t: FloatType, underlyingFloat: v}
}

// NewBoolValue creates a new boolean Value.
func NewBoolValue(v bool) Value {
	return Value{t: BoolType, underlyingBool: v}
}

// NewStringValue creates a new string Value. Strings longer than the attribute they are stored into are
// truncated on write.
func NewStringValue(v string) Value {
	return Value{t: StringType, underlyingString: v}
}

// Type returns the type of the Value.
func (v Value) Type() Type {
	return v.t
}

// IntValue returns the underlying integer.
func (v Value) IntValue() int32 {
	Assert(v.t == IntType, "type mismatch in IntValue")
	return v.underlyingInt
}

// FloatValue returns the underlying float.
func (v Value) FloatValue() float32 {
	Assert(v.t == FloatType, "type mismatch in FloatValue")
	return v.underlyingFloat
}

// BoolValue returns the underlying boolean.
func (v Value) BoolValue() bool {
	Assert(v.t == BoolType, "type mismatch in BoolValue")
	return v.underlyingBool
}

// StringValue returns the underlying string.
func (v Value) StringValue() string {
	Assert(v.t == StringType, "type mismatch in StringValue")
	return v.underlyingString
}

// WriteTo serializes the Value into an attribute slot. The slot length is the storage width: strings are
// zero padded or truncated to fit it.
func (v Value) WriteTo(data []byte) {
	switch v.t {
	case IntType:
		Assert(len(data) >= IntSize, "buffer too small")
		binary.LittleEndian.PutUint32(data, uint32(v.underlyingInt))
	case FloatType:
		Assert(len(data) >= FloatSize, "buffer too small")
		binary.LittleEndian.PutUint32(data, math.Float32bits(v.underlyingFloat))
	case BoolType:
		Assert(len(data) >= BoolSize, "buffer too small")
		if v.underlyingBool {
			data[0] = 1
		} else {
			data[0] = 0
		}
	case StringType:
		n := copy(data, v.underlyingString)
		for i := n; i < len(data); i++ {
			data[i] = 0
		}
	default:
		panic("writing uninitialized value")
	}
}

// Compare compares two Values of the same type.
// Returns -1 if v < other, 0 if v == other, 1 if v > other. false orders before true.
func (v Value) Compare(other Value) int {
	Assert(v.t == other.t, "type mismatch in comparison")

	switch v.t {
	case IntType:
		return cmp3(v.underlyingInt < other.underlyingInt, v.underlyingInt > other.underlyingInt)
	case FloatType:
		return cmp3(v.underlyingFloat < other.underlyingFloat, v.underlyingFloat > other.underlyingFloat)
	case BoolType:
		return cmp3(!v.underlyingBool && other.underlyingBool, v.underlyingBool && !other.underlyingBool)
	case StringType:
		return cmp3(v.underlyingString < other.underlyingString, v.underlyingString > other.underlyingString)
	}
	panic("unreachable")
}

func cmp3(less, greater bool) int {
	if less {
		return -1
	}
	if greater {
		return 1
	}
	return 0
}

func (v Value) String() string {
	switch v.t {
	case IntType:
		return strconv.FormatInt(int64(v.underlyingInt), 10)
	case FloatType:
		return strconv.FormatFloat(float64(v.underlyingFloat), 'g', -1, 32)
	case BoolType:
		return strconv.FormatBool(v.underlyingBool)
	case StringType:
		return v.underlyingString
	}
	return "<nil>"
}
