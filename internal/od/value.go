package od

import (
	"encoding/binary"
	"math"
)

// Kind tags the runtime type carried by a Value. It is fixed at seed
// time and never changes for the lifetime of an entry (invariant I1).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindUint8
	KindUint16
	KindUint32
	KindReal32
)

// Width returns the wire footprint of the kind in bytes (invariant I2).
// Unknown and Bool report 0 and 1 respectively; Bool is carried as a
// single byte on the wire, same as UInt8.
func (k Kind) Width() int {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindReal32:
		return 4
	default:
		return 0
	}
}

// Value is a tagged union over the OD's supported CANopen datatypes.
// The zero Value is KindUnknown, used as a placeholder when the EDS
// declares a type this store does not model.
type Value struct {
	kind Kind
	bits uint32 // Int8..Uint32, Real32 and Bool all fit in 32 bits
}

func NewBool(v bool) Value {
	var b uint32
	if v {
		b = 1
	}
	return Value{kind: KindBool, bits: b}
}

func NewInt8(v int8) Value   { return Value{kind: KindInt8, bits: uint32(uint8(v))} }
func NewInt16(v int16) Value { return Value{kind: KindInt16, bits: uint32(uint16(v))} }
func NewInt32(v int32) Value { return Value{kind: KindInt32, bits: uint32(v)} }
func NewUint8(v uint8) Value { return Value{kind: KindUint8, bits: uint32(v)} }

func NewUint16(v uint16) Value { return Value{kind: KindUint16, bits: uint32(v)} }
func NewUint32(v uint32) Value { return Value{kind: KindUint32, bits: v} }
func NewReal32(v float32) Value {
	return Value{kind: KindReal32, bits: math.Float32bits(v)}
}

// NewUnknown returns a placeholder value for an EDS type this store
// does not model; it carries no data and cannot round-trip over SDO/PDO.
func NewUnknown() Value { return Value{kind: KindUnknown} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool     { return v.bits != 0 }
func (v Value) Int8() int8     { return int8(uint8(v.bits)) }
func (v Value) Int16() int16   { return int16(uint16(v.bits)) }
func (v Value) Int32() int32   { return int32(v.bits) }
func (v Value) Uint8() uint8   { return uint8(v.bits) }
func (v Value) Uint16() uint16 { return uint16(v.bits) }
func (v Value) Uint32() uint32 { return v.bits }
func (v Value) Real32() float32 {
	return math.Float32frombits(v.bits)
}

// EncodeLE appends the value's little-endian wire encoding to dst.
// KindUnknown encodes nothing.
func (v Value) EncodeLE(dst []byte) []byte {
	switch v.kind {
	case KindBool, KindInt8, KindUint8:
		return append(dst, uint8(v.bits))
	case KindInt16, KindUint16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v.bits))
		return append(dst, b[:]...)
	case KindInt32, KindUint32, KindReal32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v.bits)
		return append(dst, b[:]...)
	default:
		return dst
	}
}

// DecodeLE returns a new Value of the same kind as v, reinterpreting
// the leading Width() bytes of data as a little-endian wire value.
// It never mutates v; callers replace the stored Value wholesale so the
// kind tag is provably preserved (invariant I1).
func (v Value) DecodeLE(data []byte) (Value, error) {
	width := v.kind.Width()
	if width == 0 || len(data) < width {
		return Value{}, ErrTypeMismatch
	}
	switch v.kind {
	case KindBool, KindInt8, KindUint8:
		return Value{kind: v.kind, bits: uint32(data[0])}, nil
	case KindInt16, KindUint16:
		return Value{kind: v.kind, bits: uint32(binary.LittleEndian.Uint16(data))}, nil
	case KindInt32, KindUint32, KindReal32:
		return Value{kind: v.kind, bits: binary.LittleEndian.Uint32(data)}, nil
	default:
		return Value{}, ErrTypeMismatch
	}
}
