// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plist

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf16"
)

const (
	headerSize  = 8
	trailerSize = 32
)

// Seconds between the Unix epoch and the Core Data epoch
// (2001-01-01T00:00:00Z), which binary plist dates count from.
const coreDataEpochOffset = 978307200

// binaryDecoder holds the parsed trailer of a binary plist.
type binaryDecoder struct {
	data          []byte
	offsetSize    int
	refSize       int
	numObjects    uint64
	topObject     uint64
	offsetTable   uint64
	objectsBudget int
}

// container is one array or dictionary whose children are still being
// resolved. Children are written in place through pointers into
// values, which never grows after allocation.
type container struct {
	target *Value
	keys   []string
	values []Value
	refs   []uint64
	next   int
}

func decodeBinary(data []byte) (Value, error) {
	if len(data) < headerSize+trailerSize {
		return Value{}, fmt.Errorf("%w: binary plist of %d bytes is too short", ErrMalformed, len(data))
	}

	trailer := data[len(data)-trailerSize:]
	decoder := &binaryDecoder{
		data:          data,
		offsetSize:    int(trailer[6]),
		refSize:       int(trailer[7]),
		numObjects:    binary.BigEndian.Uint64(trailer[8:16]),
		topObject:     binary.BigEndian.Uint64(trailer[16:24]),
		offsetTable:   binary.BigEndian.Uint64(trailer[24:32]),
		objectsBudget: MaxObjects,
	}
	if err := decoder.validateTrailer(); err != nil {
		return Value{}, err
	}
	return decoder.decode()
}

func (d *binaryDecoder) validateTrailer() error {
	if d.offsetSize < 1 || d.offsetSize > 8 {
		return fmt.Errorf("%w: offset size %d", ErrMalformed, d.offsetSize)
	}
	if d.refSize < 1 || d.refSize > 8 {
		return fmt.Errorf("%w: object reference size %d", ErrMalformed, d.refSize)
	}
	if d.numObjects == 0 {
		return fmt.Errorf("%w: no objects", ErrMalformed)
	}
	if d.topObject >= d.numObjects {
		return fmt.Errorf("%w: top object %d out of range (%d objects)", ErrMalformed, d.topObject, d.numObjects)
	}
	objectsEnd := uint64(len(d.data) - trailerSize)
	if d.offsetTable < headerSize || d.offsetTable > objectsEnd {
		return fmt.Errorf("%w: offset table at %d out of range", ErrMalformed, d.offsetTable)
	}
	// Division avoids overflow in numObjects*offsetSize.
	if d.numObjects > (objectsEnd-d.offsetTable)/uint64(d.offsetSize) {
		return fmt.Errorf("%w: offset table of %d entries overruns the trailer", ErrMalformed, d.numObjects)
	}
	return nil
}

// decode resolves the object graph from the top object with an
// explicit stack of open containers.
func (d *binaryDecoder) decode() (Value, error) {
	var root Value
	pending, err := d.resolve(d.topObject, &root)
	if err != nil {
		return Value{}, err
	}

	var stack []*container
	if pending != nil {
		stack = append(stack, pending)
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.refs) {
			if top.target.Kind == KindDict {
				top.target.Dict = make(map[string]Value, len(top.keys))
				for i, key := range top.keys {
					top.target.Dict[key] = top.values[i]
				}
			}
			stack = stack[:len(stack)-1]
			continue
		}

		slot := &top.values[top.next]
		ref := top.refs[top.next]
		top.next++

		child, err := d.resolve(ref, slot)
		if err != nil {
			return Value{}, err
		}
		if child != nil {
			if len(stack) >= MaxDepth {
				return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, MaxDepth)
			}
			stack = append(stack, child)
		}
	}
	return root, nil
}

// resolve decodes the object at ref into slot. Scalars are complete on
// return. For arrays and dictionaries it returns a container whose
// children the caller must still resolve.
func (d *binaryDecoder) resolve(ref uint64, slot *Value) (*container, error) {
	d.objectsBudget--
	if d.objectsBudget < 0 {
		return nil, fmt.Errorf("%w: more than %d objects", ErrMalformed, MaxObjects)
	}

	offset, err := d.objectOffset(ref)
	if err != nil {
		return nil, err
	}
	marker := d.data[offset]
	kind, info := marker>>4, marker&0x0F
	position := offset + 1

	switch kind {
	case 0x0:
		switch marker {
		case 0x08:
			*slot = Value{Kind: KindBool, Bool: false}
		case 0x09:
			*slot = Value{Kind: KindBool, Bool: true}
		default:
			return nil, fmt.Errorf("%w: unsupported singleton 0x%02x at %d", ErrMalformed, marker, offset)
		}
		return nil, nil

	case 0x1:
		integer, _, err := d.readInt(position, info)
		if err != nil {
			return nil, err
		}
		*slot = Value{Kind: KindInteger, Integer: integer}
		return nil, nil

	case 0x2:
		number, err := d.readReal(position, info)
		if err != nil {
			return nil, err
		}
		*slot = Value{Kind: KindReal, Real: number}
		return nil, nil

	case 0x3:
		if info != 0x3 {
			return nil, fmt.Errorf("%w: date marker 0x%02x at %d", ErrMalformed, marker, offset)
		}
		seconds, err := d.readReal(position, 3)
		if err != nil {
			return nil, err
		}
		whole, fraction := math.Modf(seconds)
		date := time.Unix(int64(whole)+coreDataEpochOffset, int64(fraction*1e9)).UTC()
		*slot = Value{Kind: KindDate, Date: date}
		return nil, nil

	case 0x4:
		count, start, err := d.readCount(position, info)
		if err != nil {
			return nil, err
		}
		raw, err := d.slice(start, count)
		if err != nil {
			return nil, err
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		*slot = Value{Kind: KindData, Data: data}
		return nil, nil

	case 0x5:
		count, start, err := d.readCount(position, info)
		if err != nil {
			return nil, err
		}
		raw, err := d.slice(start, count)
		if err != nil {
			return nil, err
		}
		*slot = Value{Kind: KindString, String: string(raw)}
		return nil, nil

	case 0x6:
		count, start, err := d.readCount(position, info)
		if err != nil {
			return nil, err
		}
		if count > math.MaxUint64/2 {
			return nil, fmt.Errorf("%w: string length %d at %d", ErrMalformed, count, offset)
		}
		raw, err := d.slice(start, count*2)
		if err != nil {
			return nil, err
		}
		units := make([]uint16, count)
		for i := range units {
			units[i] = binary.BigEndian.Uint16(raw[i*2:])
		}
		*slot = Value{Kind: KindString, String: string(utf16.Decode(units))}
		return nil, nil

	case 0x8:
		if info > 7 {
			return nil, fmt.Errorf("%w: uid of %d bytes at %d", ErrMalformed, info+1, offset)
		}
		raw, err := d.slice(position, uint64(info)+1)
		if err != nil {
			return nil, err
		}
		*slot = Value{Kind: KindUID, Integer: int64(readUint(raw))}
		return nil, nil

	case 0xA, 0xC:
		count, start, err := d.readCount(position, info)
		if err != nil {
			return nil, err
		}
		refs, err := d.readRefs(start, count)
		if err != nil {
			return nil, err
		}
		*slot = Value{Kind: KindArray, Array: make([]Value, len(refs))}
		return &container{target: slot, values: slot.Array, refs: refs}, nil

	case 0xD:
		count, start, err := d.readCount(position, info)
		if err != nil {
			return nil, err
		}
		if count > math.MaxUint64/2 {
			return nil, fmt.Errorf("%w: dictionary size %d at %d", ErrMalformed, count, offset)
		}
		refs, err := d.readRefs(start, count*2)
		if err != nil {
			return nil, err
		}
		keyRefs, valueRefs := refs[:count], refs[count:]
		keys := make([]string, len(keyRefs))
		for i, keyRef := range keyRefs {
			var key Value
			nested, err := d.resolve(keyRef, &key)
			if err != nil {
				return nil, err
			}
			if nested != nil || key.Kind != KindString {
				return nil, fmt.Errorf("%w: dictionary key of kind %s at %d", ErrMalformed, key.Kind, offset)
			}
			keys[i] = key.String
		}
		*slot = Value{Kind: KindDict}
		return &container{
			target: slot,
			keys:   keys,
			values: make([]Value, len(valueRefs)),
			refs:   valueRefs,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown object marker 0x%02x at %d", ErrMalformed, marker, offset)
	}
}

// objectOffset looks up the byte offset of object ref in the offset
// table. Objects must lie between the header and the offset table.
func (d *binaryDecoder) objectOffset(ref uint64) (uint64, error) {
	if ref >= d.numObjects {
		return 0, fmt.Errorf("%w: object reference %d out of range (%d objects)", ErrMalformed, ref, d.numObjects)
	}
	entry := d.offsetTable + ref*uint64(d.offsetSize)
	offset := readUint(d.data[entry : entry+uint64(d.offsetSize)])
	if offset < headerSize || offset >= d.offsetTable {
		return 0, fmt.Errorf("%w: object %d at offset %d out of range", ErrMalformed, ref, offset)
	}
	return offset, nil
}

// slice returns length bytes starting at start, or an error if that
// range leaves the object area.
func (d *binaryDecoder) slice(start, length uint64) ([]byte, error) {
	if start > d.offsetTable || length > d.offsetTable-start {
		return nil, fmt.Errorf("%w: %d bytes at %d overrun the object table", ErrMalformed, length, start)
	}
	return d.data[start : start+length], nil
}

// readInt decodes an integer object body of 1<<sizeExponent bytes.
// Eight-byte integers are signed; shorter ones are unsigned. Sixteen
// byte integers keep their low eight bytes.
func (d *binaryDecoder) readInt(start uint64, sizeExponent byte) (int64, uint64, error) {
	if sizeExponent > 4 {
		return 0, 0, fmt.Errorf("%w: integer size exponent %d", ErrMalformed, sizeExponent)
	}
	width := uint64(1) << sizeExponent
	raw, err := d.slice(start, width)
	if err != nil {
		return 0, 0, err
	}
	if width == 16 {
		raw = raw[8:]
	}
	return int64(readUint(raw)), start + width, nil
}

func (d *binaryDecoder) readReal(start uint64, sizeExponent byte) (float64, error) {
	switch sizeExponent {
	case 2:
		raw, err := d.slice(start, 4)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case 3:
		raw, err := d.slice(start, 8)
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	default:
		return 0, fmt.Errorf("%w: real size exponent %d", ErrMalformed, sizeExponent)
	}
}

// readCount decodes the element count of a variable-length object. A
// low nibble of 0xF means the count follows as an integer object.
// Returns the count and the position of the object's payload.
func (d *binaryDecoder) readCount(position uint64, info byte) (uint64, uint64, error) {
	if info != 0x0F {
		return uint64(info), position, nil
	}
	marker, err := d.slice(position, 1)
	if err != nil {
		return 0, 0, err
	}
	if marker[0]>>4 != 0x1 {
		return 0, 0, fmt.Errorf("%w: count marker 0x%02x at %d", ErrMalformed, marker[0], position)
	}
	count, next, err := d.readInt(position+1, marker[0]&0x0F)
	if err != nil {
		return 0, 0, err
	}
	if count < 0 {
		return 0, 0, fmt.Errorf("%w: negative count at %d", ErrMalformed, position)
	}
	return uint64(count), next, nil
}

// readRefs reads count object references of refSize bytes each.
func (d *binaryDecoder) readRefs(start, count uint64) ([]uint64, error) {
	if count > d.offsetTable/uint64(d.refSize) {
		return nil, fmt.Errorf("%w: %d references at %d overrun the object table", ErrMalformed, count, start)
	}
	raw, err := d.slice(start, count*uint64(d.refSize))
	if err != nil {
		return nil, err
	}
	refs := make([]uint64, count)
	for i := range refs {
		offset := i * d.refSize
		refs[i] = readUint(raw[offset : offset+d.refSize])
	}
	return refs, nil
}

// readUint decodes a big-endian unsigned integer of up to eight bytes.
func readUint(raw []byte) uint64 {
	var value uint64
	for _, b := range raw {
		value = value<<8 | uint64(b)
	}
	return value
}
