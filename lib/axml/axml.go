// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package axml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// ErrMalformed is returned for any structural decode failure.
var ErrMalformed = errors.New("axml: malformed binary xml")

// Chunk types.
const (
	chunkStringPool     = 0x0001
	chunkXML            = 0x0003
	chunkNamespaceStart = 0x0100
	chunkNamespaceEnd   = 0x0101
	chunkElementStart   = 0x0102
	chunkElementEnd     = 0x0103
	chunkCData          = 0x0104
	chunkResourceMap    = 0x0180
)

// Typed value data types.
const (
	TypeNull      = 0x00
	TypeReference = 0x01
	TypeAttribute = 0x02
	TypeString    = 0x03
	TypeFloat     = 0x04
	TypeIntDec    = 0x10
	TypeIntHex    = 0x11
	TypeIntBool   = 0x12
)

// Framework resource ids for the manifest attributes the extractor
// reads.
const (
	AttrLabel       = 0x01010001
	AttrIcon        = 0x01010002
	AttrName        = 0x01010003
	AttrVersionCode = 0x0101021b
	AttrVersionName = 0x0101021c
)

const (
	chunkHeaderSize = 8
	nodeHeaderSize  = 16
	attributeSize   = 20
	noIndex         = 0xFFFFFFFF
	utf8Flag        = 1 << 8

	// MaxElements bounds the number of start-element events.
	MaxElements = 1 << 16
)

// Attribute is one attribute of a start-element event.
type Attribute struct {
	Namespace  string
	Name       string
	ResourceID uint32

	// Raw is the original string value, if the compiler kept one.
	Raw    string
	HasRaw bool

	Type uint8
	Data uint32

	// Resolved holds the string pool entry for TypeString values.
	Resolved string
}

// Value renders the attribute value as a string. String values come
// from the string pool, integers in decimal, booleans as "true" or
// "false", and references as "@0x7f0c0001".
func (a Attribute) Value() string {
	switch a.Type {
	case TypeString:
		return a.Resolved
	case TypeIntDec:
		return strconv.FormatInt(int64(int32(a.Data)), 10)
	case TypeIntHex:
		return "0x" + strconv.FormatUint(uint64(a.Data), 16)
	case TypeIntBool:
		if a.Data != 0 {
			return "true"
		}
		return "false"
	case TypeReference:
		return fmt.Sprintf("@0x%08x", a.Data)
	case TypeAttribute:
		return fmt.Sprintf("?0x%08x", a.Data)
	default:
		if a.HasRaw {
			return a.Raw
		}
		return ""
	}
}

// IsReference reports whether the value points into the resource table.
func (a Attribute) IsReference() bool {
	return a.Type == TypeReference
}

// Element is one start-element event. Depth is 0 for the root.
type Element struct {
	Namespace  string
	Name       string
	Depth      int
	Attributes []Attribute
}

// Attr finds an attribute by framework resource id, falling back to its
// local name. Pass 0 to match by name only.
func (e *Element) Attr(name string, resourceID uint32) (Attribute, bool) {
	if resourceID != 0 {
		for _, attribute := range e.Attributes {
			if attribute.ResourceID == resourceID {
				return attribute, true
			}
		}
	}
	for _, attribute := range e.Attributes {
		if attribute.Name == name {
			return attribute, true
		}
	}
	return Attribute{}, false
}

// Document is a decoded binary XML file.
type Document struct {
	Strings  []string
	Elements []Element

	// Namespaces maps each declared namespace URI to its prefix.
	Namespaces map[string]string
}

// Root returns the first element, or nil for an empty document.
func (d *Document) Root() *Element {
	if len(d.Elements) == 0 {
		return nil
	}
	return &d.Elements[0]
}

// Find returns the first element named name at depth, or nil.
func (d *Document) Find(name string, depth int) *Element {
	for i := range d.Elements {
		if d.Elements[i].Depth == depth && d.Elements[i].Name == name {
			return &d.Elements[i]
		}
	}
	return nil
}

type chunkHeader struct {
	kind       uint16
	headerSize uint16
	size       uint32
}

func readChunkHeader(data []byte, offset int) (chunkHeader, error) {
	if offset < 0 || len(data)-offset < chunkHeaderSize {
		return chunkHeader{}, fmt.Errorf("%w: chunk header at %d overruns %d bytes", ErrMalformed, offset, len(data))
	}
	header := chunkHeader{
		kind:       binary.LittleEndian.Uint16(data[offset:]),
		headerSize: binary.LittleEndian.Uint16(data[offset+2:]),
		size:       binary.LittleEndian.Uint32(data[offset+4:]),
	}
	if int(header.headerSize) < chunkHeaderSize || header.size < uint32(header.headerSize) {
		return chunkHeader{}, fmt.Errorf("%w: chunk 0x%04x at %d has header %d and size %d",
			ErrMalformed, header.kind, offset, header.headerSize, header.size)
	}
	if uint64(header.size) > uint64(len(data)-offset) {
		return chunkHeader{}, fmt.Errorf("%w: chunk 0x%04x at %d of %d bytes overruns %d bytes",
			ErrMalformed, header.kind, offset, header.size, len(data))
	}
	return header, nil
}

// decoder is the state of one pass over the chunk stream.
type decoder struct {
	strings     []string
	resourceIDs []uint32
	namespaces  map[string]string
	elements    []Element
	depth       int
}

// Decode parses a binary XML document.
func Decode(data []byte) (*Document, error) {
	root, err := readChunkHeader(data, 0)
	if err != nil {
		return nil, err
	}
	if root.kind != chunkXML {
		return nil, fmt.Errorf("%w: document chunk type 0x%04x, want 0x%04x", ErrMalformed, root.kind, chunkXML)
	}

	state := &decoder{namespaces: make(map[string]string)}
	end := int(root.size)
	for offset := int(root.headerSize); offset < end; {
		header, err := readChunkHeader(data[:end], offset)
		if err != nil {
			return nil, err
		}
		chunk := data[offset : offset+int(header.size)]

		switch header.kind {
		case chunkStringPool:
			if state.strings != nil {
				return nil, fmt.Errorf("%w: second string pool at %d", ErrMalformed, offset)
			}
			state.strings, err = decodeStringPool(chunk, header)
		case chunkResourceMap:
			state.resourceIDs, err = decodeResourceMap(chunk, header)
		case chunkNamespaceStart:
			err = state.namespaceStart(chunk, header)
		case chunkElementStart:
			err = state.elementStart(chunk, header)
		case chunkElementEnd:
			err = state.elementEnd(chunk, header)
		case chunkNamespaceEnd, chunkCData:
			// Nothing the manifest reader needs.
		default:
			// Unknown chunks are skipped by size, as the platform
			// parser does.
		}
		if err != nil {
			return nil, err
		}
		offset += int(header.size)
	}

	if state.depth != 0 {
		return nil, fmt.Errorf("%w: %d unclosed elements", ErrMalformed, state.depth)
	}
	return &Document{
		Strings:    state.strings,
		Elements:   state.elements,
		Namespaces: state.namespaces,
	}, nil
}

// str resolves a string pool index. noIndex resolves to "".
func (d *decoder) str(index uint32) (string, error) {
	if index == noIndex {
		return "", nil
	}
	if uint64(index) >= uint64(len(d.strings)) {
		return "", fmt.Errorf("%w: string index %d out of range (%d strings)", ErrMalformed, index, len(d.strings))
	}
	return d.strings[index], nil
}

// node returns the body of an event chunk after its 16-byte node
// header, checking that it holds at least minimum bytes.
func node(chunk []byte, header chunkHeader, minimum int) ([]byte, error) {
	if header.headerSize < nodeHeaderSize {
		return nil, fmt.Errorf("%w: node header of %d bytes", ErrMalformed, header.headerSize)
	}
	body := chunk[header.headerSize:]
	if len(body) < minimum {
		return nil, fmt.Errorf("%w: node chunk 0x%04x body of %d bytes, want %d", ErrMalformed, header.kind, len(body), minimum)
	}
	return body, nil
}

func (d *decoder) namespaceStart(chunk []byte, header chunkHeader) error {
	body, err := node(chunk, header, 8)
	if err != nil {
		return err
	}
	prefix, err := d.str(binary.LittleEndian.Uint32(body))
	if err != nil {
		return err
	}
	uri, err := d.str(binary.LittleEndian.Uint32(body[4:]))
	if err != nil {
		return err
	}
	d.namespaces[uri] = prefix
	return nil
}

func (d *decoder) elementStart(chunk []byte, header chunkHeader) error {
	if len(d.elements) >= MaxElements {
		return fmt.Errorf("%w: more than %d elements", ErrMalformed, MaxElements)
	}
	body, err := node(chunk, header, 20)
	if err != nil {
		return err
	}

	namespace, err := d.str(binary.LittleEndian.Uint32(body))
	if err != nil {
		return err
	}
	name, err := d.str(binary.LittleEndian.Uint32(body[4:]))
	if err != nil {
		return err
	}
	attributeStart := int(binary.LittleEndian.Uint16(body[8:]))
	attributeStride := int(binary.LittleEndian.Uint16(body[10:]))
	attributeCount := int(binary.LittleEndian.Uint16(body[12:]))

	if attributeCount > 0 && attributeStride < attributeSize {
		return fmt.Errorf("%w: attribute size %d on <%s>", ErrMalformed, attributeStride, name)
	}
	if attributeStart+attributeCount*attributeStride > len(body) {
		return fmt.Errorf("%w: %d attributes on <%s> overrun the chunk", ErrMalformed, attributeCount, name)
	}

	element := Element{
		Namespace:  namespace,
		Name:       name,
		Depth:      d.depth,
		Attributes: make([]Attribute, 0, attributeCount),
	}
	for i := range attributeCount {
		raw := body[attributeStart+i*attributeStride:]
		attribute, err := d.attribute(raw)
		if err != nil {
			return fmt.Errorf("attribute %d of <%s>: %w", i, name, err)
		}
		element.Attributes = append(element.Attributes, attribute)
	}

	d.elements = append(d.elements, element)
	d.depth++
	return nil
}

func (d *decoder) attribute(raw []byte) (Attribute, error) {
	namespaceIndex := binary.LittleEndian.Uint32(raw)
	nameIndex := binary.LittleEndian.Uint32(raw[4:])
	rawIndex := binary.LittleEndian.Uint32(raw[8:])
	// raw[12:14] is the typed value size and raw[14] is reserved.
	dataType := raw[15]
	data := binary.LittleEndian.Uint32(raw[16:])

	var attribute Attribute
	var err error
	if attribute.Namespace, err = d.str(namespaceIndex); err != nil {
		return Attribute{}, err
	}
	if attribute.Name, err = d.str(nameIndex); err != nil {
		return Attribute{}, err
	}
	if uint64(nameIndex) < uint64(len(d.resourceIDs)) {
		attribute.ResourceID = d.resourceIDs[nameIndex]
	}
	if rawIndex != noIndex {
		if attribute.Raw, err = d.str(rawIndex); err != nil {
			return Attribute{}, err
		}
		attribute.HasRaw = true
	}
	attribute.Type = dataType
	attribute.Data = data
	if dataType == TypeString {
		if attribute.Resolved, err = d.str(data); err != nil {
			return Attribute{}, err
		}
	}
	return attribute, nil
}

func (d *decoder) elementEnd(chunk []byte, header chunkHeader) error {
	if _, err := node(chunk, header, 8); err != nil {
		return err
	}
	if d.depth == 0 {
		return fmt.Errorf("%w: end element without start", ErrMalformed)
	}
	d.depth--
	return nil
}

func decodeResourceMap(chunk []byte, header chunkHeader) ([]uint32, error) {
	body := chunk[header.headerSize:]
	ids := make([]uint32, len(body)/4)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(body[i*4:])
	}
	return ids, nil
}

// decodeStringPool decodes every string in a string pool chunk.
func decodeStringPool(chunk []byte, header chunkHeader) ([]string, error) {
	if header.headerSize < 28 {
		return nil, fmt.Errorf("%w: string pool header of %d bytes", ErrMalformed, header.headerSize)
	}
	count := binary.LittleEndian.Uint32(chunk[8:])
	flags := binary.LittleEndian.Uint32(chunk[16:])
	stringsStart := binary.LittleEndian.Uint32(chunk[20:])

	offsetsEnd := uint64(header.headerSize) + uint64(count)*4
	if offsetsEnd > uint64(len(chunk)) {
		return nil, fmt.Errorf("%w: %d string offsets overrun the pool", ErrMalformed, count)
	}
	if uint64(stringsStart) > uint64(len(chunk)) {
		return nil, fmt.Errorf("%w: string data at %d outside the pool", ErrMalformed, stringsStart)
	}
	data := chunk[stringsStart:]
	isUTF8 := flags&utf8Flag != 0

	result := make([]string, count)
	for i := range result {
		offset := binary.LittleEndian.Uint32(chunk[int(header.headerSize)+i*4:])
		var err error
		if isUTF8 {
			result[i], err = decodeUTF8(data, offset)
		} else {
			result[i], err = decodeUTF16(data, offset)
		}
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
	}
	return result, nil
}

// decodeUTF8 reads a UTF-8 pool entry: a UTF-16 length and a byte
// length, each one or two bytes, then the bytes.
func decodeUTF8(data []byte, offset uint32) (string, error) {
	position := int(offset)
	if uint64(offset) >= uint64(len(data)) {
		return "", fmt.Errorf("%w: string at %d outside the pool", ErrMalformed, offset)
	}
	_, position, err := readLength8(data, position)
	if err != nil {
		return "", err
	}
	byteLength, position, err := readLength8(data, position)
	if err != nil {
		return "", err
	}
	if byteLength > len(data)-position {
		return "", fmt.Errorf("%w: string of %d bytes at %d overruns the pool", ErrMalformed, byteLength, offset)
	}
	return string(data[position : position+byteLength]), nil
}

func readLength8(data []byte, position int) (int, int, error) {
	if position >= len(data) {
		return 0, 0, fmt.Errorf("%w: string length at %d overruns the pool", ErrMalformed, position)
	}
	length := int(data[position])
	if length&0x80 == 0 {
		return length, position + 1, nil
	}
	if position+1 >= len(data) {
		return 0, 0, fmt.Errorf("%w: string length at %d overruns the pool", ErrMalformed, position)
	}
	return (length&0x7F)<<8 | int(data[position+1]), position + 2, nil
}

// decodeUTF16 reads a UTF-16LE pool entry: a length in code units, one
// or two words, then the units.
func decodeUTF16(data []byte, offset uint32) (string, error) {
	position := int(offset)
	if uint64(offset)+2 > uint64(len(data)) {
		return "", fmt.Errorf("%w: string at %d outside the pool", ErrMalformed, offset)
	}
	length := int(binary.LittleEndian.Uint16(data[position:]))
	position += 2
	if length&0x8000 != 0 {
		if position+2 > len(data) {
			return "", fmt.Errorf("%w: string length at %d overruns the pool", ErrMalformed, offset)
		}
		length = (length&0x7FFF)<<16 | int(binary.LittleEndian.Uint16(data[position:]))
		position += 2
	}
	if length > (len(data)-position)/2 {
		return "", fmt.Errorf("%w: string of %d units at %d overruns the pool", ErrMalformed, length, offset)
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[position+i*2:])
	}
	return string(utf16.Decode(units)), nil
}
