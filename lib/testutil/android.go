// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

// AndroidNamespace is the URI bound to the "android" prefix in every
// compiled manifest.
const AndroidNamespace = "http://schemas.android.com/apk/res/android"

// Framework resource ids of the manifest attributes fixtures use.
const (
	ResourceLabel       = 0x01010001
	ResourceIcon        = 0x01010002
	ResourceVersionCode = 0x0101021b
	ResourceVersionName = 0x0101021c
)

// ResourceRef is an attribute value pointing into the resource table,
// such as @string/app_name compiled to 0x7f0c0001.
type ResourceRef uint32

// XMLNode is one element of a binary XML fixture.
type XMLNode struct {
	Name       string
	Attributes []XMLAttribute
	Children   []XMLNode
}

// XMLAttribute is one attribute of a binary XML fixture. Value may be
// a string, an int, a bool, or a ResourceRef. Attributes with a
// non-zero ResourceID are listed in the resource map, as aapt does for
// framework attributes.
type XMLAttribute struct {
	Name       string
	Android    bool
	ResourceID uint32
	Value      any
}

// ManifestOptions describes the common shape of an AndroidManifest.
type ManifestOptions struct {
	Package     string
	VersionName string
	VersionCode int

	// Label and Icon are strings or ResourceRefs; nil omits them.
	Label any
	Icon  any
}

// Manifest returns the element tree of a manifest with an
// <application> child.
func Manifest(options ManifestOptions) XMLNode {
	root := XMLNode{Name: "manifest"}
	if options.VersionCode != 0 {
		root.Attributes = append(root.Attributes, XMLAttribute{
			Name: "versionCode", Android: true, ResourceID: ResourceVersionCode, Value: options.VersionCode,
		})
	}
	if options.VersionName != "" {
		root.Attributes = append(root.Attributes, XMLAttribute{
			Name: "versionName", Android: true, ResourceID: ResourceVersionName, Value: options.VersionName,
		})
	}
	if options.Package != "" {
		root.Attributes = append(root.Attributes, XMLAttribute{Name: "package", Value: options.Package})
	}

	application := XMLNode{Name: "application"}
	if options.Label != nil {
		application.Attributes = append(application.Attributes, XMLAttribute{
			Name: "label", Android: true, ResourceID: ResourceLabel, Value: options.Label,
		})
	}
	if options.Icon != nil {
		application.Attributes = append(application.Attributes, XMLAttribute{
			Name: "icon", Android: true, ResourceID: ResourceIcon, Value: options.Icon,
		})
	}
	root.Children = []XMLNode{
		{Name: "uses-sdk", Attributes: []XMLAttribute{{Name: "minSdkVersion", Android: true, ResourceID: 0x0101020c, Value: 24}}},
		application,
	}
	return root
}

// APK builds an .apk archive holding AndroidManifest.xml and the extra
// files, whose names are relative to the archive root.
func APK(t testing.TB, manifest []byte, files map[string][]byte) []byte {
	t.Helper()
	entries := map[string][]byte{
		"AndroidManifest.xml": manifest,
		"classes.dex":         []byte("dex\n035\x00"),
	}
	for name, data := range files {
		entries[name] = data
	}
	return Zip(t, entries)
}

// stringPool assigns indices to strings. Names of attributes with a
// resource id come first so the resource map can index them.
type stringPool struct {
	strings []string
	index   map[string]uint32
}

func (p *stringPool) add(value string) uint32 {
	if index, exists := p.index[value]; exists {
		return index
	}
	index := uint32(len(p.strings))
	p.strings = append(p.strings, value)
	p.index[value] = index
	return index
}

// BinaryXML compiles root into Android binary XML with the android
// namespace declared on the root element. utf8 selects the string pool
// encoding.
func BinaryXML(t testing.TB, root XMLNode, utf8 bool) []byte {
	t.Helper()

	pool := &stringPool{index: make(map[string]uint32)}
	var resourceIDs []uint32
	var collectResources func(node XMLNode)
	collectResources = func(node XMLNode) {
		for _, attribute := range node.Attributes {
			if attribute.ResourceID == 0 {
				continue
			}
			if _, exists := pool.index[attribute.Name]; !exists {
				pool.add(attribute.Name)
				resourceIDs = append(resourceIDs, attribute.ResourceID)
			}
		}
		for _, child := range node.Children {
			collectResources(child)
		}
	}
	collectResources(root)

	prefix := pool.add("android")
	uri := pool.add(AndroidNamespace)

	var body bytes.Buffer
	writeNamespace(&body, 0x0100, prefix, uri)
	var writeNode func(node XMLNode)
	writeNode = func(node XMLNode) {
		name := pool.add(node.Name)
		var attributes bytes.Buffer
		for _, attribute := range node.Attributes {
			namespace := uint32(0xFFFFFFFF)
			if attribute.Android {
				namespace = uri
			}
			rawValue := uint32(0xFFFFFFFF)
			var dataType uint8
			var data uint32
			switch value := attribute.Value.(type) {
			case string:
				dataType = 0x03
				data = pool.add(value)
				rawValue = data
			case int:
				dataType = 0x10
				data = uint32(int32(value))
			case bool:
				dataType = 0x12
				if value {
					data = 0xFFFFFFFF
				}
			case ResourceRef:
				dataType = 0x01
				data = uint32(value)
			default:
				t.Fatalf("unsupported attribute value %T for %s", value, attribute.Name)
			}
			writeUint32(&attributes, namespace)
			writeUint32(&attributes, pool.add(attribute.Name))
			writeUint32(&attributes, rawValue)
			writeUint16(&attributes, 8)
			attributes.WriteByte(0)
			attributes.WriteByte(dataType)
			writeUint32(&attributes, data)
		}

		count := len(node.Attributes)
		writeChunkHeader(&body, 0x0102, 16, uint32(16+20+20*count))
		writeUint32(&body, 1)
		writeUint32(&body, 0xFFFFFFFF)
		writeUint32(&body, 0xFFFFFFFF)
		writeUint32(&body, name)
		writeUint16(&body, 20)
		writeUint16(&body, 20)
		writeUint16(&body, uint16(count))
		writeUint16(&body, 0)
		writeUint16(&body, 0)
		writeUint16(&body, 0)
		body.Write(attributes.Bytes())

		for _, child := range node.Children {
			writeNode(child)
		}

		writeChunkHeader(&body, 0x0103, 16, 24)
		writeUint32(&body, 1)
		writeUint32(&body, 0xFFFFFFFF)
		writeUint32(&body, 0xFFFFFFFF)
		writeUint32(&body, name)
	}
	writeNode(root)
	writeNamespace(&body, 0x0101, prefix, uri)

	var resourceMap bytes.Buffer
	writeChunkHeader(&resourceMap, 0x0180, 8, uint32(8+4*len(resourceIDs)))
	for _, id := range resourceIDs {
		writeUint32(&resourceMap, id)
	}

	stringChunk := encodeStringPool(pool.strings, utf8)

	var document bytes.Buffer
	total := 8 + len(stringChunk) + resourceMap.Len() + body.Len()
	writeChunkHeader(&document, 0x0003, 8, uint32(total))
	document.Write(stringChunk)
	document.Write(resourceMap.Bytes())
	document.Write(body.Bytes())
	return document.Bytes()
}

func encodeStringPool(strings []string, utf8 bool) []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(strings))
	for i, value := range strings {
		offsets[i] = uint32(data.Len())
		if utf8 {
			writeLength8(&data, len(utf16.Encode([]rune(value))))
			writeLength8(&data, len(value))
			data.WriteString(value)
			data.WriteByte(0)
		} else {
			units := utf16.Encode([]rune(value))
			writeUint16(&data, uint16(len(units)))
			for _, unit := range units {
				writeUint16(&data, unit)
			}
			writeUint16(&data, 0)
		}
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	var flags uint32
	if utf8 {
		flags = 1 << 8
	}
	stringsStart := uint32(28 + 4*len(strings))

	var chunk bytes.Buffer
	writeChunkHeader(&chunk, 0x0001, 28, stringsStart+uint32(data.Len()))
	writeUint32(&chunk, uint32(len(strings)))
	writeUint32(&chunk, 0)
	writeUint32(&chunk, flags)
	writeUint32(&chunk, stringsStart)
	writeUint32(&chunk, 0)
	for _, offset := range offsets {
		writeUint32(&chunk, offset)
	}
	chunk.Write(data.Bytes())
	return chunk.Bytes()
}

func writeNamespace(buffer *bytes.Buffer, kind uint16, prefix, uri uint32) {
	writeChunkHeader(buffer, kind, 16, 24)
	writeUint32(buffer, 1)
	writeUint32(buffer, 0xFFFFFFFF)
	writeUint32(buffer, prefix)
	writeUint32(buffer, uri)
}

func writeLength8(buffer *bytes.Buffer, length int) {
	if length < 0x80 {
		buffer.WriteByte(byte(length))
		return
	}
	buffer.WriteByte(byte(length>>8) | 0x80)
	buffer.WriteByte(byte(length))
}

func writeChunkHeader(buffer *bytes.Buffer, kind, headerSize uint16, size uint32) {
	writeUint16(buffer, kind)
	writeUint16(buffer, headerSize)
	writeUint32(buffer, size)
}

func writeUint16(buffer *bytes.Buffer, value uint16) {
	_ = binary.Write(buffer, binary.LittleEndian, value)
}

func writeUint32(buffer *bytes.Buffer, value uint32) {
	_ = binary.Write(buffer, binary.LittleEndian, value)
}
