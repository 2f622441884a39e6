// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plist

import (
	"bytes"
	"fmt"
)

var (
	binaryMagic = []byte("bplist0")
	utf8BOM     = []byte{0xEF, 0xBB, 0xBF}
)

// Decode parses data as a binary or XML property list, detected from
// the leading bytes.
func Decode(data []byte) (Value, error) {
	if bytes.HasPrefix(data, binaryMagic) {
		return decodeBinary(data)
	}
	text := bytes.TrimPrefix(data, utf8BOM)
	text = bytes.TrimLeft(text, " \t\r\n")
	if len(text) > 0 && text[0] == '<' {
		return decodeXML(text)
	}
	return Value{}, fmt.Errorf("%w: unrecognized encoding", ErrMalformed)
}
