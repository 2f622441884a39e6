// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package plist

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// xmlBuilder is an open <array> or <dict> element.
type xmlBuilder struct {
	value      Value
	pendingKey string
	hasKey     bool
}

// xmlDecoder turns the token stream of an XML plist into a Value. It
// keeps open containers on an explicit stack.
type xmlDecoder struct {
	tokens  *xml.Decoder
	stack   []*xmlBuilder
	root    Value
	hasRoot bool
	objects int
}

func decodeXML(data []byte) (Value, error) {
	tokens := xml.NewDecoder(bytes.NewReader(data))
	tokens.Strict = true
	decoder := &xmlDecoder{tokens: tokens}

	for {
		token, err := tokens.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		switch element := token.(type) {
		case xml.StartElement:
			if err := decoder.start(element.Name.Local); err != nil {
				return Value{}, err
			}
		case xml.EndElement:
			if err := decoder.end(element.Name.Local); err != nil {
				return Value{}, err
			}
		case xml.CharData:
			if len(bytes.TrimSpace(element)) > 0 && len(decoder.stack) > 0 {
				return Value{}, fmt.Errorf("%w: stray text inside container", ErrMalformed)
			}
		}
	}

	if len(decoder.stack) > 0 {
		return Value{}, fmt.Errorf("%w: unterminated <%s>", ErrMalformed, decoder.stack[len(decoder.stack)-1].value.Kind)
	}
	if !decoder.hasRoot {
		return Value{}, fmt.Errorf("%w: no root object", ErrMalformed)
	}
	return decoder.root, nil
}

func (d *xmlDecoder) start(name string) error {
	switch name {
	case "plist":
		if len(d.stack) > 0 || d.hasRoot {
			return fmt.Errorf("%w: nested <plist>", ErrMalformed)
		}
		return nil

	case "dict", "array":
		if len(d.stack) >= MaxDepth {
			return fmt.Errorf("%w: nesting deeper than %d", ErrMalformed, MaxDepth)
		}
		if err := d.count(); err != nil {
			return err
		}
		builder := &xmlBuilder{}
		if name == "dict" {
			builder.value = Value{Kind: KindDict, Dict: make(map[string]Value)}
		} else {
			builder.value = Value{Kind: KindArray}
		}
		d.stack = append(d.stack, builder)
		return nil

	case "key":
		text, err := d.text(name)
		if err != nil {
			return err
		}
		if len(d.stack) == 0 || d.stack[len(d.stack)-1].value.Kind != KindDict {
			return fmt.Errorf("%w: <key> outside <dict>", ErrMalformed)
		}
		top := d.stack[len(d.stack)-1]
		if top.hasKey {
			return fmt.Errorf("%w: <key> %q follows <key> %q", ErrMalformed, text, top.pendingKey)
		}
		top.pendingKey, top.hasKey = text, true
		return nil

	default:
		if err := d.count(); err != nil {
			return err
		}
		text, err := d.text(name)
		if err != nil {
			return err
		}
		value, err := parseScalar(name, text)
		if err != nil {
			return err
		}
		return d.add(value)
	}
}

func (d *xmlDecoder) end(name string) error {
	switch name {
	case "plist":
		return nil
	case "dict", "array":
		if len(d.stack) == 0 {
			return fmt.Errorf("%w: unbalanced </%s>", ErrMalformed, name)
		}
		top := d.stack[len(d.stack)-1]
		if top.hasKey {
			return fmt.Errorf("%w: <key> %q has no value", ErrMalformed, top.pendingKey)
		}
		d.stack = d.stack[:len(d.stack)-1]
		return d.add(top.value)
	default:
		return fmt.Errorf("%w: unexpected </%s>", ErrMalformed, name)
	}
}

// add places a completed value into the innermost open container, or
// makes it the root.
func (d *xmlDecoder) add(value Value) error {
	if len(d.stack) == 0 {
		if d.hasRoot {
			return fmt.Errorf("%w: more than one root object", ErrMalformed)
		}
		d.root, d.hasRoot = value, true
		return nil
	}

	top := d.stack[len(d.stack)-1]
	if top.value.Kind == KindArray {
		top.value.Array = append(top.value.Array, value)
		return nil
	}
	if !top.hasKey {
		return fmt.Errorf("%w: <dict> value without <key>", ErrMalformed)
	}
	top.value.Dict[top.pendingKey] = value
	top.pendingKey, top.hasKey = "", false
	return nil
}

func (d *xmlDecoder) count() error {
	d.objects++
	if d.objects > MaxObjects {
		return fmt.Errorf("%w: more than %d objects", ErrMalformed, MaxObjects)
	}
	return nil
}

// text collects the character data of a leaf element up to its end tag.
func (d *xmlDecoder) text(name string) (string, error) {
	var builder strings.Builder
	for {
		token, err := d.tokens.Token()
		if err != nil {
			return "", fmt.Errorf("%w: reading <%s>: %v", ErrMalformed, name, err)
		}
		switch element := token.(type) {
		case xml.CharData:
			builder.Write(element)
		case xml.EndElement:
			if element.Name.Local != name {
				return "", fmt.Errorf("%w: <%s> closed by </%s>", ErrMalformed, name, element.Name.Local)
			}
			return builder.String(), nil
		case xml.StartElement:
			return "", fmt.Errorf("%w: <%s> inside <%s>", ErrMalformed, element.Name.Local, name)
		}
	}
}

func parseScalar(name, text string) (Value, error) {
	switch name {
	case "string":
		return Value{Kind: KindString, String: text}, nil

	case "integer":
		integer, err := strconv.ParseInt(strings.TrimSpace(text), 0, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: <integer> %q", ErrMalformed, text)
		}
		return Value{Kind: KindInteger, Integer: integer}, nil

	case "real":
		number, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: <real> %q", ErrMalformed, text)
		}
		return Value{Kind: KindReal, Real: number}, nil

	case "true", "false":
		return Value{Kind: KindBool, Bool: name == "true"}, nil

	case "date":
		date, err := time.Parse(time.RFC3339, strings.TrimSpace(text))
		if err != nil {
			return Value{}, fmt.Errorf("%w: <date> %q", ErrMalformed, text)
		}
		return Value{Kind: KindDate, Date: date.UTC()}, nil

	case "data":
		compact := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
				return -1
			}
			return r
		}, text)
		data, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return Value{}, fmt.Errorf("%w: <data>: %v", ErrMalformed, err)
		}
		return Value{Kind: KindData, Data: data}, nil

	default:
		return Value{}, fmt.Errorf("%w: unknown element <%s>", ErrMalformed, name)
	}
}
