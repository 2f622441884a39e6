// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// MaxEntrySize is the largest decompressed size of a single entry that
// Read will return. Info.plist, AndroidManifest.xml, and launcher icons
// are all far below this.
const MaxEntrySize = 64 << 20

var (
	// ErrMalformedArchive is returned when the buffer is not a zip
	// container, is truncated, or holds an entry that cannot be
	// decompressed.
	ErrMalformedArchive = errors.New("archive: malformed archive")

	// ErrEntryNotFound is returned by Read for a path the container
	// does not hold.
	ErrEntryNotFound = errors.New("archive: entry not found")
)

// Container is an opened zip archive held entirely in memory. It is
// immutable after Open and safe for concurrent reads.
type Container struct {
	reader  *zip.Reader
	entries map[string]*zip.File
	names   []string
}

// Open parses data as a zip container. The central directory is read
// eagerly, so a truncated or non-zip buffer fails here rather than on
// the first Read.
func Open(data []byte) (*Container, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrMalformedArchive)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}

	container := &Container{
		reader:  reader,
		entries: make(map[string]*zip.File, len(reader.File)),
		names:   make([]string, 0, len(reader.File)),
	}
	for _, file := range reader.File {
		name := normalizeName(file.Name)
		if name == "" {
			continue
		}
		// First entry wins for duplicated names, matching how
		// the platform installers resolve them.
		if _, exists := container.entries[name]; exists {
			continue
		}
		container.entries[name] = file
		container.names = append(container.names, name)
	}
	sort.Strings(container.names)

	return container, nil
}

// List returns every entry path in the container, sorted. Directory
// entries keep their trailing slash.
func (c *Container) List() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// Has reports whether the container holds an entry at name.
func (c *Container) Has(name string) bool {
	_, exists := c.entries[normalizeName(name)]
	return exists
}

// Size returns the declared uncompressed size of an entry.
func (c *Container) Size(name string) (uint64, error) {
	file, exists := c.entries[normalizeName(name)]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return file.UncompressedSize64, nil
}

// Read returns the decompressed bytes of the entry at name.
func (c *Container) Read(name string) ([]byte, error) {
	file, exists := c.entries[normalizeName(name)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if file.UncompressedSize64 > MaxEntrySize {
		return nil, fmt.Errorf("%w: entry %s declares %d bytes, limit is %d",
			ErrMalformedArchive, name, file.UncompressedSize64, MaxEntrySize)
	}

	entryReader, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening entry %s: %v", ErrMalformedArchive, name, err)
	}
	defer entryReader.Close()

	// Read one byte past the limit so an entry that lies about its
	// size in the central directory is still caught.
	data, err := io.ReadAll(io.LimitReader(entryReader, MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry %s: %v", ErrMalformedArchive, name, err)
	}
	if len(data) > MaxEntrySize {
		return nil, fmt.Errorf("%w: entry %s exceeds %d bytes", ErrMalformedArchive, name, MaxEntrySize)
	}
	return data, nil
}

// Glob returns the entry paths matching pattern, using path.Match
// syntax. Results are sorted. A malformed pattern matches nothing.
func (c *Container) Glob(pattern string) []string {
	var matches []string
	for _, name := range c.names {
		if matched, err := path.Match(pattern, name); err == nil && matched {
			matches = append(matches, name)
		}
	}
	return matches
}

// normalizeName converts Windows-style separators written by some
// packaging tools and drops a leading "./" or "/".
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	return strings.TrimLeft(name, "/")
}
