// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/significa/appdist/lib/codec"
)

// MaxTagLength is the maximum byte length of a tag name.
const MaxTagLength = 256

// tagSetRecord is the on-disk form of the global tag set.
type tagSetRecord struct {
	Tags      []string  `cbor:"tags"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

// tagSet is the decoded global tag set.
type tagSet map[string]struct{}

func (set tagSet) has(name string) bool {
	_, exists := set[name]
	return exists
}

// missing returns the names not in the set, in request order.
func (set tagSet) missing(names []string) []string {
	var result []string
	for _, name := range names {
		if !set.has(name) {
			result = append(result, name)
		}
	}
	return result
}

func (set tagSet) sorted() []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeTag trims surrounding whitespace from a tag name and checks
// that what remains is a valid name. Tags are case-sensitive.
func NormalizeTag(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTag)
	}
	if len(trimmed) > MaxTagLength {
		return "", fmt.Errorf("%w: %d bytes, maximum is %d", ErrInvalidTag, len(trimmed), MaxTagLength)
	}
	if strings.IndexFunc(trimmed, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q contains control characters", ErrInvalidTag, trimmed)
	}
	return trimmed, nil
}

// NormalizeTags normalizes every name and drops duplicates, keeping
// first occurrences in order.
func NormalizeTags(names []string) ([]string, error) {
	result := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalized, err := NormalizeTag(name)
		if err != nil {
			return nil, err
		}
		if _, duplicate := seen[normalized]; duplicate {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result, nil
}

// TagIndex maintains the global tag set and each upload's tag
// membership. It shares the Store's directory and locks.
type TagIndex struct {
	store *Store
}

// AddTag adds name to the tag set. It returns false, without error, if
// the tag already exists.
func (t *TagIndex) AddTag(name string) (bool, error) {
	name, err := NormalizeTag(name)
	if err != nil {
		return false, err
	}

	lock, err := t.lockForWrite()
	if err != nil {
		return false, err
	}
	defer lock.release()

	set, err := t.store.readTagSet()
	if err != nil {
		return false, err
	}
	if set.has(name) {
		return false, nil
	}
	set[name] = struct{}{}
	if err := t.store.writeTagSet(set); err != nil {
		return false, err
	}

	t.store.logger.Info("tag created", "tag", name)
	return true, nil
}

// TagExists reports whether name is in the tag set. The name is
// trimmed first; an invalid name does not exist.
func (t *TagIndex) TagExists(name string) (bool, error) {
	name, err := NormalizeTag(name)
	if err != nil {
		return false, nil
	}
	set, err := t.store.readSettledTagSet()
	if err != nil {
		return false, err
	}
	return set.has(name), nil
}

// AllTags returns the tag set, sorted.
func (t *TagIndex) AllTags() ([]string, error) {
	set, err := t.store.readSettledTagSet()
	if err != nil {
		return nil, err
	}
	return set.sorted(), nil
}

// MissingTags returns the names, after normalization, that are not in
// the tag set.
func (t *TagIndex) MissingTags(names []string) ([]string, error) {
	normalized, err := NormalizeTags(names)
	if err != nil {
		return nil, err
	}
	set, err := t.store.readSettledTagSet()
	if err != nil {
		return nil, err
	}
	return set.missing(normalized), nil
}

// TagsFor returns an upload's tags in attachment order.
func (t *TagIndex) TagsFor(uploadID string) ([]string, error) {
	info, err := t.store.Load(uploadID)
	if err != nil {
		return nil, err
	}
	return info.Tags, nil
}

// AttachTags appends tags to an upload's membership list, skipping
// ones it already has. Every tag must already exist; attaching never
// creates tags. Returns the resulting list.
func (t *TagIndex) AttachTags(uploadID string, tags []string) ([]string, error) {
	tags, err := NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	lock, err := t.lockForWrite()
	if err != nil {
		return nil, err
	}
	defer lock.release()

	set, err := t.store.readTagSet()
	if err != nil {
		return nil, err
	}
	if missing := set.missing(tags); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, strings.Join(missing, ", "))
	}

	info, err := t.store.load(uploadID)
	if err != nil {
		return nil, err
	}
	merged := appendUnique(info.Tags, tags)
	if len(merged) == len(info.Tags) {
		return info.Tags, nil
	}
	info.Tags = merged
	if err := t.store.writeMetadata(info); err != nil {
		return nil, err
	}

	t.store.logger.Info("tags attached", "upload_id", uploadID, "tags", tags)
	return info.Tags, nil
}

// RenameTag replaces oldName with newName in the tag set and in every
// upload that lists it, as one all-or-nothing change. It fails with
// ErrNotFound if oldName does not exist and ErrConflict if newName
// does.
func (t *TagIndex) RenameTag(oldName, newName string) error {
	oldName, err := NormalizeTag(oldName)
	if err != nil {
		return err
	}
	newName, err = NormalizeTag(newName)
	if err != nil {
		return err
	}

	lock, err := t.lockForWrite()
	if err != nil {
		return err
	}
	defer lock.release()

	set, err := t.store.readTagSet()
	if err != nil {
		return err
	}
	if !set.has(oldName) {
		return fmt.Errorf("%w: tag %q", ErrNotFound, oldName)
	}
	if set.has(newName) {
		return fmt.Errorf("%w: tag %q already exists", ErrConflict, newName)
	}

	ids, err := t.store.UploadIDs()
	if err != nil {
		return err
	}

	var batch renameBatch
	defer batch.discard()

	for _, uploadID := range ids {
		info, err := t.store.load(uploadID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		renamed, changed := replaceTag(info.Tags, oldName, newName)
		if !changed {
			continue
		}
		info.Tags = renamed
		data, err := codec.Marshal(info)
		if err != nil {
			return fmt.Errorf("encoding build info for %s: %w", uploadID, err)
		}
		if err := batch.stage(t.store.path(stagingDir), t.store.metadataPath(uploadID), data); err != nil {
			return err
		}
	}

	delete(set, oldName)
	set[newName] = struct{}{}
	setData, err := t.store.encodeTagSet(set)
	if err != nil {
		return err
	}
	// The tag set is committed last: until it changes, the old name
	// is still the valid one.
	if err := batch.stage(t.store.path(stagingDir), t.store.path(tagsFile), setData); err != nil {
		return err
	}

	if err := t.store.commitBatch(&batch); err != nil {
		return err
	}

	t.store.logger.Info("tag renamed",
		"old_tag", oldName,
		"new_tag", newName,
		"uploads", len(batch.entries)-1,
	)
	return nil
}

// lockForWrite takes the tags lock exclusively and finishes any rename
// a crashed writer left behind.
func (t *TagIndex) lockForWrite() (*fileLock, error) {
	lock, err := t.store.lockTags(true)
	if err != nil {
		return nil, err
	}
	if err := t.store.recoverJournal(); err != nil {
		lock.release()
		return nil, fmt.Errorf("recovering interrupted tag rename: %w", err)
	}
	return lock, nil
}

// readSettledTagSet reads the tag set outside any writer's critical
// section.
func (s *Store) readSettledTagSet() (tagSet, error) {
	lock, err := s.lockSettled()
	if err != nil {
		return nil, err
	}
	defer lock.release()
	return s.readTagSet()
}

func (s *Store) readTagSet() (tagSet, error) {
	data, err := os.ReadFile(s.path(tagsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return tagSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tag set: %w", err)
	}
	var record tagSetRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding tag set: %w", err)
	}
	set := make(tagSet, len(record.Tags))
	for _, name := range record.Tags {
		set[name] = struct{}{}
	}
	return set, nil
}

func (s *Store) encodeTagSet(set tagSet) ([]byte, error) {
	data, err := codec.Marshal(tagSetRecord{Tags: set.sorted(), UpdatedAt: s.clock.Now()})
	if err != nil {
		return nil, fmt.Errorf("encoding tag set: %w", err)
	}
	return data, nil
}

func (s *Store) writeTagSet(set tagSet) error {
	data, err := s.encodeTagSet(set)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(stagingDir), s.path(tagsFile), data)
}

// appendUnique appends the names from additions not already in
// existing, preserving order. existing is not modified.
func appendUnique(existing, additions []string) []string {
	result := make([]string, len(existing), len(existing)+len(additions))
	copy(result, existing)
	seen := make(map[string]struct{}, len(existing)+len(additions))
	for _, name := range existing {
		seen[name] = struct{}{}
	}
	for _, name := range additions {
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}

// replaceTag returns tags with oldName replaced by newName in place,
// and whether anything changed. A newName already present is not
// duplicated.
func replaceTag(tags []string, oldName, newName string) ([]string, bool) {
	index := -1
	hasNew := false
	for i, name := range tags {
		switch name {
		case oldName:
			index = i
		case newName:
			hasNew = true
		}
	}
	if index < 0 {
		return tags, false
	}
	result := make([]string, 0, len(tags))
	for i, name := range tags {
		if i == index {
			if !hasNew {
				result = append(result, newName)
			}
			continue
		}
		if name == oldName {
			continue
		}
		result = append(result, name)
	}
	return result, true
}
