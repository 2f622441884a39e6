// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"fmt"

	"github.com/significa/appdist/lib/uploadstore"
)

// CreateTag adds a tag to the global set. It fails with
// uploadstore.ErrConflict if the tag exists and
// uploadstore.ErrInvalidTag if the name is blank.
func (s *Service) CreateTag(name string) error {
	created, err := s.tags.AddTag(name)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: tag %q already exists", uploadstore.ErrConflict, name)
	}
	return nil
}

// ListTags returns every tag, sorted.
func (s *Service) ListTags() ([]string, error) {
	return s.tags.AllTags()
}

// TagExists reports whether a tag exists.
func (s *Service) TagExists(name string) (bool, error) {
	return s.tags.TagExists(name)
}

// RenameTag renames a tag everywhere it is used, atomically.
func (s *Service) RenameTag(oldName, newName string) error {
	return s.tags.RenameTag(oldName, newName)
}

// TagsOf returns an upload's tags in the order they were attached.
func (s *Service) TagsOf(uploadID string) ([]string, error) {
	return s.tags.TagsFor(uploadID)
}

// AttachTags adds existing tags to an upload and returns its resulting
// tag list. Blank names are dropped; unknown names fail the whole call
// with uploadstore.ErrUnknownTag.
func (s *Service) AttachTags(uploadID string, tags []string) ([]string, error) {
	return s.tags.AttachTags(uploadID, dropBlank(tags))
}
