// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"errors"

	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/uploadstore"
)

// Entry is one row of a listing.
type Entry struct {
	UploadID  string              `json:"upload_id"`
	FileName  string              `json:"file_name"`
	BuildInfo buildinfo.BuildInfo `json:"build_info"`
	Tags      []string            `json:"tags"`
}

// Filter narrows a listing. Zero fields do not filter.
type Filter struct {
	// Platform keeps only uploads of this platform.
	Platform buildinfo.Platform

	// Tags keeps only uploads carrying every one of these tags.
	Tags []string
}

// List returns the stored uploads matching filter, newest first.
// Uploads whose record cannot be read are logged and skipped rather
// than failing the whole listing.
func (s *Service) List(filter Filter) ([]Entry, error) {
	wanted, err := uploadstore.NormalizeTags(dropBlank(filter.Tags))
	if err != nil {
		return nil, err
	}

	ids, err := s.store.UploadIDs()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ids))
	for _, uploadID := range ids {
		info, err := s.store.Load(uploadID)
		if errors.Is(err, uploadstore.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("skipping unreadable upload", "upload_id", uploadID, "error", err)
			continue
		}
		if filter.Platform != "" && info.Platform != filter.Platform {
			continue
		}
		if !hasAll(info.Tags, wanted) {
			continue
		}
		entries = append(entries, Entry{
			UploadID:  info.UploadID,
			FileName:  info.FileName,
			BuildInfo: info,
			Tags:      info.Tags,
		})
	}
	sortNewestFirst(entries)
	return entries, nil
}

func hasAll(tags, wanted []string) bool {
	for _, name := range wanted {
		found := false
		for _, tag := range tags {
			if tag == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
