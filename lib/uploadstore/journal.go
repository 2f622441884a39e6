// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/significa/appdist/lib/codec"
)

// journalEntry pairs a staged file with the path it replaces.
type journalEntry struct {
	Staged string `cbor:"staged"`
	Final  string `cbor:"final"`
}

// journalRecord is the content of rename.journal. Paths are relative
// to the store root so a store directory can be moved while a journal
// is pending.
type journalRecord struct {
	Entries []journalEntry `cbor:"entries"`
}

// renameBatch is a set of staged replacements, committed together.
// Entries hold absolute paths.
type renameBatch struct {
	entries   []journalEntry
	committed bool
}

func (b *renameBatch) stage(stagingDir, finalPath string, data []byte) error {
	stagedPath, err := stageFile(stagingDir, "rename-*", data)
	if err != nil {
		return err
	}
	b.entries = append(b.entries, journalEntry{Staged: stagedPath, Final: finalPath})
	return nil
}

// discard removes staged files of a batch that was never journaled.
// After commitBatch starts, the journal owns them.
func (b *renameBatch) discard() {
	if b.committed {
		return
	}
	for _, entry := range b.entries {
		os.Remove(entry.Staged)
	}
}

// commitBatch journals the batch and renames every staged file into
// place in order, then removes the journal. The caller holds the tags
// lock exclusively. If a rename fails the journal stays, and the next
// recovery finishes the commit.
func (s *Store) commitBatch(batch *renameBatch) error {
	record, err := s.writeJournal(batch)
	if err != nil {
		return err
	}
	if err := s.applyJournal(record); err != nil {
		return fmt.Errorf("committing tag rename (will be finished on next recovery): %w", err)
	}
	return nil
}

// writeJournal records the batch, flushed to disk. Once it returns without
// error the rename is decided and recovery will complete it.
func (s *Store) writeJournal(batch *renameBatch) (journalRecord, error) {
	record := journalRecord{Entries: make([]journalEntry, len(batch.entries))}
	for i, entry := range batch.entries {
		staged, err := filepath.Rel(s.root, entry.Staged)
		if err != nil {
			return journalRecord{}, fmt.Errorf("journaling %s: %w", entry.Staged, err)
		}
		final, err := filepath.Rel(s.root, entry.Final)
		if err != nil {
			return journalRecord{}, fmt.Errorf("journaling %s: %w", entry.Final, err)
		}
		record.Entries[i] = journalEntry{Staged: staged, Final: final}
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return journalRecord{}, fmt.Errorf("encoding rename journal: %w", err)
	}
	if err := writeFileAtomic(s.path(stagingDir), s.path(journalFile), data); err != nil {
		return journalRecord{}, fmt.Errorf("writing rename journal: %w", err)
	}
	batch.committed = true
	return record, nil
}

// recoverJournal rolls a pending rename journal forward. The caller
// holds the tags lock exclusively.
func (s *Store) recoverJournal() error {
	data, err := os.ReadFile(s.path(journalFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading rename journal: %w", err)
	}
	var record journalRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decoding rename journal: %w", err)
	}

	s.logger.Warn("rolling forward interrupted tag rename", "files", len(record.Entries))
	return s.applyJournal(record)
}

// applyJournal renames each staged file that still exists onto its
// final path, then removes the journal. Staged files already gone
// were committed before an interruption. A final path whose directory
// no longer exists is skipped. The journal goes only after the renames
// are flushed.
func (s *Store) applyJournal(record journalRecord) error {
	touched := make(map[string]struct{})
	for _, entry := range record.Entries {
		staged := s.path(entry.Staged)
		final := s.path(entry.Final)

		err := os.Rename(staged, final)
		if err == nil {
			touched[filepath.Dir(final)] = struct{}{}
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(staged); errors.Is(statErr, fs.ErrNotExist) {
				continue
			}
			// The staged file exists, so the destination directory
			// is what is missing.
			os.Remove(staged)
			continue
		}
		return fmt.Errorf("renaming %s to %s: %w", entry.Staged, entry.Final, err)
	}
	for directory := range touched {
		if err := syncDir(directory); err != nil {
			return err
		}
	}

	if err := os.Remove(s.path(journalFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing rename journal: %w", err)
	}
	return syncDir(s.root)
}
