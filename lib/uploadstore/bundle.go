// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/codec"
)

// bundleDomainKey is the BLAKE3 key for bundle index file names: the
// ASCII domain name zero-padded to 32 bytes.
var bundleDomainKey = [32]byte{
	'a', 'p', 'p', 'd', 'i', 's', 't', '.', 'b', 'u', 'n', 'd', 'l', 'e',
}

// bundleEntry is the on-disk latest-upload record of one bundle id.
type bundleEntry struct {
	BundleID  string    `cbor:"bundle_id"`
	UploadID  string    `cbor:"upload_id"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

// bundleHash returns the hex file name stem for a bundle id.
func bundleHash(bundleID string) string {
	hasher, err := blake3.NewKeyed(bundleDomainKey[:])
	if err != nil {
		panic("uploadstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(bundleID))
	return hex.EncodeToString(hasher.Sum(nil))
}

func (s *Store) bundlePath(bundleID string) string {
	hash := bundleHash(bundleID)
	return s.path(bundlesDir, hash[:2], hash+".cbor")
}

func (s *Store) lockBundle(bundleID string) (*fileLock, error) {
	return acquireLock(s.path(locksDir, "bundle-"+bundleHash(bundleID)+".lock"), true)
}

// readBundleEntry returns the entry for bundleID, or false if none.
func (s *Store) readBundleEntry(bundleID string) (bundleEntry, bool, error) {
	data, err := os.ReadFile(s.bundlePath(bundleID))
	if errors.Is(err, fs.ErrNotExist) {
		return bundleEntry{}, false, nil
	}
	if err != nil {
		return bundleEntry{}, false, fmt.Errorf("reading bundle entry of %s: %w", bundleID, err)
	}
	var entry bundleEntry
	if err := codec.Unmarshal(data, &entry); err != nil {
		return bundleEntry{}, false, fmt.Errorf("decoding bundle entry of %s: %w", bundleID, err)
	}
	// Guard against a hash collision or a misplaced file.
	if entry.BundleID != bundleID || !buildinfo.ValidUploadID(entry.UploadID) {
		return bundleEntry{}, false, nil
	}
	return entry, true, nil
}

// setLatest points bundleID at uploadID.
func (s *Store) setLatest(bundleID, uploadID string) error {
	lock, err := s.lockBundle(bundleID)
	if err != nil {
		return err
	}
	defer lock.release()

	data, err := codec.Marshal(bundleEntry{
		BundleID:  bundleID,
		UploadID:  uploadID,
		UpdatedAt: s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("encoding bundle entry of %s: %w", bundleID, err)
	}
	return writeFileAtomic(s.path(stagingDir), s.bundlePath(bundleID), data)
}

// clearLatestIf removes bundleID's entry if it still points at
// uploadID. A newer upload of the bundle keeps its entry.
func (s *Store) clearLatestIf(bundleID, uploadID string) error {
	lock, err := s.lockBundle(bundleID)
	if err != nil {
		return err
	}
	defer lock.release()

	entry, exists, err := s.readBundleEntry(bundleID)
	if err != nil || !exists || entry.UploadID != uploadID {
		return err
	}
	if err := os.Remove(s.bundlePath(bundleID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing bundle entry of %s: %w", bundleID, err)
	}
	return nil
}

// LatestUploadForBundle returns the upload id most recently saved for
// bundleID, or false if there is none. An entry whose upload has been
// deleted counts as none and is removed; an older upload of the
// bundle is never promoted in its place.
func (s *Store) LatestUploadForBundle(bundleID string) (string, bool, error) {
	entry, exists, err := s.readBundleEntry(bundleID)
	if err != nil || !exists {
		return "", false, err
	}

	present, err := pathExists(s.metadataPath(entry.UploadID))
	if err != nil {
		return "", false, err
	}
	if present {
		return entry.UploadID, true, nil
	}

	if err := s.clearLatestIf(bundleID, entry.UploadID); err != nil {
		s.logger.Warn("clearing stale bundle entry",
			"bundle_id", bundleID,
			"upload_id", entry.UploadID,
			"error", err,
		)
	} else {
		s.logger.Info("cleared stale bundle entry", "bundle_id", bundleID, "upload_id", entry.UploadID)
	}
	return "", false, nil
}
