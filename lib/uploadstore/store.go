// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/clock"
	"github.com/significa/appdist/lib/codec"
)

var (
	// ErrNotFound is returned for an unknown upload id, bundle id, or
	// tag.
	ErrNotFound = errors.New("uploadstore: not found")

	// ErrConflict is returned when creating or renaming to a tag name
	// that already exists.
	ErrConflict = errors.New("uploadstore: conflict")

	// ErrUnknownTag is returned when an upload would reference a tag
	// missing from the global tag set.
	ErrUnknownTag = errors.New("uploadstore: unknown tag")

	// ErrInvalidTag is returned for tag names that are empty after
	// trimming, too long, or contain control characters.
	ErrInvalidTag = errors.New("uploadstore: invalid tag name")
)

const (
	uploadsDir   = "uploads"
	bundlesDir   = "bundles"
	locksDir     = "locks"
	stagingDir   = "tmp"
	tagsFile     = "tags.cbor"
	journalFile  = "rename.journal"
	metadataFile = "buildinfo.cbor"
	iconFile     = "icon.png"
	tagsLockFile = "tags.lock"

	// DefaultStagingMaxAge is how old an abandoned staging entry must
	// be before Open removes it.
	DefaultStagingMaxAge = 24 * time.Hour
)

// Options configures a Store. The zero value is usable.
type Options struct {
	// Logger receives recovery and cleanup events. Defaults to a
	// logger that discards everything.
	Logger *slog.Logger

	// Clock dates bundle index entries and ages staging leftovers.
	// Defaults to clock.Real().
	Clock clock.Clock

	// StagingMaxAge overrides DefaultStagingMaxAge.
	StagingMaxAge time.Duration
}

// Store is a filesystem-resident content store for uploads. It holds
// no in-memory state beyond its configuration, so any number of Store
// values, in any number of processes, may share one root.
type Store struct {
	root   string
	logger *slog.Logger
	clock  clock.Clock
}

// Open prepares the directory layout under root, rolls forward any
// interrupted tag rename, and removes abandoned staging entries.
func Open(root string, options Options) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	store := &Store{
		root:   root,
		logger: options.Logger,
		clock:  options.Clock,
	}
	if store.logger == nil {
		store.logger = slog.New(slog.DiscardHandler)
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}

	for _, directory := range []string{uploadsDir, bundlesDir, locksDir, stagingDir} {
		if err := os.MkdirAll(filepath.Join(root, directory), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", directory, err)
		}
	}

	lock, err := store.lockTags(true)
	if err != nil {
		return nil, err
	}
	err = store.recoverJournal()
	lock.release()
	if err != nil {
		return nil, fmt.Errorf("recovering interrupted tag rename: %w", err)
	}

	maxAge := options.StagingMaxAge
	if maxAge <= 0 {
		maxAge = DefaultStagingMaxAge
	}
	store.sweepStaging(maxAge)

	return store, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Tags returns the tag index backed by this store.
func (s *Store) Tags() *TagIndex {
	return &TagIndex{store: s}
}

// Save stores an upload: the raw artifact, its BuildInfo, and the icon
// if non-empty. The three are staged in one directory and published by
// a single rename. Saving an upload id that already exists does
// nothing and succeeds.
//
// Every tag in info.Tags must exist in the tag set at publish time,
// otherwise Save fails with ErrUnknownTag and stores nothing. After
// publishing, the bundle's latest-upload entry is pointed at
// info.UploadID. If that fails the upload is withdrawn again.
func (s *Store) Save(info buildinfo.BuildInfo, raw, icon []byte) error {
	if err := validateRecord(info); err != nil {
		return err
	}
	if info.Tags == nil {
		info.Tags = []string{}
	}

	uploadPath := s.uploadPath(info.UploadID)
	if exists, err := pathExists(uploadPath); err != nil {
		return err
	} else if exists {
		return nil
	}

	tagsLock, err := s.lockSettled()
	if err != nil {
		return err
	}
	defer tagsLock.release()

	if len(info.Tags) > 0 {
		set, err := s.readTagSet()
		if err != nil {
			return err
		}
		if missing := set.missing(info.Tags); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrUnknownTag, strings.Join(missing, ", "))
		}
	}

	metadata, err := codec.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding build info for %s: %w", info.UploadID, err)
	}

	staged, err := os.MkdirTemp(s.path(stagingDir), "upload-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	published := false
	defer func() {
		if !published {
			os.RemoveAll(staged)
		}
	}()

	files := map[string][]byte{
		info.FileName: raw,
		metadataFile:  metadata,
	}
	if len(icon) > 0 {
		files[iconFile] = icon
	}
	for name, data := range files {
		if err := writeSynced(filepath.Join(staged, name), data); err != nil {
			return fmt.Errorf("staging %s for %s: %w", name, info.UploadID, err)
		}
	}
	if err := os.Chmod(staged, 0o755); err != nil {
		return fmt.Errorf("staging %s: %w", info.UploadID, err)
	}
	if err := syncDir(staged); err != nil {
		return fmt.Errorf("staging %s: %w", info.UploadID, err)
	}

	if err := os.Rename(staged, uploadPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// A concurrent Save of identical bytes published first.
			return nil
		}
		return fmt.Errorf("publishing %s: %w", info.UploadID, err)
	}
	published = true
	if err := syncDir(s.path(uploadsDir)); err != nil {
		s.logger.Warn("flushing published upload", "upload_id", info.UploadID, "error", err)
	}

	if err := s.setLatest(info.BundleID, info.UploadID); err != nil {
		if withdrawErr := s.removeUploadDir(info.UploadID); withdrawErr != nil {
			s.logger.Error("withdrawing upload after bundle index failure",
				"upload_id", info.UploadID,
				"bundle_id", info.BundleID,
				"error", withdrawErr,
			)
		}
		return fmt.Errorf("updating latest upload of %s: %w", info.BundleID, err)
	}

	s.logger.Info("upload stored",
		"upload_id", info.UploadID,
		"bundle_id", info.BundleID,
		"platform", info.Platform,
		"tags", info.Tags,
	)
	return nil
}

func validateRecord(info buildinfo.BuildInfo) error {
	if !buildinfo.ValidUploadID(info.UploadID) {
		return fmt.Errorf("invalid upload id %q", info.UploadID)
	}
	if info.BundleID == "" {
		return fmt.Errorf("upload %s has no bundle id", info.UploadID)
	}
	if info.Platform != buildinfo.PlatformIOS && info.Platform != buildinfo.PlatformAndroid {
		return fmt.Errorf("upload %s has invalid platform %q", info.UploadID, info.Platform)
	}
	if info.FileName == "" || buildinfo.BaseName(info.FileName) != info.FileName ||
		info.FileName == metadataFile || info.FileName == iconFile {
		return fmt.Errorf("upload %s has invalid file name %q", info.UploadID, info.FileName)
	}
	return nil
}

// Load returns the stored BuildInfo of an upload. A tag rename left
// pending by a crashed writer is finished first.
func (s *Store) Load(uploadID string) (buildinfo.BuildInfo, error) {
	lock, err := s.lockSettled()
	if err != nil {
		return buildinfo.BuildInfo{}, err
	}
	defer lock.release()
	return s.load(uploadID)
}

// load reads an upload's BuildInfo. The caller holds the tags lock.
func (s *Store) load(uploadID string) (buildinfo.BuildInfo, error) {
	if !buildinfo.ValidUploadID(uploadID) {
		return buildinfo.BuildInfo{}, fmt.Errorf("%w: upload %q", ErrNotFound, uploadID)
	}
	data, err := os.ReadFile(filepath.Join(s.uploadPath(uploadID), metadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return buildinfo.BuildInfo{}, fmt.Errorf("%w: upload %s", ErrNotFound, uploadID)
	}
	if err != nil {
		return buildinfo.BuildInfo{}, fmt.Errorf("reading build info of %s: %w", uploadID, err)
	}

	var info buildinfo.BuildInfo
	if err := codec.Unmarshal(data, &info); err != nil {
		return buildinfo.BuildInfo{}, fmt.Errorf("decoding build info of %s: %w", uploadID, err)
	}
	if info.Tags == nil {
		info.Tags = []string{}
	}
	return info, nil
}

// List returns every stored upload id mapped to the sorted names of
// the files stored for it.
func (s *Store) List() (map[string][]string, error) {
	entries, err := os.ReadDir(s.path(uploadsDir))
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}

	result := make(map[string][]string, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !buildinfo.ValidUploadID(entry.Name()) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.path(uploadsDir), entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted between the two reads.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing upload %s: %w", entry.Name(), err)
		}
		names := make([]string, 0, len(files))
		for _, file := range files {
			names = append(names, file.Name())
		}
		sort.Strings(names)
		result[entry.Name()] = names
	}
	return result, nil
}

// UploadIDs returns the stored upload ids, sorted.
func (s *Store) UploadIDs() ([]string, error) {
	entries, err := os.ReadDir(s.path(uploadsDir))
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && buildinfo.ValidUploadID(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

// Delete removes an upload with all its facets. The directory is first
// renamed out of uploads/, so it disappears atomically, then removed.
// The bundle's latest-upload entry is cleared if it pointed here.
func (s *Store) Delete(uploadID string) error {
	if !buildinfo.ValidUploadID(uploadID) {
		return fmt.Errorf("%w: upload %q", ErrNotFound, uploadID)
	}

	tagsLock, err := s.lockTags(true)
	if err != nil {
		return err
	}
	defer tagsLock.release()

	if err := s.recoverJournal(); err != nil {
		return fmt.Errorf("recovering interrupted tag rename: %w", err)
	}

	info, err := s.load(uploadID)
	if err != nil {
		return err
	}
	if err := s.removeUploadDir(uploadID); err != nil {
		return err
	}

	if err := s.clearLatestIf(info.BundleID, uploadID); err != nil {
		// The entry is stale now, and LatestUploadForBundle clears
		// stale entries itself.
		s.logger.Warn("clearing bundle entry of deleted upload",
			"upload_id", uploadID,
			"bundle_id", info.BundleID,
			"error", err,
		)
	}

	s.logger.Info("upload deleted", "upload_id", uploadID, "bundle_id", info.BundleID)
	return nil
}

// removeUploadDir moves an upload directory into staging and removes
// it there.
func (s *Store) removeUploadDir(uploadID string) error {
	graveyard, err := os.MkdirTemp(s.path(stagingDir), "delete-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(graveyard)

	if err := os.Rename(s.uploadPath(uploadID), filepath.Join(graveyard, uploadID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: upload %s", ErrNotFound, uploadID)
		}
		return fmt.Errorf("removing upload %s: %w", uploadID, err)
	}
	return nil
}

// AssertedPlatform returns the platform of a stored upload.
func (s *Store) AssertedPlatform(uploadID string) (buildinfo.Platform, error) {
	info, err := s.Load(uploadID)
	if err != nil {
		return "", err
	}
	return info.Platform, nil
}

// ArtifactPath returns the path of an upload's raw artifact together
// with its BuildInfo.
func (s *Store) ArtifactPath(uploadID string) (string, buildinfo.BuildInfo, error) {
	info, err := s.Load(uploadID)
	if err != nil {
		return "", buildinfo.BuildInfo{}, err
	}
	artifactPath := filepath.Join(s.uploadPath(uploadID), info.FileName)
	if exists, err := pathExists(artifactPath); err != nil {
		return "", buildinfo.BuildInfo{}, err
	} else if !exists {
		return "", buildinfo.BuildInfo{}, fmt.Errorf("%w: artifact of upload %s", ErrNotFound, uploadID)
	}
	return artifactPath, info, nil
}

// Icon returns the stored icon bytes of an upload.
func (s *Store) Icon(uploadID string) ([]byte, error) {
	if !buildinfo.ValidUploadID(uploadID) {
		return nil, fmt.Errorf("%w: upload %q", ErrNotFound, uploadID)
	}
	data, err := os.ReadFile(filepath.Join(s.uploadPath(uploadID), iconFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: icon of upload %s", ErrNotFound, uploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading icon of %s: %w", uploadID, err)
	}
	return data, nil
}

// writeMetadata replaces the stored BuildInfo of an existing upload.
// The caller holds the tags lock exclusively.
func (s *Store) writeMetadata(info buildinfo.BuildInfo) error {
	data, err := codec.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding build info for %s: %w", info.UploadID, err)
	}
	return writeFileAtomic(s.path(stagingDir), s.metadataPath(info.UploadID), data)
}

// sweepStaging removes staging entries older than maxAge, left behind
// by processes that died mid-write. Files named in a pending journal
// are gone by now: Open rolls the journal forward first.
func (s *Store) sweepStaging(maxAge time.Duration) {
	entries, err := os.ReadDir(s.path(stagingDir))
	if err != nil {
		s.logger.Warn("listing staging directory", "error", err)
		return
	}
	cutoff := s.clock.Now().Add(-maxAge)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.path(stagingDir), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("removing abandoned staging entry", "path", path, "error", err)
			continue
		}
		s.logger.Info("removed abandoned staging entry", "path", path)
	}
}

func (s *Store) path(elements ...string) string {
	return filepath.Join(append([]string{s.root}, elements...)...)
}

func (s *Store) uploadPath(uploadID string) string {
	return s.path(uploadsDir, uploadID)
}

func (s *Store) metadataPath(uploadID string) string {
	return s.path(uploadsDir, uploadID, metadataFile)
}

func (s *Store) lockTags(exclusive bool) (*fileLock, error) {
	return acquireLock(s.path(locksDir, tagsLockFile), exclusive)
}

// lockSettled takes the tags lock shared, with no rename journal
// pending. Writers journal only under the exclusive lock, so while
// the shared lock is held the tag set and every upload's tags agree.
// A journal found here was left by a crashed or failed writer and is
// rolled forward under the exclusive lock before retrying.
func (s *Store) lockSettled() (*fileLock, error) {
	for {
		lock, err := s.lockTags(false)
		if err != nil {
			return nil, err
		}
		pending, err := pathExists(s.path(journalFile))
		if err != nil {
			lock.release()
			return nil, err
		}
		if !pending {
			return lock, nil
		}
		lock.release()

		exclusive, err := s.lockTags(true)
		if err != nil {
			return nil, err
		}
		err = s.recoverJournal()
		exclusive.release()
		if err != nil {
			return nil, fmt.Errorf("recovering interrupted tag rename: %w", err)
		}
	}
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}
