// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package distribution is the boundary the HTTP server and the admin
// CLI call into. A Service ties metadata extraction, the upload store,
// the tag index, and manifest generation together into the operations
// clients see: ingest a build, look builds up, manage tags, and render
// install descriptors.
//
// A Service holds no state of its own beyond the injected store handle.
// Every operation is safe to call concurrently, and from several
// processes sharing one store directory.
package distribution

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/clock"
	"github.com/significa/appdist/lib/manifest"
	"github.com/significa/appdist/lib/uploadstore"
)

// ErrInvalidBundleID is returned for bundle ids that could never have
// been stored.
var ErrInvalidBundleID = errors.New("distribution: invalid bundle id")

var bundleIDPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{1,256}$`)

// Options configures a Service. The zero value is usable.
type Options struct {
	// Logger receives one event per mutation. Defaults to a logger
	// that discards everything.
	Logger *slog.Logger

	// Clock stamps created_at on ingested builds. Defaults to
	// clock.Real().
	Clock clock.Clock
}

// Service implements the distribution operations over one store.
type Service struct {
	store  *uploadstore.Store
	tags   *uploadstore.TagIndex
	logger *slog.Logger
	clock  clock.Clock
}

// New returns a Service backed by store.
func New(store *uploadstore.Store, options Options) *Service {
	service := &Service{
		store:  store,
		tags:   store.Tags(),
		logger: options.Logger,
		clock:  options.Clock,
	}
	if service.logger == nil {
		service.logger = slog.New(slog.DiscardHandler)
	}
	if service.clock == nil {
		service.clock = clock.Real()
	}
	return service
}

// Ingest extracts the metadata of an uploaded build and stores it with
// the requested tags.
//
// The file name's extension selects the platform and is checked before
// anything else, so an unsupported file fails with
// buildinfo.ErrInvalidFileType without being parsed. Requested tags
// are trimmed, blank ones dropped, and every remaining one must exist
// (uploadstore.ErrUnknownTag otherwise); that check also runs before
// parsing. Ingestion is all-or-nothing: on any failure nothing is
// stored.
//
// Identical bytes always produce the same upload id. Ingesting bytes
// that are already stored returns the stored record with the requested
// tags attached.
func (s *Service) Ingest(raw []byte, fileName string, requestedTags []string) (buildinfo.BuildInfo, error) {
	if _, err := buildinfo.PlatformForFilename(fileName); err != nil {
		return buildinfo.BuildInfo{}, err
	}

	tags, err := uploadstore.NormalizeTags(dropBlank(requestedTags))
	if err != nil {
		return buildinfo.BuildInfo{}, err
	}
	if len(tags) > 0 {
		missing, err := s.tags.MissingTags(tags)
		if err != nil {
			return buildinfo.BuildInfo{}, err
		}
		if len(missing) > 0 {
			return buildinfo.BuildInfo{}, fmt.Errorf("%w: %s", uploadstore.ErrUnknownTag, strings.Join(missing, ", "))
		}
	}

	metadata, err := buildinfo.Extract(raw, fileName)
	if err != nil {
		return buildinfo.BuildInfo{}, err
	}

	info := buildinfo.New(metadata, raw, fileName, tags, s.clock.Now())
	if info.FileName == "" {
		info.FileName = "app" + metadata.Platform.Extension()
	}

	existing, err := s.store.Load(info.UploadID)
	if err == nil {
		s.logger.Info("build already stored",
			"upload_id", existing.UploadID,
			"bundle_id", existing.BundleID,
		)
		return s.attachRequested(existing, tags)
	}
	if !errors.Is(err, uploadstore.ErrNotFound) {
		return buildinfo.BuildInfo{}, err
	}

	if err := s.store.Save(info, raw, metadata.Icon); err != nil {
		return buildinfo.BuildInfo{}, fmt.Errorf("storing %s: %w", info.FileName, err)
	}

	// A concurrent ingest of the same bytes may have won the publish;
	// what is on disk is the answer.
	stored, err := s.store.Load(info.UploadID)
	if err != nil {
		return buildinfo.BuildInfo{}, fmt.Errorf("reloading %s: %w", info.UploadID, err)
	}
	if stored, err = s.attachRequested(stored, tags); err != nil {
		return buildinfo.BuildInfo{}, err
	}

	s.logger.Info("build ingested",
		"upload_id", stored.UploadID,
		"platform", stored.Platform,
		"bundle_id", stored.BundleID,
		"bundle_version", stored.BundleVersion,
		"file_size", stored.FileSize,
		"tags", stored.Tags,
	)
	return stored, nil
}

// attachRequested adds tags an ingest asked for to a record stored
// without them.
func (s *Service) attachRequested(info buildinfo.BuildInfo, tags []string) (buildinfo.BuildInfo, error) {
	if len(tags) == 0 {
		return info, nil
	}
	attached, err := s.tags.AttachTags(info.UploadID, tags)
	if err != nil {
		return buildinfo.BuildInfo{}, fmt.Errorf("tagging %s: %w", info.UploadID, err)
	}
	info.Tags = attached
	return info, nil
}

// Get returns the record of one upload.
func (s *Service) Get(uploadID string) (buildinfo.BuildInfo, error) {
	return s.store.Load(uploadID)
}

// GetLatest returns the most recently ingested upload of a bundle. A
// bundle whose latest upload was deleted has no latest upload; older
// uploads are not promoted.
func (s *Service) GetLatest(bundleID string) (buildinfo.BuildInfo, error) {
	if !ValidBundleID(bundleID) {
		return buildinfo.BuildInfo{}, fmt.Errorf("%w: %q", ErrInvalidBundleID, bundleID)
	}
	uploadID, found, err := s.store.LatestUploadForBundle(bundleID)
	if err != nil {
		return buildinfo.BuildInfo{}, err
	}
	if !found {
		return buildinfo.BuildInfo{}, fmt.Errorf("%w: no uploads for bundle %s", uploadstore.ErrNotFound, bundleID)
	}
	return s.store.Load(uploadID)
}

// ValidBundleID reports whether id has the shape of a bundle id or
// Android package name.
func ValidBundleID(id string) bool {
	return bundleIDPattern.MatchString(id)
}

// Delete removes an upload.
func (s *Service) Delete(uploadID string) error {
	info, err := s.store.Load(uploadID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(uploadID); err != nil {
		return err
	}
	s.logger.Info("upload deleted",
		"upload_id", uploadID,
		"bundle_id", info.BundleID,
	)
	return nil
}

// ArtifactPath returns the path of the stored artifact and its record,
// for streaming downloads.
func (s *Service) ArtifactPath(uploadID string) (string, buildinfo.BuildInfo, error) {
	return s.store.ArtifactPath(uploadID)
}

// Icon returns the stored launcher icon of an upload.
func (s *Service) Icon(uploadID string) ([]byte, error) {
	return s.store.Icon(uploadID)
}

// RenderManifest produces the iOS install descriptor for an upload
// downloadable at downloadURL.
func (s *Service) RenderManifest(uploadID, downloadURL string, options manifest.Options) ([]byte, error) {
	info, err := s.store.Load(uploadID)
	if err != nil {
		return nil, err
	}
	return manifest.Generate(info, downloadURL, options)
}

// dropBlank removes names that are empty after trimming.
func dropBlank(names []string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) != "" {
			result = append(result, name)
		}
	}
	return result
}

// sortNewestFirst orders entries by creation time, newest first, with
// the upload id breaking ties so the order is stable.
func sortNewestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].BuildInfo, entries[j].BuildInfo
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.UploadID < b.UploadID
	})
}
