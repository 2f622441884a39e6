// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"fmt"

	"github.com/significa/appdist/lib/archive"
)

// Extractor reads identity metadata out of an opened build archive.
// Implementations hold no state and are safe for concurrent use.
type Extractor interface {
	Platform() Platform
	Extract(container *archive.Container) (Metadata, error)
}

// ExtractorFor returns the extractor selected by fileName's extension.
func ExtractorFor(fileName string) (Extractor, error) {
	platform, err := PlatformForFilename(fileName)
	if err != nil {
		return nil, err
	}
	return ExtractorForPlatform(platform), nil
}

// ExtractorForPlatform returns the extractor for platform, or nil for
// an unknown platform.
func ExtractorForPlatform(platform Platform) Extractor {
	switch platform {
	case PlatformIOS:
		return IOSExtractor{}
	case PlatformAndroid:
		return AndroidExtractor{}
	default:
		return nil
	}
}

// Extract selects the extractor by fileName, opens raw as an archive,
// and extracts its metadata. The extension is checked before any
// parsing.
func Extract(raw []byte, fileName string) (Metadata, error) {
	extractor, err := ExtractorFor(fileName)
	if err != nil {
		return Metadata{}, err
	}
	container, err := archive.Open(raw)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening %s: %w", fileName, err)
	}
	metadata, err := extractor.Extract(container)
	if err != nil {
		return Metadata{}, fmt.Errorf("extracting %s metadata from %s: %w", extractor.Platform(), fileName, err)
	}
	return metadata, nil
}
