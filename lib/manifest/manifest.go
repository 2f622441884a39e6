// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest renders the over-the-air install descriptor that iOS
// fetches through an itms-services link. The descriptor is an XML
// property list with one item: the software-package asset pointing at
// the artifact download, and the metadata iOS shows in the install
// prompt.
//
// iOS rejects a descriptor with missing keys without telling the user
// why, so Generate refuses to produce one rather than omit a field.
package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"howett.net/plist"

	"github.com/significa/appdist/lib/buildinfo"
)

// ErrIncompleteMetadata is returned when a field iOS requires in the
// descriptor is empty.
var ErrIncompleteMetadata = errors.New("manifest: incomplete metadata")

// Asset kinds and the item kind iOS recognizes.
const (
	kindSoftwarePackage = "software-package"
	kindDisplayImage    = "display-image"
	kindFullSizeImage   = "full-size-image"
	kindSoftware        = "software"
)

// Options adds optional parts to the descriptor.
type Options struct {
	// DisplayImageURL is a 57x57 PNG shown while the app downloads.
	// Omitted when empty.
	DisplayImageURL string

	// FullSizeImageURL is a 512x512 PNG shown in the install prompt.
	// Omitted when empty.
	FullSizeImageURL string

	// Subtitle is shown under the title. Omitted when empty.
	Subtitle string
}

type document struct {
	Items []item `plist:"items"`
}

type item struct {
	Assets   []asset  `plist:"assets"`
	Metadata metadata `plist:"metadata"`
}

type asset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type metadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Subtitle         string `plist:"subtitle,omitempty"`
	Title            string `plist:"title"`
}

// Generate renders the install descriptor for an iOS build downloadable
// at downloadURL, which must be an absolute http or https URL. It fails
// with buildinfo.ErrWrongPlatform for non-iOS builds and with
// ErrIncompleteMetadata when the bundle id, version, or download URL is
// empty.
func Generate(info buildinfo.BuildInfo, downloadURL string, options Options) ([]byte, error) {
	if info.Platform != buildinfo.PlatformIOS {
		return nil, fmt.Errorf("%w: install descriptors are only produced for iOS builds, upload %s is %s",
			buildinfo.ErrWrongPlatform, info.UploadID, info.Platform)
	}

	bundleID := strings.TrimSpace(info.BundleID)
	version := strings.TrimSpace(info.BundleVersion)
	var missing []string
	if bundleID == "" {
		missing = append(missing, "bundle-identifier")
	}
	if version == "" {
		missing = append(missing, "bundle-version")
	}
	if strings.TrimSpace(downloadURL) == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrIncompleteMetadata, strings.Join(missing, ", "))
	}

	assets := []asset{{Kind: kindSoftwarePackage, URL: downloadURL}}
	if options.DisplayImageURL != "" {
		assets = append(assets, asset{Kind: kindDisplayImage, URL: options.DisplayImageURL})
	}
	if options.FullSizeImageURL != "" {
		assets = append(assets, asset{Kind: kindFullSizeImage, URL: options.FullSizeImageURL})
	}
	for _, entry := range assets {
		if err := checkURL(entry.URL); err != nil {
			return nil, fmt.Errorf("%s asset: %w", entry.Kind, err)
		}
	}

	title := strings.TrimSpace(info.Title())
	if title == "" {
		title = bundleID
	}

	descriptor := document{Items: []item{{
		Assets: assets,
		Metadata: metadata{
			BundleIdentifier: bundleID,
			BundleVersion:    version,
			Kind:             kindSoftware,
			Subtitle:         options.Subtitle,
			Title:            title,
		},
	}}}

	data, err := plist.MarshalIndent(descriptor, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("encoding install descriptor: %w", err)
	}
	return data, nil
}

// checkURL requires an absolute http or https URL; iOS fetches assets
// over the network and ignores anything else.
func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url %q is not http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
