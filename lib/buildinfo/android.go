// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/significa/appdist/lib/archive"
	"github.com/significa/appdist/lib/axml"
)

const androidManifestPath = "AndroidManifest.xml"

// iconDensities lists Android density qualifiers from densest to
// sparsest.
var iconDensities = []string{"xxxhdpi", "xxhdpi", "xhdpi", "hdpi", "mdpi", "ldpi"}

// AndroidExtractor reads metadata from an .apk.
type AndroidExtractor struct{}

// Platform returns PlatformAndroid.
func (AndroidExtractor) Platform() Platform { return PlatformAndroid }

// Extract decodes AndroidManifest.xml and reads the package id and
// versions from <manifest>, and the label and icon from
// <application>.
func (AndroidExtractor) Extract(container *archive.Container) (Metadata, error) {
	data, err := container.Read(androidManifestPath)
	if errors.Is(err, archive.ErrEntryNotFound) {
		return Metadata{}, fmt.Errorf("%w: %s not present", ErrMissingIdentityFields, androidManifestPath)
	}
	if err != nil {
		return Metadata{}, err
	}

	document, err := axml.Decode(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("decoding %s: %w", androidManifestPath, err)
	}
	root := document.Root()
	if root == nil || root.Name != "manifest" {
		return Metadata{}, fmt.Errorf("decoding %s: %w: root element is not <manifest>", androidManifestPath, axml.ErrMalformed)
	}

	packageID := attributeValue(root, "package", 0)
	versionName := attributeValue(root, "versionName", axml.AttrVersionName)
	var missing []string
	if packageID == "" {
		missing = append(missing, "package")
	}
	if versionName == "" {
		missing = append(missing, "versionName")
	}
	if len(missing) > 0 {
		return Metadata{}, fmt.Errorf("%w: %s lacks %s", ErrMissingIdentityFields, androidManifestPath, strings.Join(missing, ", "))
	}

	metadata := Metadata{
		Platform:      PlatformAndroid,
		BundleID:      packageID,
		BundleVersion: versionName,
		BuildNumber:   attributeValue(root, "versionCode", axml.AttrVersionCode),
	}

	var iconAttribute axml.Attribute
	var hasIcon bool
	if application := document.Find("application", 1); application != nil {
		metadata.AppName = labelValue(application)
		iconAttribute, hasIcon = application.Attr("icon", axml.AttrIcon)
	}

	if iconPath := findAndroidIcon(container, iconAttribute, hasIcon); iconPath != "" {
		icon, err := container.Read(iconPath)
		if err != nil {
			return Metadata{}, fmt.Errorf("reading icon %s: %w", iconPath, err)
		}
		metadata.Icon = icon
	}
	return metadata, nil
}

func attributeValue(element *axml.Element, name string, resourceID uint32) string {
	attribute, ok := element.Attr(name, resourceID)
	if !ok {
		return ""
	}
	return strings.TrimSpace(attribute.Value())
}

// labelValue resolves android:label. Literal labels come from the
// string pool. Labels compiled to a resource reference cannot be
// resolved without the resource table, so the raw value is kept,
// or the "@0x..." rendering of the reference when there is none.
func labelValue(application *axml.Element) string {
	label, ok := application.Attr("label", axml.AttrLabel)
	if !ok {
		return ""
	}
	if label.Type == axml.TypeString {
		return strings.TrimSpace(label.Resolved)
	}
	if label.HasRaw && label.Raw != "" {
		return label.Raw
	}
	return label.Value()
}

// findAndroidIcon returns the archive path of the launcher icon. An
// android:icon attribute that names a PNG in the archive wins. Otherwise
// the densest ic_launcher.png under res/mipmap-* or res/drawable-* is
// used, preferring mipmap at equal density. Returns "" when neither
// exists.
func findAndroidIcon(container *archive.Container, icon axml.Attribute, hasIcon bool) string {
	if hasIcon && icon.Type == axml.TypeString {
		path := strings.TrimPrefix(icon.Resolved, "/")
		if strings.HasSuffix(strings.ToLower(path), ".png") && container.Has(path) {
			return path
		}
	}

	var best string
	bestRank := -1
	for _, name := range container.List() {
		parts := strings.Split(name, "/")
		if len(parts) != 3 || parts[0] != "res" || parts[2] != "ic_launcher.png" {
			continue
		}
		directory := parts[1]
		var rank int
		switch {
		case strings.HasPrefix(directory, "mipmap"):
			rank = 1
		case strings.HasPrefix(directory, "drawable"):
			rank = 0
		default:
			continue
		}
		rank += 2 * densityRank(directory)
		if rank > bestRank || (rank == bestRank && name < best) {
			best, bestRank = name, rank
		}
	}
	return best
}

// densityRank scores a resource directory's density qualifier, higher
// for denser. Directories without one score 0.
func densityRank(directory string) int {
	for _, qualifier := range strings.Split(directory, "-")[1:] {
		for i, density := range iconDensities {
			if qualifier == density {
				return len(iconDensities) - i
			}
		}
	}
	return 0
}
