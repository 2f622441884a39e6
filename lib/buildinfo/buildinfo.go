// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	// ErrInvalidFileType is returned when the upload's file name has
	// neither an .ipa nor an .apk extension.
	ErrInvalidFileType = errors.New("buildinfo: invalid file type")

	// ErrMissingIdentityFields is returned when the archive lacks the
	// metadata file or the metadata lacks the bundle id or version.
	ErrMissingIdentityFields = errors.New("buildinfo: missing identity fields")

	// ErrWrongPlatform is returned when an operation needs a build of
	// one platform and was given the other.
	ErrWrongPlatform = errors.New("buildinfo: wrong platform")
)

// Platform identifies the mobile operating system a build targets.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform parses a platform name case-insensitively.
func ParsePlatform(name string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(name))) {
	case PlatformIOS:
		return PlatformIOS, nil
	case PlatformAndroid:
		return PlatformAndroid, nil
	default:
		return "", fmt.Errorf("unknown platform %q (want ios or android)", name)
	}
}

// Extension returns the artifact file extension including the dot.
func (p Platform) Extension() string {
	switch p {
	case PlatformIOS:
		return ".ipa"
	case PlatformAndroid:
		return ".apk"
	default:
		return ""
	}
}

// PlatformForFilename selects the platform from a file name extension,
// case-insensitively. Only the final path element is considered.
func PlatformForFilename(fileName string) (Platform, error) {
	extension := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(fileName, "\\", "/"))))
	switch extension {
	case ".ipa":
		return PlatformIOS, nil
	case ".apk":
		return PlatformAndroid, nil
	default:
		return "", fmt.Errorf("%w: %q (want .ipa or .apk)", ErrInvalidFileType, fileName)
	}
}

// Metadata is what an extractor reads out of an archive.
type Metadata struct {
	Platform      Platform
	BundleID      string
	BundleVersion string

	// BuildNumber is CFBundleVersion on iOS and versionCode on
	// Android. Either may be empty.
	BuildNumber string

	// AppName is the display name, possibly empty. On Android it is
	// the raw resource reference ("@0x7f0c0001") when the label lives
	// in the resource table.
	AppName string

	// Executable is CFBundleExecutable. Empty on Android.
	Executable string

	// Icon holds the launcher icon bytes, or nil.
	Icon []byte
}

// BuildInfo is the canonical record of one stored upload.
type BuildInfo struct {
	UploadID      string    `json:"upload_id"`
	Platform      Platform  `json:"platform"`
	BundleID      string    `json:"bundle_id"`
	BundleVersion string    `json:"bundle_version"`
	BuildNumber   string    `json:"build_number,omitempty"`
	AppName       string    `json:"app_name"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	HasIcon       bool      `json:"has_icon"`
	CreatedAt     time.Time `json:"created_at"`
	Tags          []string  `json:"tags"`
}

// Title is the display name used for install prompts: the app name, or
// the bundle id when the build has none.
func (b BuildInfo) Title() string {
	if b.AppName != "" {
		return b.AppName
	}
	return b.BundleID
}

// New assembles the record for a build about to be stored. fileName is
// reduced to its final path element. tags must already be validated
// against the global tag set; they are copied.
func New(metadata Metadata, raw []byte, fileName string, tags []string, createdAt time.Time) BuildInfo {
	tagsCopy := make([]string, len(tags))
	copy(tagsCopy, tags)

	return BuildInfo{
		UploadID:      UploadID(raw),
		Platform:      metadata.Platform,
		BundleID:      metadata.BundleID,
		BundleVersion: metadata.BundleVersion,
		BuildNumber:   metadata.BuildNumber,
		AppName:       metadata.AppName,
		FileName:      BaseName(fileName),
		FileSize:      int64(len(raw)),
		HasIcon:       len(metadata.Icon) > 0,
		CreatedAt:     createdAt.UTC(),
		Tags:          tagsCopy,
	}
}

// BaseName strips any directory part from an uploaded file name, so a
// client-supplied "../../x.ipa" is stored as "x.ipa".
func BaseName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
