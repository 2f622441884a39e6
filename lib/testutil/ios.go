// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"howett.net/plist"
)

// PlistFormat selects the Info.plist encoding of an IPA fixture.
type PlistFormat int

const (
	PlistBinary PlistFormat = iota
	PlistXML
)

// IPAOptions describes an iOS archive fixture.
type IPAOptions struct {
	// AppName is the bundle directory name without ".app". Defaults
	// to "Example".
	AppName string

	// Info is the Info.plist content.
	Info map[string]any

	// Format selects binary or XML plist encoding.
	Format PlistFormat

	// Files are extra entries relative to the .app directory, such as
	// icons.
	Files map[string][]byte
}

// IOSInfo returns a minimal Info.plist dictionary for bundleID and
// version.
func IOSInfo(bundleID, version string) map[string]any {
	return map[string]any{
		"CFBundleIdentifier":         bundleID,
		"CFBundleShortVersionString": version,
		"CFBundleVersion":            "1",
		"CFBundleName":               "Example",
		"CFBundleExecutable":         "Example",
	}
}

// InfoPlist encodes info as a property list in the given format.
func InfoPlist(t testing.TB, info map[string]any, format PlistFormat) []byte {
	t.Helper()
	encoding := plist.BinaryFormat
	if format == PlistXML {
		encoding = plist.XMLFormat
	}
	data, err := plist.Marshal(info, encoding)
	if err != nil {
		t.Fatalf("encoding Info.plist: %v", err)
	}
	return data
}

// IPA builds an .ipa archive: Payload/<AppName>.app/ holding
// Info.plist and the extra files.
func IPA(t testing.TB, options IPAOptions) []byte {
	t.Helper()
	appName := options.AppName
	if appName == "" {
		appName = "Example"
	}
	appDirectory := "Payload/" + appName + ".app/"

	entries := map[string][]byte{
		"Payload/":                  nil,
		appDirectory:                nil,
		appDirectory + "Info.plist": InfoPlist(t, options.Info, options.Format),
	}
	for name, data := range options.Files {
		entries[appDirectory+name] = data
	}
	return Zip(t, entries)
}
