// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/significa/appdist/lib/archive"
	"github.com/significa/appdist/lib/plist"
)

// IOSExtractor reads metadata from an .ipa.
type IOSExtractor struct{}

// Platform returns PlatformIOS.
func (IOSExtractor) Platform() Platform { return PlatformIOS }

// Extract locates the single Payload/<name>.app directory, decodes its
// Info.plist, and reads the identity fields and icon.
func (IOSExtractor) Extract(container *archive.Container) (Metadata, error) {
	appDirectory, err := findAppDirectory(container)
	if err != nil {
		return Metadata{}, err
	}

	infoPath := appDirectory + "Info.plist"
	data, err := container.Read(infoPath)
	if errors.Is(err, archive.ErrEntryNotFound) {
		return Metadata{}, fmt.Errorf("%w: %s not present", ErrMissingIdentityFields, infoPath)
	}
	if err != nil {
		return Metadata{}, err
	}

	info, err := plist.Decode(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("decoding %s: %w", infoPath, err)
	}
	if info.Kind != plist.KindDict {
		return Metadata{}, fmt.Errorf("decoding %s: %w: root is %s, want dict", infoPath, plist.ErrMalformed, info.Kind)
	}

	bundleID := trimmedString(info, "CFBundleIdentifier")
	version := trimmedString(info, "CFBundleShortVersionString")
	var missing []string
	if bundleID == "" {
		missing = append(missing, "CFBundleIdentifier")
	}
	if version == "" {
		missing = append(missing, "CFBundleShortVersionString")
	}
	if len(missing) > 0 {
		return Metadata{}, fmt.Errorf("%w: %s lacks %s", ErrMissingIdentityFields, infoPath, strings.Join(missing, ", "))
	}

	appName := trimmedString(info, "CFBundleDisplayName")
	if appName == "" {
		appName = trimmedString(info, "CFBundleName")
	}

	metadata := Metadata{
		Platform:      PlatformIOS,
		BundleID:      bundleID,
		BundleVersion: version,
		BuildNumber:   trimmedString(info, "CFBundleVersion"),
		AppName:       appName,
		Executable:    trimmedString(info, "CFBundleExecutable"),
	}

	if iconPath := findIOSIcon(container, appDirectory, info); iconPath != "" {
		icon, err := container.Read(iconPath)
		if err != nil {
			return Metadata{}, fmt.Errorf("reading icon %s: %w", iconPath, err)
		}
		metadata.Icon = icon
	}
	return metadata, nil
}

func trimmedString(info plist.Value, key string) string {
	value, _ := info.StringAt(key)
	return strings.TrimSpace(value)
}

// findAppDirectory returns "Payload/<name>.app/" for the one
// application bundle in the archive. Zip tools do not always emit
// directory entries, so the directory is inferred from entry paths.
func findAppDirectory(container *archive.Container) (string, error) {
	found := make(map[string]struct{})
	for _, name := range container.List() {
		parts := strings.SplitN(name, "/", 3)
		if len(parts) < 3 || parts[0] != "Payload" || !strings.HasSuffix(parts[1], ".app") {
			continue
		}
		found[parts[1]] = struct{}{}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no Payload/*.app directory", ErrMissingIdentityFields)
	case 1:
		for name := range found {
			return "Payload/" + name + "/", nil
		}
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return "", fmt.Errorf("%w: %d application bundles in Payload/ (%s)",
		archive.ErrMalformedArchive, len(names), strings.Join(names, ", "))
}

// iosIconNames collects the icon base names the bundle declares, most
// specific first.
func iosIconNames(info plist.Value) []string {
	var names []string
	for _, iconsKey := range []string{"CFBundleIcons", "CFBundleIcons~ipad"} {
		if files, ok := info.Lookup(iconsKey, "CFBundlePrimaryIcon", "CFBundleIconFiles"); ok {
			names = append(names, files.Strings()...)
		}
		if name, ok := info.StringAt(iconsKey, "CFBundlePrimaryIcon", "CFBundleIconName"); ok {
			names = append(names, name)
		}
	}
	if files, ok := info.Lookup("CFBundleIconFiles"); ok {
		names = append(names, files.Strings()...)
	}
	if name, ok := info.StringAt("CFBundleIconFile"); ok {
		names = append(names, name)
	}

	result := names[:0]
	for _, name := range names {
		name = strings.TrimSuffix(strings.TrimSpace(name), ".png")
		if name != "" {
			result = append(result, name)
		}
	}
	return result
}

// findIOSIcon picks the icon to store. Files at the top of the app
// directory whose names start with a declared icon name are preferred;
// without a match, AppIcon*.png and Icon*.png are tried. Among matches
// the largest file wins, since icon variants differ by resolution.
// Returns "" when nothing matches.
func findIOSIcon(container *archive.Container, appDirectory string, info plist.Value) string {
	var pngs []string
	for _, name := range container.List() {
		rest, ok := strings.CutPrefix(name, appDirectory)
		if !ok || strings.Contains(rest, "/") || !strings.HasSuffix(strings.ToLower(rest), ".png") {
			continue
		}
		pngs = append(pngs, name)
	}

	declared := iosIconNames(info)
	byDeclaredName := func(base string) bool {
		for _, name := range declared {
			if strings.HasPrefix(base, name) {
				return true
			}
		}
		return false
	}
	byConvention := func(base string) bool {
		lower := strings.ToLower(base)
		return strings.HasPrefix(lower, "appicon") || strings.HasPrefix(lower, "icon")
	}

	for _, matches := range []func(string) bool{byDeclaredName, byConvention} {
		if best := largestMatching(container, pngs, appDirectory, matches); best != "" {
			return best
		}
	}
	return ""
}

func largestMatching(container *archive.Container, candidates []string, prefix string, matches func(string) bool) string {
	var best string
	var bestSize uint64
	for _, candidate := range candidates {
		if !matches(strings.TrimPrefix(candidate, prefix)) {
			continue
		}
		size, err := container.Size(candidate)
		if err != nil || size == 0 {
			continue
		}
		if best == "" || size > bestSize {
			best, bestSize = candidate, size
		}
	}
	return best
}
