// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package distribution

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/significa/appdist/lib/archive"
	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/clock"
	"github.com/significa/appdist/lib/manifest"
	"github.com/significa/appdist/lib/plist"
	"github.com/significa/appdist/lib/testutil"
	"github.com/significa/appdist/lib/uploadstore"
)

var testEpoch = time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	service *Service
	clock   *clock.FakeClock
	root    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	fake := clock.Fake(testEpoch)
	store, err := uploadstore.Open(root, uploadstore.Options{Clock: fake})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	return &fixture{
		service: New(store, Options{Clock: fake}),
		clock:   fake,
		root:    root,
	}
}

func (f *fixture) createTags(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := f.service.CreateTag(name); err != nil {
			t.Fatalf("CreateTag(%q): %v", name, err)
		}
	}
}

// uploadDirectories returns the names under uploads/, to check that
// failed ingests leave nothing behind.
func (f *fixture) uploadDirectories(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.root, "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func iosBuild(t *testing.T, bundleID, version string) []byte {
	t.Helper()
	return testutil.IPA(t, testutil.IPAOptions{Info: testutil.IOSInfo(bundleID, version)})
}

func androidBuild(t *testing.T, packageName, versionName string) []byte {
	t.Helper()
	manifestXML := testutil.BinaryXML(t, testutil.Manifest(testutil.ManifestOptions{
		Package:     packageName,
		VersionName: versionName,
		VersionCode: 42,
		Label:       "Test App",
	}), false)
	return testutil.APK(t, manifestXML, nil)
}

func TestIngestIOS(t *testing.T) {
	f := newFixture(t)
	raw := iosBuild(t, "com.example.app", "1.2.3")

	info, err := f.service.Ingest(raw, "Example.ipa", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if info.Platform != buildinfo.PlatformIOS {
		t.Errorf("platform = %q, want ios", info.Platform)
	}
	if info.BundleID != "com.example.app" || info.BundleVersion != "1.2.3" {
		t.Errorf("identity = %s %s, want com.example.app 1.2.3", info.BundleID, info.BundleVersion)
	}
	if info.BuildNumber != "1" {
		t.Errorf("build number = %q, want 1", info.BuildNumber)
	}
	if info.UploadID != buildinfo.UploadID(raw) {
		t.Errorf("upload id = %s, want the content hash", info.UploadID)
	}
	if !info.CreatedAt.Equal(testEpoch) {
		t.Errorf("created_at = %v, want %v", info.CreatedAt, testEpoch)
	}
	if info.FileName != "Example.ipa" || info.FileSize != int64(len(raw)) {
		t.Errorf("file = %s (%d bytes), want Example.ipa (%d bytes)", info.FileName, info.FileSize, len(raw))
	}
}

func TestIngestAndroid(t *testing.T) {
	f := newFixture(t)

	info, err := f.service.Ingest(androidBuild(t, "com.test.app", "2.0"), "release.apk", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if info.Platform != buildinfo.PlatformAndroid {
		t.Errorf("platform = %q, want android", info.Platform)
	}
	if info.BundleID != "com.test.app" || info.BundleVersion != "2.0" {
		t.Errorf("identity = %s %s, want com.test.app 2.0", info.BundleID, info.BundleVersion)
	}
	if info.BuildNumber != "42" || info.AppName != "Test App" {
		t.Errorf("build number %q, app name %q", info.BuildNumber, info.AppName)
	}
}

func TestIngestWithTags(t *testing.T) {
	f := newFixture(t)
	f.createTags(t, "beta")

	info, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", []string{"beta", " ", "beta "})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	tags, err := f.service.TagsOf(info.UploadID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"beta"}) {
		t.Errorf("TagsOf = %v, want [beta]", tags)
	}
}

func TestIngestUnknownTagChecksBeforeParsing(t *testing.T) {
	f := newFixture(t)

	// Not an archive at all: the tag check must fail first.
	_, err := f.service.Ingest([]byte("not a zip"), "app.ipa", []string{"ghost"})
	if !errors.Is(err, uploadstore.ErrUnknownTag) {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
	_, err = f.service.Ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", []string{"ghost"})
	if !errors.Is(err, uploadstore.ErrUnknownTag) {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
	if exists, _ := f.service.TagExists("ghost"); exists {
		t.Error("ingest created the unknown tag")
	}
	if names := f.uploadDirectories(t); len(names) != 0 {
		t.Errorf("uploads = %v after failed ingest", names)
	}
}

func TestIngestFailuresStoreNothing(t *testing.T) {
	f := newFixture(t)
	noIdentity := testutil.IPA(t, testutil.IPAOptions{Info: map[string]any{"CFBundleName": "Nameless"}})
	noManifest := testutil.Zip(t, map[string][]byte{"classes.dex": []byte("dex")})

	tests := []struct {
		name     string
		raw      []byte
		fileName string
		want     error
	}{
		{"unsupported extension", iosBuild(t, "com.example.app", "1.0"), "app.zip", buildinfo.ErrInvalidFileType},
		{"no extension", []byte("anything"), "app", buildinfo.ErrInvalidFileType},
		{"not a zip", []byte("definitely not a zip"), "app.ipa", archive.ErrMalformedArchive},
		{"missing identity", noIdentity, "app.ipa", buildinfo.ErrMissingIdentityFields},
		{"apk without manifest", noManifest, "app.apk", buildinfo.ErrMissingIdentityFields},
		{"corrupt plist", testutil.Zip(t, map[string][]byte{
			"Payload/Example.app/Info.plist": []byte("bplist00garbage"),
		}), "app.ipa", plist.ErrMalformed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := f.service.Ingest(test.raw, test.fileName, nil)
			if !errors.Is(err, test.want) {
				t.Fatalf("err = %v, want %v", err, test.want)
			}
		})
	}

	entries, err := f.service.List(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("List has %d entries after failed ingests", len(entries))
	}
	if names := f.uploadDirectories(t); len(names) != 0 {
		t.Errorf("uploads = %v after failed ingests", names)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newFixture(t)
	raw := iosBuild(t, "com.example.app", "1.0")

	first, err := f.service.Ingest(raw, "first.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.service.Ingest(raw, "second.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("second ingest = %+v, want the stored %+v", second, first)
	}
	if names := f.uploadDirectories(t); len(names) != 1 {
		t.Errorf("uploads = %v, want exactly one", names)
	}
}

func TestReingestAttachesRequestedTags(t *testing.T) {
	f := newFixture(t)
	f.createTags(t, "qa", "beta")
	raw := androidBuild(t, "com.test.app", "2.0")

	first, err := f.service.Ingest(raw, "app.apk", []string{"qa"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.service.Ingest(raw, "app.apk", []string{" beta ", "qa"})
	if err != nil {
		t.Fatalf("re-ingest with tags: %v", err)
	}
	if second.UploadID != first.UploadID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("re-ingest = %s at %v, want the stored %s at %v", second.UploadID, second.CreatedAt, first.UploadID, first.CreatedAt)
	}
	if want := []string{"qa", "beta"}; !reflect.DeepEqual(second.Tags, want) {
		t.Errorf("re-ingest tags = %v, want %v", second.Tags, want)
	}
	stored, err := f.service.Get(first.UploadID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(stored, second) {
		t.Errorf("stored = %+v, want %+v", stored, second)
	}

	if _, err := f.service.Ingest(raw, "app.apk", []string{"missing"}); !errors.Is(err, uploadstore.ErrUnknownTag) {
		t.Errorf("re-ingest with unknown tag err = %v, want ErrUnknownTag", err)
	}
}

func TestGetRoundtrip(t *testing.T) {
	f := newFixture(t)
	f.createTags(t, "qa")
	for _, build := range []struct {
		raw      []byte
		fileName string
	}{
		{iosBuild(t, "com.example.app", "1.0"), "app.ipa"},
		{androidBuild(t, "com.test.app", "2.0"), "app.apk"},
	} {
		ingested, err := f.service.Ingest(build.raw, build.fileName, []string{"qa"})
		if err != nil {
			t.Fatal(err)
		}
		got, err := f.service.Get(ingested.UploadID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !reflect.DeepEqual(got, ingested) {
			t.Errorf("Get = %+v, want %+v", got, ingested)
		}
	}

	if _, err := f.service.Get("missing"); !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestGetLatest(t *testing.T) {
	f := newFixture(t)
	older, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Minute)
	newer, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.1"), "app.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}

	latest, err := f.service.GetLatest("com.example.app")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest.UploadID != newer.UploadID {
		t.Errorf("latest = %s, want %s", latest.UploadID, newer.UploadID)
	}

	if err := f.service.Delete(newer.UploadID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.GetLatest("com.example.app"); !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("after deleting latest err = %v, want ErrNotFound", err)
	}
	if _, err := f.service.Get(older.UploadID); err != nil {
		t.Errorf("older upload lost: %v", err)
	}

	if _, err := f.service.GetLatest("com.unknown"); !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("unknown bundle err = %v, want ErrNotFound", err)
	}
	for _, bad := range []string{"", "com/example", "../etc", "has space"} {
		if _, err := f.service.GetLatest(bad); !errors.Is(err, ErrInvalidBundleID) {
			t.Errorf("GetLatest(%q) err = %v, want ErrInvalidBundleID", bad, err)
		}
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	info, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.service.Delete(info.UploadID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.service.Get(info.UploadID); !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	entries, err := f.service.List(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.UploadID == info.UploadID {
			t.Error("deleted upload still listed")
		}
	}
	if err := f.service.Delete(info.UploadID); !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	f.createTags(t, "beta", "qa")

	ingest := func(raw []byte, fileName string, tags ...string) string {
		t.Helper()
		f.clock.Advance(time.Second)
		info, err := f.service.Ingest(raw, fileName, tags)
		if err != nil {
			t.Fatal(err)
		}
		return info.UploadID
	}
	iosBeta := ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", "beta")
	iosBoth := ingest(iosBuild(t, "com.example.app", "1.1"), "app.ipa", "beta", "qa")
	androidQA := ingest(androidBuild(t, "com.test.app", "2.0"), "app.apk", "qa")

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"everything newest first", Filter{}, []string{androidQA, iosBoth, iosBeta}},
		{"ios", Filter{Platform: buildinfo.PlatformIOS}, []string{iosBoth, iosBeta}},
		{"android", Filter{Platform: buildinfo.PlatformAndroid}, []string{androidQA}},
		{"one tag", Filter{Tags: []string{"qa"}}, []string{androidQA, iosBoth}},
		{"every tag must match", Filter{Tags: []string{"beta", "qa"}}, []string{iosBoth}},
		{"platform and tag", Filter{Platform: buildinfo.PlatformIOS, Tags: []string{"qa"}}, []string{iosBoth}},
		{"unused tag", Filter{Tags: []string{"nobody"}}, nil},
		{"blank tags ignored", Filter{Tags: []string{" ", ""}}, []string{androidQA, iosBoth, iosBeta}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entries, err := f.service.List(test.filter)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, entry := range entries {
				got = append(got, entry.UploadID)
				if entry.FileName != entry.BuildInfo.FileName || !reflect.DeepEqual(entry.Tags, entry.BuildInfo.Tags) {
					t.Errorf("entry %s disagrees with its build info", entry.UploadID[:8])
				}
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("List = %v, want %v", got, test.want)
			}
		})
	}
}

func TestListSkipsUnreadableUploads(t *testing.T) {
	f := newFixture(t)
	good, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	bad, err := f.service.Ingest(iosBuild(t, "com.example.other", "1.0"), "app.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	metadataPath := filepath.Join(f.root, "uploads", bad.UploadID, "buildinfo.cbor")
	if err := os.WriteFile(metadataPath, []byte{0xff, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := f.service.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].UploadID != good.UploadID {
		t.Errorf("List = %+v, want only %s", entries, good.UploadID)
	}
}

func TestTagOperations(t *testing.T) {
	f := newFixture(t)

	if err := f.service.CreateTag("beta"); err != nil {
		t.Fatal(err)
	}
	if err := f.service.CreateTag("beta"); !errors.Is(err, uploadstore.ErrConflict) {
		t.Errorf("duplicate CreateTag err = %v, want ErrConflict", err)
	}
	if err := f.service.CreateTag("  "); !errors.Is(err, uploadstore.ErrInvalidTag) {
		t.Errorf("blank CreateTag err = %v, want ErrInvalidTag", err)
	}
	f.createTags(t, "alpha", "qa")

	tags, err := f.service.ListTags()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tags, []string{"alpha", "beta", "qa"}) {
		t.Errorf("ListTags = %v", tags)
	}

	info, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.0"), "app.ipa", []string{"beta"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.service.AttachTags(info.UploadID, []string{"qa", "", "beta"})
	if err != nil {
		t.Fatalf("AttachTags: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"beta", "qa"}) {
		t.Errorf("AttachTags = %v, want [beta qa]", got)
	}
	if _, err := f.service.AttachTags(info.UploadID, []string{"ghost"}); !errors.Is(err, uploadstore.ErrUnknownTag) {
		t.Errorf("attach ghost err = %v, want ErrUnknownTag", err)
	}

	if err := f.service.RenameTag("beta", "beta2"); err != nil {
		t.Fatalf("RenameTag: %v", err)
	}
	if exists, _ := f.service.TagExists("beta"); exists {
		t.Error("beta still exists")
	}
	if exists, _ := f.service.TagExists("beta2"); !exists {
		t.Error("beta2 does not exist")
	}
	got, err = f.service.TagsOf(info.UploadID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"beta2", "qa"}) {
		t.Errorf("TagsOf after rename = %v, want [beta2 qa]", got)
	}
	entries, err := f.service.List(Filter{Tags: []string{"beta"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d uploads still list beta", len(entries))
	}
}

func TestRenderManifest(t *testing.T) {
	f := newFixture(t)
	ios, err := f.service.Ingest(iosBuild(t, "com.example.app", "1.2.3"), "app.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	android, err := f.service.Ingest(androidBuild(t, "com.test.app", "2.0"), "app.apk", nil)
	if err != nil {
		t.Fatal(err)
	}

	data, err := f.service.RenderManifest(ios.UploadID, "https://example.com/get/"+ios.UploadID+"/app.ipa", manifest.Options{})
	if err != nil {
		t.Fatalf("RenderManifest: %v", err)
	}
	if !bytes.Contains(data, []byte("<string>com.example.app</string>")) {
		t.Errorf("descriptor does not name the bundle:\n%s", data)
	}

	_, err = f.service.RenderManifest(android.UploadID, "https://example.com/get/x/app.apk", manifest.Options{})
	if !errors.Is(err, buildinfo.ErrWrongPlatform) {
		t.Errorf("android err = %v, want ErrWrongPlatform", err)
	}
	_, err = f.service.RenderManifest(buildinfo.UploadID([]byte("nothing")), "https://example.com/x", manifest.Options{})
	if !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("unknown upload err = %v, want ErrNotFound", err)
	}
}

func TestIconAndArtifact(t *testing.T) {
	f := newFixture(t)
	icon := []byte("\x89PNG launcher")
	info := testutil.IOSInfo("com.example.app", "1.0")
	info["CFBundleIconFile"] = "AppIcon.png"
	raw := testutil.IPA(t, testutil.IPAOptions{Info: info, Files: map[string][]byte{"AppIcon.png": icon}})

	ingested, err := f.service.Ingest(raw, "Example.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !ingested.HasIcon {
		t.Error("has_icon = false")
	}
	got, err := f.service.Icon(ingested.UploadID)
	if err != nil {
		t.Fatalf("Icon: %v", err)
	}
	if !bytes.Equal(got, icon) {
		t.Errorf("icon = %q, want %q", got, icon)
	}

	artifactPath, artifactInfo, err := f.service.ArtifactPath(ingested.UploadID)
	if err != nil {
		t.Fatalf("ArtifactPath: %v", err)
	}
	if filepath.Base(artifactPath) != "Example.ipa" || artifactInfo.UploadID != ingested.UploadID {
		t.Errorf("ArtifactPath = %s, %s", artifactPath, artifactInfo.UploadID)
	}
	stored, err := os.ReadFile(artifactPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, raw) {
		t.Error("stored artifact differs from the ingested bytes")
	}

	plain, err := f.service.Ingest(iosBuild(t, "com.example.plain", "1.0"), "plain.ipa", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.Icon(plain.UploadID); !errors.Is(err, uploadstore.ErrNotFound) {
		t.Errorf("Icon without icon err = %v, want ErrNotFound", err)
	}
}
