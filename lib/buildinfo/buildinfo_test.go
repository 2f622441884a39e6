// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"errors"
	"testing"
	"time"

	"github.com/significa/appdist/lib/testutil"
)

func TestPlatformForFilename(t *testing.T) {
	cases := []struct {
		fileName string
		want     Platform
		wantErr  bool
	}{
		{"MyApp.ipa", PlatformIOS, false},
		{"build/MyApp.IPA", PlatformIOS, false},
		{"app-release.apk", PlatformAndroid, false},
		{`C:\builds\app.Apk`, PlatformAndroid, false},
		{"app.aab", "", true},
		{"app.ipa.zip", "", true},
		{"ipa", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := PlatformForFilename(tc.fileName)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidFileType) {
				t.Errorf("PlatformForFilename(%q) err = %v, want ErrInvalidFileType", tc.fileName, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("PlatformForFilename(%q): %v", tc.fileName, err)
			continue
		}
		if got != tc.want {
			t.Errorf("PlatformForFilename(%q) = %q, want %q", tc.fileName, got, tc.want)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	for input, want := range map[string]Platform{"ios": PlatformIOS, "iOS": PlatformIOS, " Android ": PlatformAndroid} {
		got, err := ParsePlatform(input)
		if err != nil || got != want {
			t.Errorf("ParsePlatform(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParsePlatform("windows"); err == nil {
		t.Error("ParsePlatform(windows) succeeded")
	}
}

func TestUploadIDIsStableContentHash(t *testing.T) {
	first := UploadID([]byte("artifact bytes"))
	second := UploadID([]byte("artifact bytes"))
	other := UploadID([]byte("artifact bytes!"))

	if first != second {
		t.Errorf("UploadID not deterministic: %s vs %s", first, second)
	}
	if first == other {
		t.Error("different content produced the same upload id")
	}
	if !ValidUploadID(first) {
		t.Errorf("UploadID produced %q, which ValidUploadID rejects", first)
	}
}

func TestValidUploadID(t *testing.T) {
	valid := UploadID(nil)
	cases := map[string]bool{
		valid:                    true,
		valid[:63]:               false,
		valid + "0":              false,
		"../../../../etc/passwd": false,
		"":                       false,
	}
	upper := []byte(valid)
	upper[0] = 'A'
	cases[string(upper)] = false

	for id, want := range cases {
		if got := ValidUploadID(id); got != want {
			t.Errorf("ValidUploadID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	raw := []byte("raw build bytes")
	tags := []string{"beta", "qa"}
	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	info := New(Metadata{
		Platform:      PlatformIOS,
		BundleID:      "com.example.app",
		BundleVersion: "1.2.3",
		BuildNumber:   "45",
		AppName:       "Example",
		Icon:          []byte{0x89, 'P', 'N', 'G'},
	}, raw, "dist/Example.ipa", tags, createdAt)

	tags[0] = "mutated"

	if info.UploadID != UploadID(raw) {
		t.Errorf("UploadID = %s, want %s", info.UploadID, UploadID(raw))
	}
	if info.FileName != "Example.ipa" {
		t.Errorf("FileName = %q, want Example.ipa", info.FileName)
	}
	if info.FileSize != int64(len(raw)) {
		t.Errorf("FileSize = %d, want %d", info.FileSize, len(raw))
	}
	if !info.HasIcon {
		t.Error("HasIcon = false, want true")
	}
	if info.CreatedAt.Location() != time.UTC || !info.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v, want %v in UTC", info.CreatedAt, createdAt)
	}
	if len(info.Tags) != 2 || info.Tags[0] != "beta" || info.Tags[1] != "qa" {
		t.Errorf("Tags = %v, want [beta qa]", info.Tags)
	}

	empty := New(Metadata{Platform: PlatformAndroid}, raw, "a.apk", nil, createdAt)
	if empty.Tags == nil {
		t.Error("Tags is nil for no tags, want empty slice")
	}
}

func TestTitle(t *testing.T) {
	if got := (BuildInfo{BundleID: "com.x", AppName: "X"}).Title(); got != "X" {
		t.Errorf("Title = %q, want X", got)
	}
	if got := (BuildInfo{BundleID: "com.x"}).Title(); got != "com.x" {
		t.Errorf("Title = %q, want com.x", got)
	}
}

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"app.ipa":           "app.ipa",
		"../../etc/app.apk": "app.apk",
		`dir\sub\app.apk`:   "app.apk",
		"..":                "",
		"":                  "",
	}
	for input, want := range cases {
		if got := BaseName(input); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExtractRejectsUnknownExtensionBeforeParsing(t *testing.T) {
	// Garbage bytes: if the archive were opened first the error would
	// be a malformed archive instead.
	_, err := Extract([]byte("not a zip"), "build.exe")
	if !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("err = %v, want ErrInvalidFileType", err)
	}
}

func TestExtractDispatchesByExtension(t *testing.T) {
	ipa := testutil.IPA(t, testutil.IPAOptions{Info: testutil.IOSInfo("com.example.app", "1.2.3")})
	metadata, err := Extract(ipa, "Example.ipa")
	if err != nil {
		t.Fatalf("Extract(ipa): %v", err)
	}
	if metadata.Platform != PlatformIOS {
		t.Errorf("platform = %q, want ios", metadata.Platform)
	}

	// The same bytes named .apk go to the Android extractor, which
	// finds no manifest.
	_, err = Extract(ipa, "Example.apk")
	if !errors.Is(err, ErrMissingIdentityFields) {
		t.Errorf("Extract(ipa as apk) err = %v, want ErrMissingIdentityFields", err)
	}
}
