// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"bytes"
	"errors"
	"testing"

	"github.com/significa/appdist/lib/archive"
	"github.com/significa/appdist/lib/axml"
	"github.com/significa/appdist/lib/testutil"
)

func extractAndroid(t *testing.T, data []byte) (Metadata, error) {
	t.Helper()
	container, err := archive.Open(data)
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	return AndroidExtractor{}.Extract(container)
}

func manifestAPK(t *testing.T, options testutil.ManifestOptions, files map[string][]byte) []byte {
	t.Helper()
	return testutil.APK(t, testutil.BinaryXML(t, testutil.Manifest(options), true), files)
}

func TestAndroidExtractIdentity(t *testing.T) {
	for _, utf8 := range []bool{true, false} {
		manifest := testutil.BinaryXML(t, testutil.Manifest(testutil.ManifestOptions{
			Package:     "com.test.app",
			VersionName: "2.0",
			VersionCode: 200,
			Label:       "Test App",
		}), utf8)

		metadata, err := extractAndroid(t, testutil.APK(t, manifest, nil))
		if err != nil {
			t.Fatalf("utf8=%v: Extract: %v", utf8, err)
		}
		if metadata.Platform != PlatformAndroid {
			t.Errorf("utf8=%v: platform = %q, want android", utf8, metadata.Platform)
		}
		if metadata.BundleID != "com.test.app" {
			t.Errorf("utf8=%v: bundle id = %q, want com.test.app", utf8, metadata.BundleID)
		}
		if metadata.BundleVersion != "2.0" {
			t.Errorf("utf8=%v: version = %q, want 2.0", utf8, metadata.BundleVersion)
		}
		if metadata.BuildNumber != "200" {
			t.Errorf("utf8=%v: build number = %q, want 200", utf8, metadata.BuildNumber)
		}
		if metadata.AppName != "Test App" {
			t.Errorf("utf8=%v: app name = %q, want Test App", utf8, metadata.AppName)
		}
	}
}

func TestAndroidLabelReferenceFallsBackToRawReference(t *testing.T) {
	metadata, err := extractAndroid(t, manifestAPK(t, testutil.ManifestOptions{
		Package:     "com.test.app",
		VersionName: "2.0",
		Label:       testutil.ResourceRef(0x7f0c0001),
	}, nil))
	if err != nil {
		t.Fatal(err)
	}
	if metadata.AppName != "@0x7f0c0001" {
		t.Errorf("app name = %q, want @0x7f0c0001", metadata.AppName)
	}
}

func TestAndroidMissingIdentityFields(t *testing.T) {
	cases := []struct {
		name    string
		options testutil.ManifestOptions
	}{
		{"no package", testutil.ManifestOptions{VersionName: "1.0"}},
		{"no versionName", testutil.ManifestOptions{Package: "com.test.app", VersionCode: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := extractAndroid(t, manifestAPK(t, tc.options, nil))
			if !errors.Is(err, ErrMissingIdentityFields) {
				t.Fatalf("err = %v, want ErrMissingIdentityFields", err)
			}
		})
	}

	t.Run("no manifest entry", func(t *testing.T) {
		_, err := extractAndroid(t, testutil.Zip(t, map[string][]byte{"classes.dex": []byte("dex")}))
		if !errors.Is(err, ErrMissingIdentityFields) {
			t.Fatalf("err = %v, want ErrMissingIdentityFields", err)
		}
	})
}

func TestAndroidMalformedManifest(t *testing.T) {
	cases := map[string][]byte{
		"text manifest": []byte(`<?xml version="1.0"?><manifest package="com.x"/>`),
		"truncated":     testutil.BinaryXML(t, testutil.Manifest(testutil.ManifestOptions{Package: "com.x", VersionName: "1"}), true)[:50],
		"wrong root": testutil.BinaryXML(t, testutil.XMLNode{
			Name:       "resources",
			Attributes: []testutil.XMLAttribute{{Name: "package", Value: "com.x"}},
		}, true),
	}
	for name, manifest := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := extractAndroid(t, testutil.APK(t, manifest, nil))
			if !errors.Is(err, axml.ErrMalformed) {
				t.Fatalf("err = %v, want axml.ErrMalformed", err)
			}
		})
	}
}

func TestAndroidIconFromManifestPath(t *testing.T) {
	icon := []byte("\x89PNG declared")
	metadata, err := extractAndroid(t, manifestAPK(t, testutil.ManifestOptions{
		Package:     "com.test.app",
		VersionName: "1.0",
		Icon:        "res/drawable/app_icon.png",
	}, map[string][]byte{
		"res/drawable/app_icon.png":          icon,
		"res/mipmap-xxxhdpi/ic_launcher.png": []byte("densest launcher"),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(metadata.Icon, icon) {
		t.Errorf("icon = %q, want %q", metadata.Icon, icon)
	}
}

func TestAndroidIconDensestLauncher(t *testing.T) {
	metadata, err := extractAndroid(t, manifestAPK(t, testutil.ManifestOptions{
		Package:     "com.test.app",
		VersionName: "1.0",
		Icon:        testutil.ResourceRef(0x7f0d0000),
	}, map[string][]byte{
		"res/mipmap-hdpi-v4/ic_launcher.png":    []byte("hdpi"),
		"res/mipmap-xxhdpi-v4/ic_launcher.png":  []byte("xxhdpi mipmap"),
		"res/drawable-xxhdpi/ic_launcher.png":   []byte("xxhdpi drawable"),
		"res/mipmap-anydpi-v26/ic_launcher.xml": []byte("adaptive"),
		"res/mipmap-xhdpi/ic_launcher.png":      []byte("xhdpi"),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if string(metadata.Icon) != "xxhdpi mipmap" {
		t.Errorf("icon = %q, want the xxhdpi mipmap", metadata.Icon)
	}
}

func TestDensityRank(t *testing.T) {
	if densityRank("mipmap-xxxhdpi") <= densityRank("mipmap-xxhdpi") {
		t.Error("xxxhdpi does not outrank xxhdpi")
	}
	if densityRank("drawable-ldpi") <= densityRank("drawable") {
		t.Error("ldpi does not outrank an unqualified directory")
	}
	if got := densityRank("mipmap-anydpi-v26"); got != 0 {
		t.Errorf("densityRank(anydpi) = %d, want 0", got)
	}
}
