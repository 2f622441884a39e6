// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// sampleRecord uses cbor struct tags (the convention for persisted-only
// types).
type sampleRecord struct {
	BundleID string    `cbor:"bundle_id"`
	UploadID string    `cbor:"upload_id,omitempty"`
	Count    int       `cbor:"count"`
	Updated  time.Time `cbor:"updated_at"`
}

// sampleDualRecord uses json struct tags (types shared with the HTTP
// API, relying on fxamacker's fallback).
type sampleDualRecord struct {
	Platform string   `json:"platform"`
	Tags     []string `json:"tags"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		BundleID: "com.example.app",
		UploadID: "4f1c",
		Count:    42,
		Updated:  time.Date(2026, 3, 4, 5, 6, 7, 891011121, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.BundleID != original.BundleID || decoded.UploadID != original.UploadID || decoded.Count != original.Count {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	// Nanosecond precision must survive the round trip.
	if !decoded.Updated.Equal(original.Updated) {
		t.Errorf("updated_at = %v, want %v", decoded.Updated, original.Updated)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	record := sampleRecord{BundleID: "com.test.app", Count: 7}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := sampleDualRecord{Platform: "ios", Tags: []string{"beta", "qa"}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"platform"`) {
		t.Errorf("diagnostic %s does not use the json tag name", diagnostic)
	}

	var decoded sampleDualRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Platform != "ios" || len(decoded.Tags) != 2 || decoded.Tags[1] != "qa" {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{
		"bundle_id":   "com.example.app",
		"future_only": true,
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.BundleID != "com.example.app" {
		t.Errorf("bundle_id = %q, want %q", decoded.BundleID, "com.example.app")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var decoded sampleRecord
	if err := Unmarshal([]byte{0xff, 0x00, 0x13}, &decoded); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}
