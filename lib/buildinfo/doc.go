// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buildinfo turns an uploaded build into its canonical
// metadata record.
//
// The platform is chosen once from the file name extension (".ipa" or
// ".apk") and selects an [Extractor]. [IOSExtractor] reads
// Payload/<name>.app/Info.plist through lib/plist; [AndroidExtractor]
// reads AndroidManifest.xml through lib/axml. Both return [Metadata]:
// identity fields, display name, build number, and the launcher icon
// bytes when one can be located.
//
// [New] assembles a [BuildInfo] from Metadata, the raw bytes, and the
// ingestion time. The upload id is a BLAKE3 keyed hash of the raw
// bytes ([UploadID]), so identical uploads always map to the same id.
//
// BuildInfo is served over HTTP as JSON and persisted as CBOR. Its
// struct tags are json tags, which the CBOR codec honors as a
// fallback, so both encodings use the same snake_case field names.
package buildinfo
