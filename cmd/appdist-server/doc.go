// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// appdist-server serves the upload, tag, and download API over one
// upload store.
//
// Uploads arrive as multipart forms (field app_file, repeated tags).
// Installs go through /get/<upload_id>/app.plist on iOS, which points
// the device at /get/<upload_id>/app.ipa, and /get/<upload_id>/app.apk
// on Android. Mutating routes and the upload listing require the
// X-Auth-Token header when an auth token is configured.
//
// Prometheus metrics are exposed on /metrics and a liveness probe on
// /healthz.
package main
