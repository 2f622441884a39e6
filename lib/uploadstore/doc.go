// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploadstore persists uploaded builds and their indexes on the
// local filesystem.
//
// On-disk layout under the store root:
//
//	uploads/<upload_id>/<file name>     raw artifact
//	uploads/<upload_id>/buildinfo.cbor  BuildInfo, including its tags
//	uploads/<upload_id>/icon.png        launcher icon, when extracted
//	tags.cbor                           the global tag set
//	bundles/<h[:2]>/<h>.cbor            latest upload of one bundle id
//	locks/                              advisory lock files
//	tmp/                                staging area for atomic publish
//	rename.journal                      present only during a tag rename
//
// h is the BLAKE3 keyed hash of the bundle id, so arbitrary bundle ids
// map to fixed-length safe file names.
//
// Every file is written to tmp/ first and published with rename(2),
// so readers never see a partially written record and never lock. An
// upload's three facets are staged together in one directory and
// published by a single directory rename: either all exist or none.
//
// Writers serialize through flock(2) on files under locks/, which
// works across goroutines and across processes sharing the directory
// (the server and the admin CLI). Each bundle id has its own exclusive
// lock guarding its latest-upload entry. tags.lock guards the tag set
// and every upload's tag membership: [Store.Save] holds it shared
// while it checks the requested tags and publishes, and tag mutations
// and [Store.Delete] hold it exclusive. Locks are always taken in the
// order tags, then bundle.
//
// [TagIndex.RenameTag] rewrites the tag set and every upload listing
// the old name. It stages all new files, records them in
// rename.journal, renames them into place with the tag set last, and
// removes the journal. A journal left by a crash is rolled forward by
// [Open] and by the next tag mutation, so a rename is never observed
// half applied once the process that crashed is gone.
package uploadstore
