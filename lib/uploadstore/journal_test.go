// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"errors"
	"os"
	"testing"

	"github.com/significa/appdist/lib/buildinfo"
	"github.com/significa/appdist/lib/codec"
)

// stageRename builds the batch RenameTag would commit for renaming
// oldName to newName, without committing it.
func stageRename(t *testing.T, store *Store, oldName, newName string) *renameBatch {
	t.Helper()
	batch := &renameBatch{}
	ids, err := store.UploadIDs()
	if err != nil {
		t.Fatal(err)
	}
	for _, uploadID := range ids {
		info, err := store.Load(uploadID)
		if err != nil {
			t.Fatal(err)
		}
		renamed, changed := replaceTag(info.Tags, oldName, newName)
		if !changed {
			continue
		}
		info.Tags = renamed
		data, err := codec.Marshal(info)
		if err != nil {
			t.Fatal(err)
		}
		if err := batch.stage(store.path(stagingDir), store.metadataPath(uploadID), data); err != nil {
			t.Fatal(err)
		}
	}
	set, err := store.readTagSet()
	if err != nil {
		t.Fatal(err)
	}
	delete(set, oldName)
	set[newName] = struct{}{}
	data, err := store.encodeTagSet(set)
	if err != nil {
		t.Fatal(err)
	}
	if err := batch.stage(store.path(stagingDir), store.path(tagsFile), data); err != nil {
		t.Fatal(err)
	}
	return batch
}

func assertRenamed(t *testing.T, store *Store, ids []string) {
	t.Helper()
	tags := store.Tags()
	if exists, _ := tags.TagExists("beta"); exists {
		t.Error("old tag survived recovery")
	}
	if exists, _ := tags.TagExists("beta2"); !exists {
		t.Error("new tag missing after recovery")
	}
	for _, uploadID := range ids {
		got, err := tags.TagsFor(uploadID)
		if err != nil {
			t.Fatal(err)
		}
		if !equalTags(got, []string{"beta2"}) {
			t.Errorf("TagsFor(%s) = %v, want [beta2]", uploadID[:8], got)
		}
	}
	if _, err := os.Stat(store.path(journalFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("journal still present: %v", err)
	}
}

func TestOpenRollsForwardJournaledRename(t *testing.T) {
	store := newTestStore(t)
	mustAddTags(t, store.Tags(), "beta")
	first := saveUpload(t, store, []byte("one"), "com.example.app", "beta")
	second := saveUpload(t, store, []byte("two"), "com.example.app", "beta")

	batch := stageRename(t, store, "beta", "beta2")
	if _, err := store.writeJournal(batch); err != nil {
		t.Fatalf("writeJournal: %v", err)
	}

	// Simulated crash: nothing applied yet.
	if set, err := store.readTagSet(); err != nil || !set.has("beta") {
		t.Fatalf("rename applied before recovery: %v, %v", set.sorted(), err)
	}

	reopened, err := Open(store.Root(), Options{Clock: store.clock})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	assertRenamed(t, reopened, []string{first.UploadID, second.UploadID})
	if entries := stagingEntries(t, reopened); len(entries) != 0 {
		t.Errorf("staging holds %d entries after recovery", len(entries))
	}
}

func TestSaveFinishesPendingRename(t *testing.T) {
	store := newTestStore(t)
	mustAddTags(t, store.Tags(), "beta", "other")
	first := saveUpload(t, store, []byte("one"), "com.example.app", "beta")

	batch := stageRename(t, store, "beta", "beta2")
	if _, err := store.writeJournal(batch); err != nil {
		t.Fatalf("writeJournal: %v", err)
	}

	// The rename is decided, so the old name is no longer valid.
	err := store.Save(testInfo([]byte("two"), "com.example.app", buildinfo.PlatformIOS, "beta"), []byte("two"), nil)
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("Save with renamed-away tag err = %v, want ErrUnknownTag", err)
	}
	assertRenamed(t, store, []string{first.UploadID})

	second := saveUpload(t, store, []byte("two"), "com.example.app", "beta2")
	all, _ := store.Tags().AllTags()
	if !equalTags(all, []string{"beta2", "other"}) {
		t.Errorf("AllTags = %v, want [beta2 other]", all)
	}
	assertNoDanglingTags(t, store, all, first.UploadID, second.UploadID)
}

func TestReadersFinishPendingRename(t *testing.T) {
	readers := map[string]func(t *testing.T, store *Store, uploadID string){
		"TagExists": func(t *testing.T, store *Store, _ string) {
			if exists, err := store.Tags().TagExists("beta"); err != nil || exists {
				t.Errorf("TagExists(beta) = %v, %v, want false", exists, err)
			}
		},
		"AllTags": func(t *testing.T, store *Store, _ string) {
			if all, err := store.Tags().AllTags(); err != nil || !equalTags(all, []string{"beta2"}) {
				t.Errorf("AllTags = %v, %v, want [beta2]", all, err)
			}
		},
		"MissingTags": func(t *testing.T, store *Store, _ string) {
			if missing, err := store.Tags().MissingTags([]string{"beta"}); err != nil || !equalTags(missing, []string{"beta"}) {
				t.Errorf("MissingTags(beta) = %v, %v, want [beta]", missing, err)
			}
		},
		"TagsFor": func(t *testing.T, store *Store, uploadID string) {
			if tags, err := store.Tags().TagsFor(uploadID); err != nil || !equalTags(tags, []string{"beta2"}) {
				t.Errorf("TagsFor = %v, %v, want [beta2]", tags, err)
			}
		},
	}
	for name, read := range readers {
		t.Run(name, func(t *testing.T) {
			store := newTestStore(t)
			mustAddTags(t, store.Tags(), "beta")
			info := saveUpload(t, store, []byte("one"), "com.example.app", "beta")

			batch := stageRename(t, store, "beta", "beta2")
			if _, err := store.writeJournal(batch); err != nil {
				t.Fatalf("writeJournal: %v", err)
			}

			read(t, store, info.UploadID)
			if _, err := os.Stat(store.path(journalFile)); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("journal still present after %s: %v", name, err)
			}
		})
	}
}

// assertNoDanglingTags checks that every tag the uploads list is in
// the tag set.
func assertNoDanglingTags(t *testing.T, store *Store, set []string, ids ...string) {
	t.Helper()
	known := make(map[string]bool, len(set))
	for _, name := range set {
		known[name] = true
	}
	for _, uploadID := range ids {
		tags, err := store.Tags().TagsFor(uploadID)
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range tags {
			if !known[name] {
				t.Errorf("upload %s lists tag %q missing from the tag set", uploadID[:8], name)
			}
		}
	}
}

func TestRecoveryFinishesPartiallyAppliedRename(t *testing.T) {
	store := newTestStore(t)
	mustAddTags(t, store.Tags(), "beta")
	first := saveUpload(t, store, []byte("one"), "com.example.app", "beta")
	second := saveUpload(t, store, []byte("two"), "com.example.other", "beta")

	batch := stageRename(t, store, "beta", "beta2")
	if _, err := store.writeJournal(batch); err != nil {
		t.Fatalf("writeJournal: %v", err)
	}
	// The crash happened after the first rename landed.
	if err := os.Rename(batch.entries[0].Staged, batch.entries[0].Final); err != nil {
		t.Fatal(err)
	}

	// The next writer recovers before doing its own work.
	created, err := store.Tags().AddTag("qa")
	if err != nil || !created {
		t.Fatalf("AddTag after crash = %v, %v", created, err)
	}
	assertRenamed(t, store, []string{first.UploadID, second.UploadID})

	all, _ := store.Tags().AllTags()
	if !equalTags(all, []string{"beta2", "qa"}) {
		t.Errorf("AllTags = %v, want [beta2 qa]", all)
	}
}

func TestRecoverySkipsDeletedUploads(t *testing.T) {
	store := newTestStore(t)
	mustAddTags(t, store.Tags(), "beta")
	kept := saveUpload(t, store, []byte("one"), "com.example.app", "beta")
	removed := saveUpload(t, store, []byte("two"), "com.example.other", "beta")

	batch := stageRename(t, store, "beta", "beta2")
	if _, err := store.writeJournal(batch); err != nil {
		t.Fatalf("writeJournal: %v", err)
	}
	if err := os.RemoveAll(store.uploadPath(removed.UploadID)); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(store.Root(), Options{Clock: store.clock})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	assertRenamed(t, reopened, []string{kept.UploadID})
	if _, err := reopened.Load(removed.UploadID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(removed) err = %v, want ErrNotFound", err)
	}
	if entries := stagingEntries(t, reopened); len(entries) != 0 {
		t.Errorf("staging holds %d entries after recovery", len(entries))
	}
}

func TestUnjournaledBatchIsDiscarded(t *testing.T) {
	store := newTestStore(t)
	mustAddTags(t, store.Tags(), "beta")
	saveUpload(t, store, []byte("one"), "com.example.app", "beta")

	batch := stageRename(t, store, "beta", "beta2")
	batch.discard()

	if entries := stagingEntries(t, store); len(entries) != 0 {
		t.Errorf("staging holds %d entries after discard", len(entries))
	}
	if exists, _ := store.Tags().TagExists("beta"); !exists {
		t.Error("discarded rename changed the tag set")
	}
}
