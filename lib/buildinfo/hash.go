// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildinfo

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// uploadDomainKey is the BLAKE3 key for upload ids: the ASCII domain
// name zero-padded to 32 bytes. Changing it changes every upload id.
var uploadDomainKey = [32]byte{
	'a', 'p', 'p', 'd', 'i', 's', 't', '.', 'u', 'p', 'l', 'o', 'a', 'd',
}

// UploadID returns the upload id of raw artifact bytes: the hex
// encoding of their upload-domain BLAKE3 keyed hash.
func UploadID(raw []byte) string {
	hasher, err := blake3.NewKeyed(uploadDomainKey[:])
	if err != nil {
		panic("buildinfo: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(raw)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ValidUploadID reports whether id has the shape UploadID produces: 64
// lowercase hex characters. Store paths are built from ids, so every
// id from outside is checked with this first.
func ValidUploadID(id string) bool {
	if len(id) != 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
