// Package cos provides common low-level types and utilities shared across
// the runtime: id generation and the error-kind vocabulary of spec.md §7.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// Alphabet for generating ids, same shape as the teacher's uuidABC: longer
// than 0x3f entries so a 6-bit tie-breaker index never goes out of range.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenShortID = 9 // per https://github.com/teris-io/shortid#id-length

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initShortID() {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, 1)
}

// GenUUID mints a cmd_id / path id, exactly the way the teacher mints
// object UUIDs in cmn/cos/uuid.go: a worker-sharded shortid, returned as
// generated.
func GenUUID() string {
	sidOnce.Do(initShortID)
	return sid.MustGenerate()
}

func IsValidUUID(s string) bool {
	if len(s) < LenShortID {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
		if !ok {
			return false
		}
	}
	return true
}

// HashString64 turns a string key into a fast 64-bit bucket index (no
// package in this module calls it; loc.Loc.Hash uses blake3), matching the
// teacher's own use of OneOfOne/xxhash for exactly this purpose
// (cmn/cos/uuid.go's HashK8sProxyID).
func HashString64(s string) uint64 {
	return xxhash.Checksum64S([]byte(s), 0)
}
