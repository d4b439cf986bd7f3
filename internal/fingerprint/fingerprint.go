// Package fingerprint computes the content hashes used for exact duplicate
// checks and per-page identity.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FileHash is the hex SHA-256 of a whole file
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// OriginDigest identifies one page by where it came from: the hash of the
// ingested file, the page's index in it and its size. It does not look at
// rendered content, so two identical pages from different files get
// different digests. It is computed once at ingest and carried by the page
// row from then on, so it survives reorder, merge and split.
func OriginDigest(fileHash string, originalIndex, width, height int) string {
	return hashParts(fileHash, fmt.Sprint(originalIndex), fmt.Sprintf("%dx%d", width, height))
}

// Page is the position-sensitive fingerprint of a page: the same content
// at a different page number, or under a different document, hashes
// differently.
func Page(baseKey string, pageNumber int, contentDigest string) string {
	return hashParts(baseKey, fmt.Sprint(pageNumber), contentDigest)
}

func hashParts(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
