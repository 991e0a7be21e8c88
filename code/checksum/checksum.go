// Package checksum hashes cached blobs and compares them with the server manifest.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// Sum returns the lowercase hex MD5 of blob, the digest the server publishes per partition
func Sum(blob []byte) string {
	h := md5.Sum(blob)
	return hex.EncodeToString(h[:])
}

// Normalize lowercases a checksum and strips surrounding quotes (S3 ETags arrive quoted)
func Normalize(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`))
}

// Diff returns, sorted, the server filenames whose checksum is missing from local or differs
// from it.
func Diff(server, local map[string]string) []string {
	var stale []string
	for name, sum := range server {
		if have, ok := local[name]; !ok || Normalize(have) != Normalize(sum) {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale
}
