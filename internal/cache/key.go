package cache

import (
	"crypto/md5"
	"encoding/hex"
)

// Key returns the on-disk stem for a source URL: the lowercase hex MD5
// digest of the raw URL bytes. The URL is never normalized, so equal
// strings always map to the same 32-character key across restarts.
func Key(url string) string {
	sum := md5.Sum([]byte(url))

	return hex.EncodeToString(sum[:])
}
