package utils

import (
	"crypto/md5"
	"fmt"
)

// HashString keys the embedding and answer caches. md5 is fine here: the
// hash only needs to be stable and short, not collision resistant.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
