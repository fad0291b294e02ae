package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NormalizeQuery canonicalizes query text so equivalent queries share a cache
// key: lowercased, leading/trailing space removed, runs of whitespace
// collapsed to a single space.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key derives a deterministic cache key from an operation name and its
// normalized arguments. Arguments are NUL-separated before hashing so
// ("a", "bc") and ("ab", "c") cannot collide.
func Key(op string, args ...string) string {
	h := xxhash.New()
	_, _ = h.WriteString(op)
	for _, arg := range args {
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(arg)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
