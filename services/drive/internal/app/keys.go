package app

import (
	"math/rand/v2"
	"path"
	"strconv"
	"strings"
	"time"
)

// keySuffixSpace bounds the random suffix. At 1e18 a burst of 10,000 keys in
// one millisecond collides with probability around 5e-11.
const keySuffixSpace = 1_000_000_000_000_000_000

// NewStorageKey returns "<unix-ms>-<random suffix><ext>" for an uploaded
// file. Keys need no coordination; the random suffix separates uploads that
// land in the same millisecond.
func NewStorageKey(originalName string) string {
	return storageKeyAt(time.Now(), originalName)
}

func storageKeyAt(now time.Time, originalName string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(rand.Int64N(keySuffixSpace), 10))
	b.WriteString(keyExtension(originalName))
	return b.String()
}

// keyExtension keeps a short alphanumeric extension and drops anything else.
func keyExtension(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(path.Ext(base))
	if len(ext) == len(base) || len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// displayName strips any client-side directory from an uploaded file name.
func displayName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "/" || base == "." {
		return ""
	}
	return base
}
