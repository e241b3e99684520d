package source

import (
	"path"
	"sort"
	"strings"
)

// FileIndex collects the keys that match one glob pattern.
type FileIndex struct {
	pattern string
	keys    []string
}

// NewFileIndex creates an empty index for a slash-separated glob pattern.
func NewFileIndex(pattern string) *FileIndex {
	return &FileIndex{pattern: strings.TrimPrefix(pattern, "/")}
}

// ListPrefix returns the literal leading directories of the pattern. Object
// stores are listed from this prefix instead of from the root.
func (idx *FileIndex) ListPrefix() string {
	segments := strings.Split(idx.pattern, "/")
	var literal []string
	for _, seg := range segments[:len(segments)-1] {
		if hasMeta(seg) {
			break
		}
		literal = append(literal, seg)
	}
	if len(literal) == 0 {
		return ""
	}
	return strings.Join(literal, "/") + "/"
}

// AddKey adds key if it matches the pattern, or sits directly inside a
// directory that does, and is not a hidden or bookkeeping file.
func (idx *FileIndex) AddKey(key string) bool {
	if !MatchGlob(idx.pattern, key) {
		return false
	}
	idx.keys = append(idx.keys, key)
	return true
}

// Keys returns the matched keys in lexical order.
func (idx *FileIndex) Keys() []string {
	sort.Strings(idx.keys)
	return idx.keys
}

// Count returns the number of matched keys.
func (idx *FileIndex) Count() int {
	return len(idx.keys)
}

// MatchGlob reports whether key matches pattern. A '*' never crosses a '/'.
// When the pattern matches the key's directory instead of the key itself, the
// files directly inside that directory match too, so "track_data/*/*/*"
// reads both track_data/A/B/x.json and track_data/A/B/C/x.json. Files or
// matched directories whose name starts with '_' or '.' never match.
func MatchGlob(pattern, key string) bool {
	key = strings.TrimPrefix(key, "/")
	if IsHidden(key) {
		return false
	}
	if match(pattern, key) {
		return true
	}
	dir := path.Dir(key)
	return dir != "." && !IsHidden(dir) && match(pattern, dir)
}

func match(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// IsHidden reports whether the base name marks a hidden or bookkeeping file
// such as _SUCCESS or .DS_Store.
func IsHidden(key string) bool {
	base := path.Base(key)
	return strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".")
}

func hasMeta(seg string) bool {
	return strings.ContainsAny(seg, `*?[\`)
}
