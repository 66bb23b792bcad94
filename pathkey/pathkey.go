// Package pathkey canonicalizes namespace paths and derives the StorageKey
// block servers use to name on-disk files.
package pathkey

import "strings"

// Canonicalize collapses empty components and ".", resolves ".." against the
// accumulated stack without escaping root, and returns "/" for the root.
func Canonicalize(path string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var stack []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}

	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// Join canonicalizes name against base when name is relative.
func Join(base, name string) string {
	if strings.HasPrefix(name, "/") {
		return Canonicalize(name)
	}
	base = Canonicalize(base)
	if base == "/" {
		return Canonicalize("/" + name)
	}
	return Canonicalize(base + "/" + name)
}

// Parent returns the canonical parent path, or "" for root.
func Parent(path string) string {
	path = Canonicalize(path)
	if path == "/" {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// Base returns the final path component, or "/" for root.
func Base(path string) string {
	path = Canonicalize(path)
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

// ToStorageKey derives the block-server-visible key for a canonical path.
// Ambiguous for paths containing a literal "__" (see design notes); callers
// only ever pass canonical paths produced by Canonicalize/Join.
func ToStorageKey(path string) string {
	return strings.ReplaceAll(path, "/", "__")
}

// FromStorageKey is the inverse of ToStorageKey. Round-trips exactly for
// keys derived from paths with no literal "__" substring.
func FromStorageKey(key string) string {
	return strings.ReplaceAll(key, "__", "/")
}
