package storage

import "strings"

// Placeholder is substituted for every character that cannot
// appear in a file name on the platforms we care about.
const Placeholder = '_'

// SanitizeFilename replaces path separators, characters which are illegal
// on common filesystems (< > : " / \ | ? *) and ASCII control characters
// with Placeholder. The result is always safe to join on to a directory
// path as a single component, and sanitizing it again is a no-op.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if isUnsafe(r) {
			return Placeholder
		}
		return r
	}, name)
}

func isUnsafe(r rune) bool {
	if r >= 0x00 && r <= 0x1F {
		return true
	}

	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	}

	return false
}
