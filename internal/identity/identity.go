// Package identity maps absolute file paths to run-independent identity keys.
//
// An identity is the path suffix starting at the anchor segment (the logical
// root name), joined with forward slashes. Two machines that mount the same
// tree at different prefixes, or use different separators, agree on it.
package identity

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalizer turns full paths into identity keys.
type Normalizer struct {
	// Anchor is the logical root segment, e.g. "photos". Matching is
	// case-insensitive; the identity always uses Anchor's own spelling.
	Anchor string
}

// New returns a Normalizer anchored at the given segment.
func New(anchor string) Normalizer {
	return Normalizer{Anchor: strings.Trim(anchor, `/\`)}
}

// ForRoot returns a Normalizer anchored at the last element of root.
func ForRoot(root string) Normalizer {
	slashed := strings.TrimRight(toSlash(root), "/")
	return New(path.Base(slashed))
}

// Normalize returns the identity for fullPath. It never fails: when the
// anchor segment is absent the slash-converted path is returned unchanged.
func (n Normalizer) Normalize(fullPath string) string {
	slashed := toSlash(fullPath)
	if n.Anchor == "" || n.Anchor == "." {
		return slashed
	}

	segments := strings.Split(slashed, "/")
	for i, seg := range segments {
		if !strings.EqualFold(seg, n.Anchor) {
			continue
		}
		parts := make([]string, 0, len(segments)-i)
		parts = append(parts, n.Anchor)
		for _, rest := range segments[i+1:] {
			if rest != "" {
				parts = append(parts, rest)
			}
		}
		return path.Join(parts...)
	}
	return slashed
}

// toSlash converts both separator styles regardless of the host OS.
func toSlash(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}
