package internal

import (
	"strings"

	"github.com/kennygrant/sanitize"
	"github.com/lithammer/shortuuid/v4"
)

// SanitizeFolder reduces a caller-supplied folder to lowercase path segments
// of [a-z0-9_-], collapsing repeated separators and stripping leading and
// trailing ones. Accented characters are transliterated first; dots never
// survive, so neither does "..".
func SanitizeFolder(folder string) string {
	var segments []string
	for _, seg := range strings.Split(folder, "/") {
		seg = strings.ToLower(sanitize.Accents(seg))
		seg = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
				return r
			}
			return -1
		}, seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return strings.Join(segments, "/")
}

// BuildKeyBase derives the storage prefix for one uploaded file: the
// sanitized folder plus a freshly generated unique leaf. Two calls never
// collide; the leaf is a full uuid in base57.
func BuildKeyBase(folder string) string {
	id := shortuuid.New()
	if clean := SanitizeFolder(folder); clean != "" {
		return clean + "/" + id
	}
	return id
}
