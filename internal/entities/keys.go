package entities

import "strings"

// ReplaceVariant rewrites a stored key to address a different variant of the
// same asset. Callers persist one canonical key and derive the rest by
// suffix substitution, so this must handle any member of the suffix table.
func ReplaceVariant(key string, variant VariantName) string {
	if !variant.Valid() {
		return key
	}

	base := key
	ext := ""
	if i := strings.LastIndex(key, "."); i > strings.LastIndex(key, "/") {
		base, ext = key[:i], key[i:]
	}

	for _, suffix := range variantSuffixes {
		if strings.HasSuffix(base, suffix) {
			base = strings.TrimSuffix(base, suffix)
			break
		}
	}

	if ext == "" {
		ext = "." + CanonicalExt
	}
	return base + variant.Suffix() + ext
}
