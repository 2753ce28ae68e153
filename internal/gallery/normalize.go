package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentity turns a gallery folder name into the identity name reported in
// attendance records: NFC, underscores as spaces, single-spaced and trimmed.
func NormalizeIdentity(name string) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// IdentityKey folds a name for duplicate detection: two folders with the same key are
// the same person.
func IdentityKey(name string) string {
	return strings.ToLower(RemoveDiacritics(NormalizeIdentity(name)))
}
