package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText lower-cases text, collapses whitespace runs to one space and
// trims both ends. Extraction noise such as reflowed lines or changed
// casing therefore does not change the content hash.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Digest returns the hex sha256 of normalized text.
func Digest(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ContentHash is Digest(NormalizeText(text)).
func ContentHash(text string) string {
	return Digest(NormalizeText(text))
}
