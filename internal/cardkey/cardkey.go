// Package cardkey derives the identity of a card from its content.
package cardkey

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans one card field: surrounding whitespace is trimmed and
// line endings are normalized. Case is preserved, since two cards that
// differ only in case are distinct cards.
func Normalize(part string) string {
	p := strings.ReplaceAll(part, "\r\n", "\n")
	return strings.TrimSpace(p)
}

// Key returns the SHA-256 hex digest of the normalized question and answer.
func Key(question, answer string) string {
	// The NUL separator keeps ("ab", "c") and ("a", "bc") apart.
	normalized := Normalize(question) + "\x00" + Normalize(answer)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
