package tx

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ContentID derives an identifier from the payload bytes.
// Used when a client submits a transaction without an id.
func ContentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NormalizeID canonicalises a client-supplied identifier.
//
// Surrounding whitespace is dropped and the string is put in Unicode NFC so
// that visually identical ids compare equal byte-for-byte in the store.
func NormalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}
