// Package base32hex implements the RFC 4648 base32-hex encoding used for
// alias-store keys. It is deliberately distinct from the 64-character
// alphabet the SRS codec uses for its signature (see internal/srs): the
// two encodings serve different wire formats and must not be unified.
package base32hex

import "encoding/base32"

// Encoding is the "0-9A-V" alphabet, padded with '=', as used to turn a
// SHA-1 digest into a 32-character alias-store key.
var Encoding = base32.HexEncoding

// Encode returns the base32-hex encoding of data.
func Encode(data []byte) string {
	return Encoding.EncodeToString(data)
}
