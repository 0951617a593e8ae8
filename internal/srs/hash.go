package srs

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // SRS is specified over HMAC-SHA1; not a general-purpose digest choice.
	"encoding/base64"
	"strings"
)

// foldASCII lowercases ASCII letters and passes every other byte through
// untouched, so verification succeeds regardless of MTAs that uppercase
// local parts or domains. Byte-wise and ASCII-only by design: a
// Unicode-aware fold (strings.ToLower) would also fold non-ASCII
// letters, producing a different HMAC input than the original's
// byte-wise isupper/tolower loop for any SMTPUTF8 address.
func foldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// sign computes HMAC-SHA1(secret, lower(fields[0]) || lower(fields[1]) || ...)
// and renders the first hashLength characters of its standard base64
// encoding (the "64-character alphabet A-Za-z0-9+/" the codec uses for
// signatures — distinct from the base32-hex alphabet internal/base32hex
// uses for alias-store keys).
func sign(secret []byte, hashLength int, fields ...string) string {
	mac := hmac.New(sha1.New, secret)
	for _, f := range fields {
		mac.Write([]byte(foldASCII(f)))
	}
	digest := mac.Sum(nil)
	encoded := base64.StdEncoding.EncodeToString(digest)
	if hashLength > len(encoded) {
		hashLength = len(encoded)
	}
	return encoded[:hashLength]
}

// verifyHash checks hash against every configured secret, trying the
// given fields under each in turn; the first match wins (key rotation
// safety). given must be at least hashMin characters, and only
// min(len(given), hashLength) characters are compared.
func verifyHash(secrets [][]byte, hashLength, hashMin int, given string, fields ...string) error {
	if len(given) < hashMin {
		return ErrHashTooShort
	}
	n := len(given)
	if n > hashLength {
		n = hashLength
	}
	for _, secret := range secrets {
		candidate := sign(secret, hashLength, fields...)
		if len(candidate) < n {
			continue
		}
		if strings.EqualFold(given[:n], candidate[:n]) {
			return nil
		}
	}
	return ErrHashInvalid
}
