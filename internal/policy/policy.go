// Package policy decides when to rewrite an envelope address and wires
// the SRS codec together with the local-domain trie and the optional
// alias store: the "what to rewrite" layer sitting above the "how to
// rewrite" codec in internal/srs.
package policy

import (
	"context"
	"crypto/sha1" //nolint:gosec // alias keys, not a security boundary: a random-looking short token
	"errors"
	"strings"
	"time"

	"github.com/postsrsd/postsrsd-go/internal/aliasstore"
	"github.com/postsrsd/postsrsd-go/internal/base32hex"
	"github.com/postsrsd/postsrsd-go/internal/domaintrie"
	"github.com/postsrsd/postsrsd-go/internal/srs"
)

// aliasHostMarker is the synthetic domain placed on an alias-indirected
// address, distinguishing it from a regular host when reversed.
const aliasHostMarker = "1"

// ErrNoDatabaseForAlias is returned by Reverse when an address decodes
// to an alias-store indirection but no store is configured.
var ErrNoDatabaseForAlias = errors.New("No database for alias.")

// Policy ties an SRS codec, the set of locally-owned domains, and an
// optional alias store into the forward/reverse decisions made at the
// envelope-sender rewrite point.
type Policy struct {
	Codec   *srs.Codec
	Domains *domaintrie.Trie
	Store   aliasstore.Store // nil disables alias indirection
	MaxAge  int              // days; mirrors Codec.MaxAge, used for alias record lifetime
}

// Forward decides whether addr should be rewritten for srsHome. It
// returns the result address (empty if none), an info string suitable
// for logging, and an error for failures (as opposed to deliberate
// pass-through, which is success with a non-empty info).
func (p *Policy) Forward(ctx context.Context, addr, srsHome string) (result, info string, err error) {
	at := strings.IndexByte(addr, '@')
	if at < 0 {
		return "", "No domain.", nil
	}
	domain := addr[at+1:]
	if p.Domains != nil && p.Domains.Contains(domain) {
		return "", "Need not rewrite local domain.", nil
	}

	sender := addr
	if p.Store != nil && !srs.IsSRSAddress(addr[:at]) {
		key := aliasKey(addr)
		if err := p.Store.Write(ctx, key, addr, time.Duration(p.MaxAge)*24*time.Hour); err != nil {
			return "", "", err
		}
		sender = key + "@" + aliasHostMarker
	}

	rewritten, err := p.Codec.Forward(sender, srsHome)
	if err != nil {
		return "", "", err
	}
	return rewritten, "Rewritten.", nil
}

// Reverse decodes addr, resolving alias-store indirection transparently.
func (p *Policy) Reverse(ctx context.Context, addr string) (string, error) {
	inner, err := p.Codec.Reverse(addr)
	if err != nil {
		return "", err
	}
	at := strings.IndexByte(inner, '@')
	if at < 0 || inner[at+1:] != aliasHostMarker {
		return inner, nil
	}
	if p.Store == nil {
		return "", ErrNoDatabaseForAlias
	}
	key := strings.ToUpper(inner[:at])
	original, err := p.Store.Read(ctx, key)
	if err != nil {
		return "", err
	}
	return original, nil
}

// aliasKey computes the alias-store key for addr: the SHA-1 digest of
// the address, base32-hex encoded, to 32 characters.
func aliasKey(addr string) string {
	digest := sha1.Sum([]byte(addr))
	return base32hex.Encode(digest[:])
}

// ErrorClass is the wire-reply class a Forward/Reverse error maps to,
// per spec's error handling design: the policy layer tags each closed
// set of codec/store errors so the wire layer never has to inspect
// error internals itself.
type ErrorClass int

const (
	// ClassNotFound: the input did not need (or cannot receive) a
	// rewrite — reverse on a non-SRS address, an expired/absent alias
	// record. Answered NOTFOUND; the connection stays open.
	ClassNotFound ErrorClass = iota
	// ClassPerm: the request itself is malformed or invalid and no
	// retry will change that — a bad signature, a stale timestamp, a
	// missing sender domain, a missing alias-store configuration.
	// Answered PERM; the connection stays open.
	ClassPerm
	// ClassTemp: a backend (alias store) failed in a way a retry might
	// resolve. Answered TEMP; the connection stays open.
	ClassTemp
)

// permErrors collects every codec and policy error that represents a
// malformed or invalid request rather than a transient backend failure.
var permErrors = []error{
	srs.ErrNoSenderAtSign,
	srs.ErrSeparatorInvalid,
	srs.ErrNoSRS0Hash,
	srs.ErrNoSRS0Stamp,
	srs.ErrNoSRS0Host,
	srs.ErrNoSRS0User,
	srs.ErrNoSRS1Hash,
	srs.ErrNoSRS1Host,
	srs.ErrNoSRS1User,
	srs.ErrBadTimestampChar,
	srs.ErrTimestampOutOfDate,
	srs.ErrHashTooShort,
	srs.ErrHashInvalid,
	srs.ErrNoSecrets,
	ErrNoDatabaseForAlias,
}

// Classify maps a Forward/Reverse error to the wire-reply class it
// belongs to. Any error not recognized as a closed-set codec/policy
// error (in particular, any error surfaced by Store.Read/Store.Write
// other than aliasstore.ErrNotFound) is presumed to be a backend
// failure and classified transient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNotFound
	}
	if errors.Is(err, aliasstore.ErrNotFound) || errors.Is(err, srs.ErrNotSRSAddress) || errors.Is(err, srs.ErrNotRewritten) {
		return ClassNotFound
	}
	for _, p := range permErrors {
		if errors.Is(err, p) {
			return ClassPerm
		}
	}
	return ClassTemp
}
