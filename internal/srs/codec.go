package srs

import "strings"

// separators are the three characters legal as the tag separator
// (immediately after "SRS0" or "SRS1"). Every other field within an SRS0
// or SRS1 address is joined by a literal '=', regardless of this choice.
const separators = "=+-"

// IsSRSAddress reports whether a local part looks like an SRS address:
// it starts with "SRS0" or "SRS1", case-insensitively, followed by one
// of '=', '+', '-'.
func IsSRSAddress(local string) bool {
	_, _, ok := srsTag(local)
	return ok
}

// srsTag detects and returns the 4-character tag ("SRS0" or "SRS1",
// upper-cased) and the separator byte that follows it.
func srsTag(local string) (tag string, sep byte, ok bool) {
	if len(local) < 5 {
		return "", 0, false
	}
	prefix := strings.ToUpper(local[:4])
	if prefix != "SRS0" && prefix != "SRS1" {
		return "", 0, false
	}
	sep = local[4]
	if !strings.ContainsRune(separators, rune(sep)) {
		return "", 0, false
	}
	return prefix, sep, true
}

// splitAddress splits addr at its first '@' into local part and domain.
func splitAddress(addr string) (local, domain string, ok bool) {
	i := strings.IndexByte(addr, '@')
	if i < 0 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}

// Forward rewrites sender into SRS form addressed at aliasDomain, the
// domain this daemon hosts synthetic SRS addresses under. See
// internal/srs package doc and spec §4.6.3 for the full state machine.
func (c *Codec) Forward(sender, aliasDomain string) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}
	if c.NoForward {
		return "", ErrNotRewritten
	}
	local, domain, ok := splitAddress(sender)
	if !ok {
		return "", ErrNoSenderAtSign
	}
	if !c.AlwaysRewrite && strings.EqualFold(domain, aliasDomain) {
		return sender, nil
	}

	tag, _, isSRS := srsTag(local)
	switch {
	case isSRS && tag == "SRS0":
		// Wrap an already-SRS0 sender in an SRS1 layer: the first hop is
		// the domain that produced it, the opaque tail is everything
		// after the "SRS0" tag, including its own separator character.
		firstHop := domain
		opaque := local[4:]
		hash := sign(c.Secrets[0], c.HashLength, firstHop, opaque)
		return "SRS1" + string(c.Separator) + hash + "=" + firstHop + "=" + opaque + "@" + aliasDomain, nil

	case isSRS && tag == "SRS1":
		_, firstHop, opaque, err := parseSRS1(local)
		if err != nil {
			return "", err
		}
		hash := sign(c.Secrets[0], c.HashLength, firstHop, opaque)
		return "SRS1" + string(c.Separator) + hash + "=" + firstHop + "=" + opaque + "@" + aliasDomain, nil

	default:
		tt := encodeTimestamp(dayCounter(c.Now()))
		hash := sign(c.Secrets[0], c.HashLength, tt, domain, local)
		return "SRS0" + string(c.Separator) + hash + "=" + tt + "=" + domain + "=" + local + "@" + aliasDomain, nil
	}
}

// Reverse recovers the original address from an SRS0 or SRS1 address.
// See spec §4.6.4.
func (c *Codec) Reverse(addr string) (string, error) {
	c.setDefaults()
	local, _, ok := splitAddress(addr)
	if !ok {
		return "", ErrNotSRSAddress
	}
	tag, _, isSRS := srsTag(local)
	if !isSRS {
		return "", ErrNotSRSAddress
	}
	if c.NoReverse {
		return "", ErrNotRewritten
	}
	if len(c.Secrets) == 0 {
		return "", ErrNoSecrets
	}

	if tag == "SRS1" {
		hash, firstHop, opaque, err := parseSRS1(local)
		if err != nil {
			return "", err
		}
		if err := verifyHash(c.Secrets, c.HashLength, c.HashMin, hash, firstHop, opaque); err != nil {
			return "", err
		}
		return "SRS0" + opaque + "@" + firstHop, nil
	}

	hash, tt, domain, user, err := parseSRS0Fields(local)
	if err != nil {
		return "", err
	}
	if err := checkFreshness(c.Now(), tt, c.MaxAge); err != nil {
		return "", err
	}
	if err := verifyHash(c.Secrets, c.HashLength, c.HashMin, hash, tt, domain, user); err != nil {
		return "", err
	}
	return user + "@" + domain, nil
}

// parseSRS0Fields splits the local part of an SRS0 address (tag and
// separator already detected) into its hash, timestamp, original domain
// and original user fields.
func parseSRS0Fields(local string) (hash, tt, domain, user string, err error) {
	rest := local[5:]
	parts := strings.SplitN(rest, "=", 4)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", "", "", ErrNoSRS0Hash
	}
	hash = parts[0]
	if len(parts) < 2 {
		return "", "", "", "", ErrNoSRS0Stamp
	}
	tt = parts[1]
	if len(parts) < 3 {
		return "", "", "", "", ErrNoSRS0Host
	}
	domain = parts[2]
	if len(parts) < 4 {
		return "", "", "", "", ErrNoSRS0User
	}
	user = parts[3]
	return hash, tt, domain, user, nil
}

// parseSRS1 splits the local part of an SRS1 address (tag and separator
// already detected) into its hash, first-hop host, and opaque tail. The
// opaque tail retains its own leading field separator, which is how
// "SRS1<sep><hash>=<first-hop>==<opaque>" parses to an "=<opaque>" that
// reassembles cleanly back onto "SRS0".
func parseSRS1(local string) (hash, firstHop, opaque string, err error) {
	rest := local[5:]
	parts := strings.SplitN(rest, "=", 3)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", "", ErrNoSRS1Hash
	}
	hash = parts[0]
	if len(parts) < 2 {
		return "", "", "", ErrNoSRS1Host
	}
	firstHop = parts[1]
	if len(parts) < 3 {
		return "", "", "", ErrNoSRS1User
	}
	opaque = parts[2]
	return hash, firstHop, opaque, nil
}
