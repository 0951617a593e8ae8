// Package srs implements the Sender Rewriting Scheme codec: the
// HMAC-SHA1-keyed, timestamped forward/reverse transform on email
// addresses described by the SRS0/SRS1 wire forms.
package srs

import (
	"errors"
	"time"
)

// Codec rewrites envelope senders into SRS form and reverses them. The
// zero value is not ready to use; construct with New.
type Codec struct {
	// Secrets is a non-empty ordered list of signing/verification keys.
	// Position 0 signs new tokens; every position is tried on verify, so
	// that key rotation (demoting an old secret to position 1+) keeps
	// existing tokens valid.
	Secrets [][]byte

	// Separator is one of '=', '+', '-'. Defaults to '='.
	Separator byte

	// HashLength is the number of signature characters emitted. Defaults
	// to 4.
	HashLength int

	// HashMin is the minimum signature length accepted on verify.
	// Defaults to HashLength.
	HashMin int

	// AlwaysRewrite disables the local-domain pass-through shortcut in
	// Forward: when false, forwarding a sender whose domain already
	// equals aliasDomain returns it unchanged.
	AlwaysRewrite bool

	// NoForward, when true, makes Forward always return ErrNotRewritten.
	NoForward bool
	// NoReverse, when true, makes Reverse always return ErrNotRewritten
	// once the address has been recognized as an SRS address.
	NoReverse bool

	// MaxAge is the freshness window, in SRS timestamp units of one day.
	// Defaults to 21.
	MaxAge int

	// Now returns the current time; override in tests for deterministic
	// timestamps (the "faketime" testing hook).
	Now func() time.Time

	defaultsApplied bool
}

// New constructs a Codec with the given secret as the sole, signing
// secret. Additional accepted-for-verify secrets can be appended to
// Secrets directly, or via AddSecret.
func New(secret []byte) *Codec {
	return &Codec{Secrets: [][]byte{secret}}
}

// AddSecret appends a secret to the verification list. The first secret
// ever added is the signing secret.
func (c *Codec) AddSecret(secret []byte) {
	c.Secrets = append(c.Secrets, secret)
}

// Zero overwrites every secret's backing array with zero bytes. Call
// this on shutdown so a signing key does not linger in memory.
func (c *Codec) Zero() {
	for _, s := range c.Secrets {
		for i := range s {
			s[i] = 0
		}
	}
}

func (c *Codec) setDefaults() {
	if c.defaultsApplied {
		return
	}
	switch c.Separator {
	case '=', '+', '-':
	default:
		c.Separator = '='
	}
	if c.HashLength == 0 {
		c.HashLength = 4
	}
	if c.HashMin == 0 {
		c.HashMin = c.HashLength
	}
	if c.MaxAge == 0 {
		c.MaxAge = 21
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.defaultsApplied = true
}

// ErrNoSecrets is returned by Forward when no secret has been configured.
var ErrNoSecrets = errors.New("srs: no secrets configured")

func (c *Codec) validate() error {
	c.setDefaults()
	if len(c.Secrets) == 0 || len(c.Secrets[0]) == 0 {
		return ErrNoSecrets
	}
	if c.HashMin > c.HashLength || c.HashLength > 20 {
		return errors.New("srs: hashmin must be <= hashlength <= 20")
	}
	return nil
}
