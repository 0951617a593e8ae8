package srs

import "errors"

// Error taxonomy for SRS parsing, verification and policy decisions. Each
// is surfaced with a stable textual description on the wire and in logs,
// per the daemon's error handling design.
var (
	ErrNotSRSAddress       = errors.New("not an SRS address")
	ErrNoSenderAtSign      = errors.New("no at sign in sender address")
	ErrNotRewritten        = errors.New("not rewritten")
	ErrSeparatorInvalid    = errors.New("invalid separator suggested")
	ErrNoSRS0Hash          = errors.New("no hash in SRS0 address")
	ErrNoSRS0Stamp         = errors.New("no timestamp in SRS0 address")
	ErrNoSRS0Host          = errors.New("no host in SRS0 address")
	ErrNoSRS0User          = errors.New("no user in SRS0 address")
	ErrNoSRS1Hash          = errors.New("no hash in SRS1 address")
	ErrNoSRS1Host          = errors.New("no host in SRS1 address")
	ErrNoSRS1User          = errors.New("no user in SRS1 address")
	ErrBadTimestampChar    = errors.New("bad base32 character in timestamp")
	ErrTimestampOutOfDate  = errors.New("time stamp out of date")
	ErrHashTooShort        = errors.New("hash too short in SRS address")
	ErrHashInvalid         = errors.New("hash invalid in SRS address")
)
