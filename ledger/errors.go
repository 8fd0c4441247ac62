package ledger

import "errors"

// Record errors
var (
	// ErrKeyMismatch is returned when a signing key does not belong to the
	// record's sender.
	ErrKeyMismatch = errors.New("signing key does not match record sender")

	// ErrMissingSignature is returned when a transfer record has no signature.
	ErrMissingSignature = errors.New("record has no signature")

	// ErrValueOutOfRange is returned when a transfer value is outside the
	// accepted bounds.
	ErrValueOutOfRange = errors.New("record value out of range")

	// ErrMalformedReward is returned for a reward record that carries a
	// sender or a signature.
	ErrMalformedReward = errors.New("reward record carries sender or signature")
)

// Admission errors
var (
	ErrIncompleteRecord = errors.New("record must include from and to address")
	ErrInvalidRecord    = errors.New("cannot add invalid record to chain")
)

// Chain errors
var (
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidReward     = errors.New("mining reward must be positive")
	ErrNonceExhausted    = errors.New("nonce search space exhausted")

	ErrGenesisMismatch   = errors.New("genesis block does not match")
	ErrBlockRecords      = errors.New("block contains invalid records")
	ErrBlockHashMismatch = errors.New("block hash does not match its contents")
	ErrInsufficientWork  = errors.New("block hash does not meet difficulty")
	ErrBrokenLink        = errors.New("block does not link to previous block")
)
