package ledger

import (
	"fmt"
	"strconv"

	"github.com/blocknetprivacy/proofledger/protocol/params"
)

// RecordKind tags the two record variants.
type RecordKind string

const (
	// KindTransfer is a value transfer signed by its sender.
	KindTransfer RecordKind = "transfer"
	// KindReward is an unsigned, sender-less record issued by the chain to
	// whoever triggered mining.
	KindReward RecordKind = "reward"
)

// Record is a single value-transfer entry. Build one with NewTransfer or
// NewReward; validation rules depend on Kind, never on which fields happen
// to be empty.
type Record struct {
	Kind      RecordKind `json:"kind"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to"`
	Value     int64      `json:"value"`
	Signature string     `json:"signature,omitempty"`
}

// NewTransfer creates an unsigned transfer from one address to another.
func NewTransfer(from, to string, value int64) *Record {
	return &Record{Kind: KindTransfer, From: from, To: to, Value: value}
}

// NewReward creates a mining reward record paying value to address to.
func NewReward(to string, value int64) *Record {
	return &Record{Kind: KindReward, To: to, Value: value}
}

// IsReward reports whether the record is a system-issued reward.
func (r *Record) IsReward() bool {
	return r.Kind == KindReward
}

// Digest returns the hash of the sender, recipient and value. It is
// recomputed on every call.
func (r *Record) Digest() string {
	return Digest(r.From, r.To, strconv.FormatInt(r.Value, 10))
}

// Sign signs the record with key, which must be the sender's key. The
// signature is only written on success.
func (r *Record) Sign(key *PrivateKey) error {
	if r.IsReward() {
		return fmt.Errorf("%w: reward records are not signed", ErrKeyMismatch)
	}
	from, err := KeyFromPublic(r.From)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	if !key.Public().Equal(from) {
		return ErrKeyMismatch
	}

	sig, err := key.Sign(r.Digest())
	if err != nil {
		return fmt.Errorf("failed to sign record: %w", err)
	}
	r.Signature = sig
	return nil
}

// IsValid checks the record against the rules of its variant. Rewards are
// always valid when well-formed. Transfers need a signature and an in-range
// value, and then report whether the signature verifies against From.
func (r *Record) IsValid() (bool, error) {
	switch r.Kind {
	case KindReward:
		if r.From != "" || r.Signature != "" {
			return false, ErrMalformedReward
		}
		return true, nil
	case KindTransfer:
		if r.Signature == "" {
			return false, ErrMissingSignature
		}
		if r.Value < params.MinTransferValue || r.Value > params.MaxTransferValue {
			return false, fmt.Errorf("%w: %d not in [%d,%d]", ErrValueOutOfRange,
				r.Value, params.MinTransferValue, params.MaxTransferValue)
		}
		return VerifySignature(r.From, r.Digest(), r.Signature), nil
	default:
		return false, fmt.Errorf("unknown record kind %q", r.Kind)
	}
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

func (r *Record) String() string {
	if r.IsReward() {
		return fmt.Sprintf("reward(->%s, %d)", shortAddr(r.To), r.Value)
	}
	return fmt.Sprintf("transfer(%s->%s, %d)", shortAddr(r.From), shortAddr(r.To), r.Value)
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:12]
}
