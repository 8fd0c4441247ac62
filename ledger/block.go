package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/blocknetprivacy/proofledger/protocol/params"
)

// Block is an ordered batch of records sealed by proof of work.
type Block struct {
	PreviousHash string    `json:"previous_hash"`
	Timestamp    int64     `json:"timestamp"` // Unix milliseconds
	Records      []*Record `json:"records"`
	Nonce        uint64    `json:"nonce"`
	Hash         string    `json:"hash"`
}

// NewBlock creates an unsealed block. An empty previousHash is replaced by
// the genesis sentinel. The hash is computed immediately with nonce 0.
func NewBlock(timestamp time.Time, records []*Record, previousHash string) *Block {
	if previousHash == "" {
		previousHash = params.GenesisPrevHash
	}
	if records == nil {
		records = []*Record{}
	}
	b := &Block{
		PreviousHash: previousHash,
		Timestamp:    timestamp.UnixMilli(),
		Records:      records,
	}
	b.Hash = b.CalculateHash()
	return b
}

// GenesisBlock returns the fixed first block every chain starts from.
func GenesisBlock() *Block {
	return NewBlock(time.UnixMilli(params.GenesisTimestampMillis), nil, params.GenesisPrevHash)
}

// recordsJSON is the canonical serialization of the record list used in
// the block hash.
func (b *Block) recordsJSON() string {
	records := b.Records
	if records == nil {
		records = []*Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		// Records hold only strings and integers.
		panic(fmt.Sprintf("ledger: marshal records: %v", err))
	}
	return string(data)
}

// CalculateHash recomputes the block hash from its previous hash,
// timestamp, records and nonce.
func (b *Block) CalculateHash() string {
	return b.hashWith(b.recordsJSON(), b.Nonce)
}

func (b *Block) hashWith(recordsJSON string, nonce uint64) string {
	return Digest(
		b.PreviousHash,
		strconv.FormatInt(b.Timestamp, 10),
		recordsJSON,
		strconv.FormatUint(nonce, 10),
	)
}

// MeetsDifficulty reports whether the stored hash carries difficulty
// leading zeros.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	return HashMeetsDifficulty(b.Hash, difficulty)
}

// Mine searches nonces upward from the current one until the hash meets
// difficulty. It blocks until a solution is found.
func (b *Block) Mine(difficulty int) {
	// Background is never cancelled and the full nonce space is searched.
	_ = b.MineContext(context.Background(), difficulty)
}

// MineContext is Mine with cancellation. If ctx ends first the block's
// nonce and hash are left as they were and ctx.Err() is returned.
func (b *Block) MineContext(ctx context.Context, difficulty int) error {
	records := b.recordsJSON()
	nonce := b.Nonce
	hash := b.hashWith(records, nonce)

	for i := uint64(0); !HashMeetsDifficulty(hash, difficulty); i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if nonce == math.MaxUint64 {
			return ErrNonceExhausted
		}
		nonce++
		hash = b.hashWith(records, nonce)
	}

	b.Nonce = nonce
	b.Hash = hash
	return nil
}

// HasValidRecords reports whether every record in the block is valid. The
// reason for a failure is not returned.
func (b *Block) HasValidRecords() bool {
	for _, r := range b.Records {
		if ok, err := r.IsValid(); err != nil || !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	c := *b
	c.Records = make([]*Record, len(b.Records))
	for i, r := range b.Records {
		c.Records[i] = r.Clone()
	}
	return &c
}
