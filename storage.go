package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/blocknetprivacy/proofledger/ledger"
)

// Bucket names
var (
	bucketBlocks  = []byte("blocks")  // height (big-endian) -> block JSON
	bucketPending = []byte("pending") // records -> JSON array of pending records
	bucketMeta    = []byte("meta")    // metadata: tip, height, difficulty, reward

	pendingKeyRecords = []byte("records")

	metaKeyTip        = []byte("tip")
	metaKeyHeight     = []byte("height")
	metaKeyDifficulty = []byte("difficulty")
	metaKeyReward     = []byte("reward")
)

// Storage wraps bbolt for chain persistence. It implements ledger.Store.
type Storage struct {
	db *bolt.DB
}

var _ ledger.Store = (*Storage)(nil)

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}

func readTipMeta(meta *bolt.Bucket) (hash string, height uint64, found bool, err error) {
	tipData := meta.Get(metaKeyTip)
	heightData := meta.Get(metaKeyHeight)

	if tipData == nil {
		if heightData != nil {
			return "", 0, false, fmt.Errorf("height metadata present without tip metadata")
		}
		return "", 0, false, nil
	}
	if len(tipData) != ledger.DigestSize {
		return "", 0, false, fmt.Errorf("invalid tip hash length: got %d", len(tipData))
	}
	if len(heightData) != 8 {
		return "", 0, false, fmt.Errorf("invalid tip height length: got %d", len(heightData))
	}

	return string(tipData), binary.BigEndian.Uint64(heightData), true, nil
}

// NewStorage opens or creates the chain database
func NewStorage(dataDir string) (*Storage, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultChainDBFilename)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		NoSync: false, // Ensure durability
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketPending, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to create buckets: %w (additionally failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.db.Path()
}

// ============================================================================
// ledger.Store
// ============================================================================

// Load returns every stored block in height order and the pending queue.
// The block bucket must be contiguous from height 0 and end at the tip.
func (s *Storage) Load() ([]*ledger.Block, []*ledger.Record, error) {
	var blocks []*ledger.Block
	var pending []*ledger.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		tipHash, tipHeight, found, err := readTipMeta(tx.Bucket(bucketMeta))
		if err != nil {
			return err
		}

		var expect uint64
		err = tx.Bucket(bucketBlocks).ForEach(func(k, v []byte) error {
			if len(k) != 8 || binary.BigEndian.Uint64(k) != expect {
				return fmt.Errorf("block index gap at height %d", expect)
			}
			block := &ledger.Block{}
			if err := json.Unmarshal(v, block); err != nil {
				return fmt.Errorf("failed to decode block %d: %w", expect, err)
			}
			blocks = append(blocks, block)
			expect++
			return nil
		})
		if err != nil {
			return err
		}

		if !found {
			if len(blocks) != 0 {
				return fmt.Errorf("%d blocks stored without tip metadata", len(blocks))
			}
			return nil
		}
		if uint64(len(blocks)) != tipHeight+1 {
			return fmt.Errorf("tip height %d does not match %d stored blocks", tipHeight, len(blocks))
		}
		if last := blocks[len(blocks)-1]; last.Hash != tipHash {
			return fmt.Errorf("tip hash %.16s does not match stored block %.16s", tipHash, last.Hash)
		}

		if data := tx.Bucket(bucketPending).Get(pendingKeyRecords); data != nil {
			if err := json.Unmarshal(data, &pending); err != nil {
				return fmt.Errorf("failed to decode pending records: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return blocks, pending, nil
}

// CommitBlock atomically writes a block at height, moves the tip and
// replaces the pending queue.
func (s *Storage) CommitBlock(height int, block *ledger.Block, pending []*ledger.Record) error {
	if block == nil {
		return fmt.Errorf("nil block in block commit")
	}
	if height < 0 {
		return fmt.Errorf("invalid commit height %d", height)
	}

	blockData, err := json.Marshal(block)
	if err != nil {
		return err
	}
	pendingData, err := marshalPending(pending)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		meta := tx.Bucket(bucketMeta)

		tipHash, tipHeight, found, err := readTipMeta(meta)
		if err != nil {
			return err
		}
		switch {
		case !found && height != 0:
			return fmt.Errorf("commit at height %d on empty store", height)
		case found && uint64(height) != tipHeight+1:
			return fmt.Errorf("commit height mismatch: commit=%d tip=%d", height, tipHeight)
		case found && block.PreviousHash != tipHash:
			return fmt.Errorf("commit block parent %.16s does not match tip %.16s", block.PreviousHash, tipHash)
		}

		if err := blocks.Put(heightKey(uint64(height)), blockData); err != nil {
			return err
		}
		if err := meta.Put(metaKeyTip, []byte(block.Hash)); err != nil {
			return err
		}
		if err := meta.Put(metaKeyHeight, heightKey(uint64(height))); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).Put(pendingKeyRecords, pendingData)
	})
}

// SavePending replaces the stored pending queue.
func (s *Storage) SavePending(pending []*ledger.Record) error {
	data, err := marshalPending(pending)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPending).Put(pendingKeyRecords, data)
	})
}

func marshalPending(pending []*ledger.Record) ([]byte, error) {
	if pending == nil {
		pending = []*ledger.Record{}
	}
	return json.Marshal(pending)
}

// ============================================================================
// Read helpers
// ============================================================================

// GetBlock retrieves the block at height. A missing block returns nil, nil.
func (s *Storage) GetBlock(height uint64) (*ledger.Block, error) {
	var block *ledger.Block

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlocks).Get(heightKey(height))
		if data == nil {
			return nil // Not found
		}
		block = &ledger.Block{}
		return json.Unmarshal(data, block)
	})

	return block, err
}

// GetTip returns the tip hash and height.
func (s *Storage) GetTip() (hash string, height uint64, found bool) {
	if err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		hash, height, found, err = readTipMeta(tx.Bucket(bucketMeta))
		return err
	}); err != nil {
		slog.Warn("storage GetTip view failed", "error", err)
		return "", 0, false
	}
	return
}

// GetDifficulty returns the difficulty the chain was created with.
func (s *Storage) GetDifficulty() (difficulty int, found bool, err error) {
	v, found, err := s.getMetaUint(metaKeyDifficulty)
	return int(v), found, err
}

// SetDifficulty records the chain difficulty.
func (s *Storage) SetDifficulty(difficulty int) error {
	if difficulty < 0 {
		return fmt.Errorf("invalid difficulty %d", difficulty)
	}
	return s.putMetaUint(metaKeyDifficulty, uint64(difficulty))
}

// GetReward returns the mining reward the chain was created with.
func (s *Storage) GetReward() (reward int64, found bool, err error) {
	v, found, err := s.getMetaUint(metaKeyReward)
	return int64(v), found, err
}

// SetReward records the mining reward.
func (s *Storage) SetReward(reward int64) error {
	if reward <= 0 {
		return fmt.Errorf("invalid mining reward %d", reward)
	}
	return s.putMetaUint(metaKeyReward, uint64(reward))
}

func (s *Storage) getMetaUint(key []byte) (v uint64, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(key)
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("invalid %s metadata length: got %d", key, len(data))
		}
		v = binary.BigEndian.Uint64(data)
		found = true
		return nil
	})
	return v, found, err
}

func (s *Storage) putMetaUint(key []byte, v uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(key, heightKey(v))
	})
}
