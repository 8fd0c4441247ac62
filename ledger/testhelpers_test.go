package ledger

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testDifficulty keeps seals fast while still exercising the search.
const testDifficulty = 2

func mustGenerateKey(t *testing.T) *PrivateKey {
	t.Helper()

	key, err := GenerateKey()
	require.NoError(t, err)
	return key
}

func mustSignedTransfer(t *testing.T, key *PrivateKey, to string, value int64) *Record {
	t.Helper()

	r := NewTransfer(key.Address(), to, value)
	require.NoError(t, r.Sign(key))
	return r
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func mustCreateTestChain(t *testing.T, difficulty int, store Store) *Chain {
	t.Helper()

	cfg := DefaultChainConfig()
	cfg.Difficulty = difficulty
	cfg.Store = store
	cfg.Logger = quietLogger()
	cfg.Now = fixedClock()

	chain, err := NewChain(cfg)
	require.NoError(t, err)
	return chain
}

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store that can be told to fail writes.
type memStore struct {
	mu         sync.Mutex
	blocks     []*Block
	pending    []*Record
	failCommit bool
	failSave   bool
	commits    int
}

func (s *memStore) Load() ([]*Block, []*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make([]*Block, len(s.blocks))
	for i, b := range s.blocks {
		blocks[i] = b.Clone()
	}
	pending := make([]*Record, len(s.pending))
	for i, r := range s.pending {
		pending[i] = r.Clone()
	}
	return blocks, pending, nil
}

func (s *memStore) CommitBlock(height int, block *Block, pending []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCommit {
		return errStoreDown
	}
	if height != len(s.blocks) {
		return errors.New("height does not extend tip")
	}
	s.blocks = append(s.blocks, block.Clone())
	s.pending = append([]*Record(nil), pending...)
	s.commits++
	return nil
}

func (s *memStore) SavePending(pending []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSave {
		return errStoreDown
	}
	s.pending = append([]*Record(nil), pending...)
	return nil
}
