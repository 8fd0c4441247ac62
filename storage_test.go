package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/blocknetprivacy/proofledger/ledger"
)

const testDifficulty = 1

func mustOpenStorage(t *testing.T, dir string) *Storage {
	t.Helper()

	s, err := NewStorage(dir)
	require.NoError(t, err)
	return s
}

func mustOpenChain(t *testing.T, s *Storage) *ledger.Chain {
	t.Helper()

	cfg := ledger.DefaultChainConfig()
	cfg.Difficulty = testDifficulty
	cfg.Store = s
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	chain, err := ledger.NewChain(cfg)
	require.NoError(t, err)
	return chain
}

func mustSignedTransfer(t *testing.T, from *ledger.PrivateKey, to string, value int64) *ledger.Record {
	t.Helper()

	r := ledger.NewTransfer(from.Address(), to, value)
	require.NoError(t, r.Sign(from))
	return r
}

func TestStorage_EmptyLoad(t *testing.T) {
	s := mustOpenStorage(t, t.TempDir())
	defer s.Close()

	blocks, pending, err := s.Load()
	require.NoError(t, err)
	require.Empty(t, blocks)
	require.Empty(t, pending)

	_, _, found := s.GetTip()
	require.False(t, found)
}

func TestStorage_ChainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	alice, err := ledger.GenerateKey()
	require.NoError(t, err)
	bob, err := ledger.GenerateKey()
	require.NoError(t, err)

	s := mustOpenStorage(t, dir)
	chain := mustOpenChain(t, s)
	require.NoError(t, chain.AddRecord(mustSignedTransfer(t, alice, bob.Address(), 4)))
	require.NoError(t, chain.MinePendingRecords(alice.Address()))
	require.NoError(t, chain.AddRecord(mustSignedTransfer(t, bob, alice.Address(), 2)))

	wantBlocks := chain.Blocks()
	wantPending := chain.Pending()
	require.NoError(t, s.Close())

	s = mustOpenStorage(t, dir)
	defer s.Close()

	hash, height, found := s.GetTip()
	require.True(t, found)
	require.Equal(t, uint64(1), height)
	require.Equal(t, wantBlocks[1].Hash, hash)

	reloaded := mustOpenChain(t, s)
	require.True(t, reloaded.IsChainValid())
	require.Equal(t, wantBlocks, reloaded.Blocks())
	require.Equal(t, wantPending, reloaded.Pending())
	require.Equal(t, int64(4), reloaded.BalanceOfAddress(bob.Address()))

	stored, err := s.GetBlock(1)
	require.NoError(t, err)
	require.Equal(t, wantBlocks[1], stored)

	missing, err := s.GetBlock(7)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStorage_CommitBlockChecksHeightAndParent(t *testing.T) {
	s := mustOpenStorage(t, t.TempDir())
	defer s.Close()

	genesis := ledger.GenesisBlock()
	require.Error(t, s.CommitBlock(1, genesis, nil), "first commit must be height 0")
	require.NoError(t, s.CommitBlock(0, genesis, nil))

	next := ledger.NewBlock(time.Now(), nil, genesis.Hash)
	require.Error(t, s.CommitBlock(2, next, nil), "height gap")
	require.Error(t, s.CommitBlock(0, next, nil), "height rewrite")

	orphan := ledger.NewBlock(time.Now(), nil, next.Hash)
	require.Error(t, s.CommitBlock(1, orphan, nil), "parent must be the tip")

	require.NoError(t, s.CommitBlock(1, next, []*ledger.Record{ledger.NewReward("aa", 5)}))

	blocks, pending, err := s.Load()
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, []*ledger.Record{ledger.NewReward("aa", 5)}, pending)
}

func TestStorage_SavePendingReplacesQueue(t *testing.T) {
	s := mustOpenStorage(t, t.TempDir())
	defer s.Close()
	require.NoError(t, s.CommitBlock(0, ledger.GenesisBlock(), nil))

	require.NoError(t, s.SavePending([]*ledger.Record{ledger.NewReward("aa", 1), ledger.NewReward("bb", 2)}))
	require.NoError(t, s.SavePending([]*ledger.Record{ledger.NewReward("cc", 3)}))

	_, pending, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, []*ledger.Record{ledger.NewReward("cc", 3)}, pending)

	require.NoError(t, s.SavePending(nil))
	_, pending, err = s.Load()
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestStorage_DifficultyMetadata(t *testing.T) {
	s := mustOpenStorage(t, t.TempDir())
	defer s.Close()

	_, found, err := s.GetDifficulty()
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.SetDifficulty(3))
	d, found, err := s.GetDifficulty()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 3, d)

	require.Error(t, s.SetDifficulty(-1))
}

func TestStorage_RewardMetadata(t *testing.T) {
	dir := t.TempDir()
	s := mustOpenStorage(t, dir)

	_, found, err := s.GetReward()
	require.NoError(t, err)
	require.False(t, found)

	require.Error(t, s.SetReward(0))
	require.NoError(t, s.SetReward(12))
	require.NoError(t, s.Close())

	s = mustOpenStorage(t, dir)
	defer s.Close()
	reward, found, err := s.GetReward()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(12), reward)

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaKeyReward, []byte{1})
	})
	require.NoError(t, err)
	_, _, err = s.GetReward()
	require.Error(t, err)
}

func TestStorage_TamperedStateDetectedOnLoad(t *testing.T) {
	alice, err := ledger.GenerateKey()
	require.NoError(t, err)

	t.Run("genesis rewritten", func(t *testing.T) {
		dir := t.TempDir()
		s := mustOpenStorage(t, dir)
		chain := mustOpenChain(t, s)
		require.NoError(t, chain.MinePendingRecords(alice.Address()))

		rewriteBlock(t, s, 0, func(b *ledger.Block) { b.Timestamp++ })

		cfg := ledger.DefaultChainConfig()
		cfg.Difficulty = testDifficulty
		cfg.Store = s
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		_, err := ledger.NewChain(cfg)
		require.ErrorIs(t, err, ledger.ErrGenesisMismatch)
		require.NoError(t, s.Close())
	})

	t.Run("record value rewritten", func(t *testing.T) {
		dir := t.TempDir()
		s := mustOpenStorage(t, dir)
		chain := mustOpenChain(t, s)
		require.NoError(t, chain.AddRecord(mustSignedTransfer(t, alice, "bb", 1)))
		require.NoError(t, chain.MinePendingRecords(alice.Address()))

		rewriteBlock(t, s, 1, func(b *ledger.Block) { b.Records[0].Value = 5 })

		cfg := ledger.DefaultChainConfig()
		cfg.Difficulty = testDifficulty
		cfg.Store = s
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		_, err := ledger.NewChain(cfg)
		require.ErrorIs(t, err, ledger.ErrBlockRecords)
		require.NoError(t, s.Close())
	})

	t.Run("tip metadata mismatch", func(t *testing.T) {
		s := mustOpenStorage(t, t.TempDir())
		defer s.Close()
		require.NoError(t, s.CommitBlock(0, ledger.GenesisBlock(), nil))

		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketMeta).Put(metaKeyHeight, heightKey(5))
		})
		require.NoError(t, err)

		_, _, err = s.Load()
		require.Error(t, err)
	})
}

// rewriteBlock edits a stored block in place without touching its hash or
// the tip metadata.
func rewriteBlock(t *testing.T, s *Storage, height uint64, edit func(*ledger.Block)) {
	t.Helper()

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlocks)
		data := bucket.Get(heightKey(height))
		if data == nil {
			return errors.New("block not found")
		}
		var b ledger.Block
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		edit(&b)
		out, err := json.Marshal(&b)
		if err != nil {
			return err
		}
		return bucket.Put(heightKey(height), out)
	})
	require.NoError(t, err)
}
