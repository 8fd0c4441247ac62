package ledger

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blocknetprivacy/proofledger/protocol/params"
)

func TestHashMeetsDifficulty(t *testing.T) {
	cases := []struct {
		hash       string
		difficulty int
		want       bool
	}{
		{"00ab", 2, true},
		{"00ab", 3, false},
		{"0a0b", 2, false},
		{"abcd", 0, true},
		{"abcd", -1, true},
		{"00", 3, false},
		{"000", 3, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HashMeetsDifficulty(tc.hash, tc.difficulty), "%s/%d", tc.hash, tc.difficulty)
	}
}

func TestNewBlock_ComputesHashWithNonceZero(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	records := []*Record{NewReward("aa", 5)}

	b := NewBlock(ts, records, "")
	require.Equal(t, params.GenesisPrevHash, b.PreviousHash)
	require.Equal(t, int64(1700000000123), b.Timestamp)
	require.Zero(t, b.Nonce)
	require.Equal(t, b.CalculateHash(), b.Hash)

	want := Digest("0", "1700000000123", `[{"kind":"reward","to":"aa","value":5}]`, "0")
	require.Equal(t, want, b.Hash)
}

func TestGenesisBlock_IsFixed(t *testing.T) {
	a, b := GenesisBlock(), GenesisBlock()
	require.Equal(t, a.Hash, b.Hash)
	require.Empty(t, a.Records)
	require.Equal(t, params.GenesisPrevHash, a.PreviousHash)
	require.Equal(t, params.GenesisTimestampMillis, a.Timestamp)
	require.Equal(t, Digest("0", strconv.FormatInt(params.GenesisTimestampMillis, 10), "[]", "0"), a.Hash)
}

func TestBlockMine_FindsMinimalNonce(t *testing.T) {
	b := NewBlock(time.UnixMilli(1700000000000), nil, "prev")
	b.Mine(testDifficulty)

	require.True(t, b.MeetsDifficulty(testDifficulty))
	require.Equal(t, b.CalculateHash(), b.Hash)

	probe := b.Clone()
	for n := uint64(0); n < b.Nonce; n++ {
		probe.Nonce = n
		require.False(t, HashMeetsDifficulty(probe.CalculateHash(), testDifficulty), "nonce %d also solves", n)
	}
}

func TestBlockMineContext_CancelledLeavesBlockUntouched(t *testing.T) {
	b := NewBlock(time.UnixMilli(1700000000000), nil, "prev")
	hash := b.Hash

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Difficulty 64 is never met in practice; the search only ends on ctx.
	err := b.MineContext(ctx, params.MaxDifficulty)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, b.Nonce)
	require.Equal(t, hash, b.Hash)
}

func TestBlockHasValidRecords(t *testing.T) {
	sender := mustGenerateKey(t)
	recipient := mustGenerateKey(t)

	good := mustSignedTransfer(t, sender, recipient.Address(), 2)
	b := NewBlock(time.Now(), []*Record{NewReward(sender.Address(), 5), good}, "prev")
	require.True(t, b.HasValidRecords())

	unsigned := NewTransfer(sender.Address(), recipient.Address(), 2)
	b = NewBlock(time.Now(), []*Record{good, unsigned}, "prev")
	require.False(t, b.HasValidRecords())

	forged := good.Clone()
	forged.Value = 5
	b = NewBlock(time.Now(), []*Record{forged}, "prev")
	require.False(t, b.HasValidRecords())

	require.True(t, NewBlock(time.Now(), nil, "prev").HasValidRecords())
}

func TestBlockClone_IsDeep(t *testing.T) {
	b := NewBlock(time.Now(), []*Record{NewReward("aa", 5)}, "prev")
	c := b.Clone()
	c.Records[0].Value = 7
	require.Equal(t, int64(5), b.Records[0].Value)
}
