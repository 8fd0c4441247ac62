package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"

	"github.com/blocknetprivacy/proofledger/ledger"
	"github.com/blocknetprivacy/proofledger/wallet"
)

const testPassword = "pw-for-tests"

func TestMain(m *testing.M) {
	pterm.DisableOutput()
	os.Exit(m.Run())
}

func testCLIConfig(t *testing.T, dataDir string) CLIConfig {
	t.Helper()

	cfg := DefaultCLIConfig()
	cfg.DataDir = dataDir
	cfg.Difficulty = testDifficulty
	cfg.NoColor = true
	cfg.KDF = wallet.KDFParams{Time: 1, Memory: 1024, Threads: 1}
	cfg.Stdin = strings.NewReader("")
	return cfg
}

func runCLI(t *testing.T, cfg CLIConfig, args ...string) error {
	t.Helper()

	cli := NewCLI(cfg)
	err := cli.Run(args)
	require.NoError(t, cli.Close())
	return err
}

func TestCLI_KeygenSendMineRoundTrip(t *testing.T) {
	t.Setenv(PasswordEnv, testPassword)

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	aliceKey := filepath.Join(dir, "alice.key")
	bobKey := filepath.Join(dir, "bob.key")
	cfg := testCLIConfig(t, dataDir)

	require.NoError(t, runCLI(t, cfg, "keygen", "-key", aliceKey))
	require.NoError(t, runCLI(t, cfg, "keygen", "-key", bobKey))
	require.Error(t, runCLI(t, cfg, "keygen", "-key", bobKey), "existing key file must not be replaced")

	alice, err := wallet.LoadWallet(aliceKey, []byte(testPassword))
	require.NoError(t, err)
	defer alice.Close()
	bob, err := wallet.LoadWallet(bobKey, []byte(testPassword))
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, runCLI(t, cfg, "address", "-key", aliceKey))
	require.NoError(t, runCLI(t, cfg, "send", "-key", aliceKey, "-to", bob.DisplayAddress(), "-value", "3"))
	require.Error(t, runCLI(t, cfg, "send", "-key", aliceKey, "-to", bob.Address(), "-value", "9"))
	require.NoError(t, runCLI(t, cfg, "pending"))
	require.NoError(t, runCLI(t, cfg, "mine", "-key", aliceKey))

	for _, args := range [][]string{
		{"validate"},
		{"blocks"},
		{"pending"},
		{"score", bob.Address()},
		{"balance", bob.DisplayAddress()},
		{"history", alice.Address()},
		{"help"},
		{"help", "mine"},
	} {
		require.NoError(t, runCLI(t, cfg, args...), "command %v", args)
	}

	// State survives across processes.
	s := mustOpenStorage(t, dataDir)
	defer s.Close()
	chain := mustOpenChain(t, s)
	require.Equal(t, 1, chain.Height())
	require.True(t, chain.IsChainValid())
	require.Equal(t, int64(3), chain.BalanceOfAddress(bob.Address()))
	require.Equal(t, []*ledger.Record{ledger.NewReward(alice.Address(), cfg.Reward)}, chain.Pending())
}

func TestCLI_MineWithRewardAddress(t *testing.T) {
	cfg := testCLIConfig(t, t.TempDir())

	key, err := ledger.GenerateKey()
	require.NoError(t, err)

	require.NoError(t, runCLI(t, cfg, "mine", "-reward-to", key.Address()))
	require.Error(t, runCLI(t, cfg, "mine"), "a reward address is required")
	require.Error(t, runCLI(t, cfg, "mine", "-reward-to", "nope"))
	require.Error(t, runCLI(t, cfg, "mine", "-reward-to", key.Address(), "-key", "x.key"))
}

func TestCLI_DifficultyFixedAtCreation(t *testing.T) {
	dataDir := t.TempDir()
	cfg := testCLIConfig(t, dataDir)
	require.NoError(t, runCLI(t, cfg, "validate"))

	other := testCLIConfig(t, dataDir)
	other.Difficulty = testDifficulty + 1
	other.DifficultySet = true
	err := runCLI(t, other, "validate")
	require.Error(t, err)
	require.Contains(t, err.Error(), "created with difficulty")

	// Without an explicit flag the stored difficulty wins.
	other.DifficultySet = false
	require.NoError(t, runCLI(t, other, "validate"))
}

func TestCLI_RewardFixedAtCreation(t *testing.T) {
	dataDir := t.TempDir()
	cfg := testCLIConfig(t, dataDir)
	cfg.Reward = 7

	key, err := ledger.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, runCLI(t, cfg, "mine", "-reward-to", key.Address()))

	other := testCLIConfig(t, dataDir)
	other.Reward = 50
	other.RewardSet = true
	err = runCLI(t, other, "mine", "-reward-to", key.Address())
	require.Error(t, err)
	require.Contains(t, err.Error(), "created with mining reward")

	// Without an explicit flag the stored reward is paid.
	other.RewardSet = false
	require.NoError(t, runCLI(t, other, "mine", "-reward-to", key.Address()))

	s := mustOpenStorage(t, dataDir)
	defer s.Close()
	reward, found, err := s.GetReward()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(7), reward)

	chain := mustOpenChain(t, s)
	require.Equal(t, int64(7), chain.BalanceOfAddress(key.Address()))
	require.Equal(t, []*ledger.Record{ledger.NewReward(key.Address(), 7)}, chain.Pending())
}

func TestCLI_ValidateDetectsStaleTip(t *testing.T) {
	dataDir := t.TempDir()
	cfg := testCLIConfig(t, dataDir)

	key, err := ledger.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, runCLI(t, cfg, "mine", "-reward-to", key.Address()))
	require.NoError(t, runCLI(t, cfg, "validate"))

	cli := NewCLI(cfg)
	defer cli.Close()
	_, err = cli.openChain()
	require.NoError(t, err)

	// A second writer moves the tip after this process loaded the chain.
	next := ledger.NewBlock(time.Now(), nil, cli.chain.LatestBlock().Hash)
	require.NoError(t, cli.store.CommitBlock(cli.chain.Height()+1, next, nil))

	err = cli.Run([]string{"validate"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match loaded chain")
}

func TestCLI_UsageErrors(t *testing.T) {
	cfg := testCLIConfig(t, t.TempDir())

	require.ErrorIs(t, runCLI(t, cfg), errUsage)
	require.Error(t, runCLI(t, cfg, "bogus"))
	require.Error(t, runCLI(t, cfg, "score"))
	require.Error(t, runCLI(t, cfg, "balance", "not-an-address"))
	require.Error(t, runCLI(t, cfg, "send", "-value", "1"))
}

func TestCLI_Demo(t *testing.T) {
	cfg := testCLIConfig(t, filepath.Join(t.TempDir(), "unused"))
	require.NoError(t, runCLI(t, cfg, "demo"))

	_, err := os.Stat(cfg.DataDir)
	require.True(t, os.IsNotExist(err), "demo must not touch the data directory")
}

func TestCLI_PasswordFromStdin(t *testing.T) {
	t.Setenv(PasswordEnv, "")
	require.NoError(t, os.Unsetenv(PasswordEnv))

	cfg := testCLIConfig(t, t.TempDir())

	cfg.Stdin = strings.NewReader("hunter22\nhunter22\n")
	cli := NewCLI(cfg)
	pw, err := cli.promptNewPassword()
	require.NoError(t, err)
	require.Equal(t, "hunter22", string(pw))
	require.NoError(t, cli.Close())

	cfg.Stdin = strings.NewReader("hunter22\nhunter23\n")
	cli = NewCLI(cfg)
	_, err = cli.promptNewPassword()
	require.ErrorContains(t, err, "do not match")
	require.NoError(t, cli.Close())

	cfg.Stdin = strings.NewReader("ab\n")
	cli = NewCLI(cfg)
	_, err = cli.promptNewPassword()
	require.ErrorContains(t, err, "at least 3")
	require.NoError(t, cli.Close())

	// Final line without a newline still counts.
	cfg.Stdin = strings.NewReader("last")
	cli = NewCLI(cfg)
	pw, err = cli.promptPassword("Password: ")
	require.NoError(t, err)
	require.Equal(t, "last", string(pw))
	require.NoError(t, cli.Close())
}

func TestShortHex(t *testing.T) {
	require.Equal(t, "abc", shortHex("abc"))
	require.Equal(t, "01234567..abcdef", shortHex("0123456789abcdef0123456789abcdef"))
}
