package main

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/blocknetprivacy/proofledger/ledger"
	"github.com/blocknetprivacy/proofledger/protocol/params"
	"github.com/blocknetprivacy/proofledger/wallet"
)

var errUsage = errors.New("usage")

// CLI runs one proofledger command against the chain database.
type CLI struct {
	cfg    CLIConfig
	logger *slog.Logger
	reader *bufio.Reader

	ctx    context.Context
	cancel context.CancelFunc

	store *Storage
	chain *ledger.Chain
}

// CLIConfig holds CLI configuration
type CLIConfig struct {
	DataDir       string
	Difficulty    int
	DifficultySet bool // true when -difficulty was given explicitly
	Reward        int64
	RewardSet     bool // true when -reward was given explicitly
	Threads       int
	NoColor       bool
	Verbose       bool

	// KDF tunes key file encryption for keygen.
	KDF wallet.KDFParams

	// Stdin is read for passwords when it is not a terminal.
	Stdin io.Reader
}

// DefaultCLIConfig returns default CLI configuration
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		DataDir:    DefaultDataDir,
		Difficulty: params.DefaultDifficulty,
		Reward:     params.DefaultMiningReward,
		Threads:    1,
		KDF:        wallet.DefaultKDFParams,
		Stdin:      os.Stdin,
	}
}

// NewCLI sets up output and logging. The chain database is opened lazily by
// commands that need it.
func NewCLI(cfg CLIConfig) *CLI {
	if cfg.NoColor {
		pterm.DisableColor()
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}

	level := pterm.LogLevelInfo
	if cfg.Verbose {
		level = pterm.LogLevelDebug
	}
	logger := slog.New(pterm.NewSlogHandler(pterm.DefaultLogger.WithLevel(level)))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &CLI{
		cfg:    cfg,
		logger: logger,
		reader: bufio.NewReader(cfg.Stdin),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close releases the chain database.
func (c *CLI) Close() error {
	c.cancel()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	c.chain = nil
	return err
}

// Run dispatches a command line (without global flags).
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd := strings.ToLower(args[0])
	rest := args[1:]

	switch cmd {
	case "help", "?":
		c.cmdHelp(rest)
		return nil
	case "keygen":
		return c.cmdKeygen(rest)
	case "address", "addr":
		return c.cmdAddress(rest)
	case "send":
		return c.cmdSend(rest)
	case "mine":
		return c.cmdMine(rest)
	case "validate", "verify":
		return c.cmdValidate()
	case "score":
		return c.cmdScore(rest)
	case "balance", "bal":
		return c.cmdBalance(rest)
	case "history", "hist":
		return c.cmdHistory(rest)
	case "blocks":
		return c.cmdBlocks()
	case "pending":
		return c.cmdPending()
	case "demo":
		return c.cmdDemo()
	default:
		return fmt.Errorf("unknown command: %s (run 'proofledger help' for commands)", cmd)
	}
}

// openChain opens the database and loads the chain. A new database records
// the configured difficulty and reward; an existing one keeps the values it
// was created with.
func (c *CLI) openChain() (*ledger.Chain, error) {
	if c.chain != nil {
		return c.chain, nil
	}

	store, err := NewStorage(c.cfg.DataDir)
	if err != nil {
		return nil, err
	}

	difficulty := c.cfg.Difficulty
	storedDifficulty, difficultyFound, err := store.GetDifficulty()
	if err != nil {
		store.Close()
		return nil, err
	}
	if difficultyFound {
		if c.cfg.DifficultySet && storedDifficulty != difficulty {
			store.Close()
			return nil, fmt.Errorf("chain in %s was created with difficulty %d, not %d", c.cfg.DataDir, storedDifficulty, difficulty)
		}
		difficulty = storedDifficulty
	}

	reward := c.cfg.Reward
	storedReward, rewardFound, err := store.GetReward()
	if err != nil {
		store.Close()
		return nil, err
	}
	if rewardFound {
		if c.cfg.RewardSet && storedReward != reward {
			store.Close()
			return nil, fmt.Errorf("chain in %s was created with mining reward %d, not %d", c.cfg.DataDir, storedReward, reward)
		}
		reward = storedReward
	}

	chain, err := ledger.NewChain(ledger.ChainConfig{
		Difficulty:   difficulty,
		MiningReward: reward,
		Miner:        ledger.MinerConfig{Threads: c.cfg.Threads},
		Store:        store,
		Logger:       c.logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	if !difficultyFound {
		if err := store.SetDifficulty(difficulty); err != nil {
			store.Close()
			return nil, err
		}
	}
	if !rewardFound {
		if err := store.SetReward(reward); err != nil {
			store.Close()
			return nil, err
		}
	}

	c.store = store
	c.chain = chain
	return chain, nil
}

func (c *CLI) cmdHelp(args []string) {
	if len(args) > 0 {
		if topic := normalizeHelpTopic(args[0]); topic != "" {
			printHelpTopic(topic)
			return
		}
	}
	printUsage(nil)
}

func (c *CLI) cmdKeygen(args []string) error {
	fs := newFlagSet("keygen")
	keyFile := fs.String("key", DefaultKeyFilename, "Key file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := c.promptNewPassword()
	if err != nil {
		return err
	}
	defer wipeBytes(password)

	w, err := wallet.NewWallet(*keyFile, password, c.cfg.KDF)
	if err != nil {
		return err
	}
	defer w.Close()

	pterm.Success.Printfln("Key file created: %s", w.Filename())
	printAddress(w)
	return nil
}

func (c *CLI) cmdAddress(args []string) error {
	fs := newFlagSet("address")
	keyFile := fs.String("key", DefaultKeyFilename, "Key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w, err := c.loadWallet(*keyFile)
	if err != nil {
		return err
	}
	defer w.Close()

	printAddress(w)
	return nil
}

func printAddress(w *wallet.Wallet) {
	pterm.Info.Printfln("Address: %s", w.Address())
	pterm.Info.Printfln("Display: %s", w.DisplayAddress())
}

func (c *CLI) cmdSend(args []string) error {
	fs := newFlagSet("send")
	keyFile := fs.String("key", DefaultKeyFilename, "Sender key file")
	to := fs.String("to", "", "Recipient address (hex or base58)")
	value := fs.Int64("value", 0, fmt.Sprintf("Value to transfer (%d-%d)", params.MinTransferValue, params.MaxTransferValue))
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" {
		return fmt.Errorf("usage: send -key <file> -to <addr> -value <n>")
	}

	recipient, err := wallet.ParseAddress(*to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	w, err := c.loadWallet(*keyFile)
	if err != nil {
		return err
	}
	defer w.Close()

	r := ledger.NewTransfer(w.Address(), recipient, *value)
	if err := r.Sign(w.Key()); err != nil {
		return err
	}

	chain, err := c.openChain()
	if err != nil {
		return err
	}
	if err := chain.AddRecord(r); err != nil {
		return err
	}

	pterm.Success.Printfln("Queued %s", r)
	pterm.Info.Printfln("Pending records: %d", len(chain.Pending()))
	return nil
}

func (c *CLI) cmdMine(args []string) error {
	fs := newFlagSet("mine")
	keyFile := fs.String("key", "", "Key file whose address receives the reward")
	rewardTo := fs.String("reward-to", "", "Reward address (hex or base58)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var rewardAddr string
	switch {
	case *rewardTo != "" && *keyFile != "":
		return fmt.Errorf("use either -key or -reward-to, not both")
	case *rewardTo != "":
		addr, err := wallet.ParseAddress(*rewardTo)
		if err != nil {
			return fmt.Errorf("invalid reward address: %w", err)
		}
		rewardAddr = addr
	case *keyFile != "":
		w, err := c.loadWallet(*keyFile)
		if err != nil {
			return err
		}
		rewardAddr = w.Address()
		w.Close()
	default:
		return fmt.Errorf("usage: mine -key <file> | -reward-to <addr>")
	}

	chain, err := c.openChain()
	if err != nil {
		return err
	}

	threads := chain.Miner().Threads()
	threadLabel := "threads"
	if threads == 1 {
		threadLabel = "thread"
	}
	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Sealing %d pending records at difficulty %d (%d %s)...",
		len(chain.Pending()), chain.Difficulty(), threads, threadLabel))

	if err := chain.MinePendingRecordsContext(c.ctx, rewardAddr); err != nil {
		spinner.Fail("Mining stopped")
		return err
	}

	block := chain.LatestBlock()
	stats := chain.Miner().Stats()
	spinner.Success(fmt.Sprintf("Block %d sealed", chain.Height()))
	pterm.Info.Printfln("Hash:     %s", block.Hash)
	pterm.Info.Printfln("Nonce:    %d", block.Nonce)
	pterm.Info.Printfln("Records:  %d", len(block.Records))
	rate := 0.0
	if secs := stats.LastSolve.Seconds(); secs > 0 {
		rate = float64(stats.HashCount) / secs
	}
	pterm.Info.Printfln("Took:     %s (%.0f H/s)", stats.LastSolve.Round(time.Millisecond), rate)
	return nil
}

func (c *CLI) cmdValidate() error {
	chain, err := c.openChain()
	if err != nil {
		return err
	}
	c.logger.Debug("validating chain", "db", c.store.Path())

	if err := chain.Validate(); err != nil {
		return fmt.Errorf("chain is invalid: %w", err)
	}

	// The persisted tip must be the block the chain loaded last.
	tipHash, tipHeight, found := c.store.GetTip()
	if !found {
		return fmt.Errorf("chain database %s has no tip", c.store.Path())
	}
	if int(tipHeight) != chain.Height() || tipHash != chain.LatestBlock().Hash {
		return fmt.Errorf("stored tip %s at height %d does not match loaded chain", shortHex(tipHash), tipHeight)
	}
	stored, err := c.store.GetBlock(tipHeight)
	if err != nil {
		return fmt.Errorf("failed to read tip block: %w", err)
	}
	if stored == nil || stored.Hash != tipHash {
		return fmt.Errorf("tip block %d missing from %s", tipHeight, c.store.Path())
	}

	pterm.Success.Printfln("Chain is valid (%d blocks, difficulty %d)", chain.Height()+1, chain.Difficulty())
	return nil
}

func (c *CLI) addressArg(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s <addr>", cmd)
	}
	return wallet.ParseAddress(args[0])
}

func (c *CLI) cmdScore(args []string) error {
	addr, err := c.addressArg("score", args)
	if err != nil {
		return err
	}
	chain, err := c.openChain()
	if err != nil {
		return err
	}
	stats := chain.StatsOfAddress(addr)
	pterm.Info.Printfln("Score: %.4f (%d records received, total %d)", chain.ScoreOfAddress(addr), stats.Count, stats.Total)
	return nil
}

func (c *CLI) cmdBalance(args []string) error {
	addr, err := c.addressArg("balance", args)
	if err != nil {
		return err
	}
	chain, err := c.openChain()
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Balance: %d", chain.BalanceOfAddress(addr))
	return nil
}

func (c *CLI) cmdHistory(args []string) error {
	addr, err := c.addressArg("history", args)
	if err != nil {
		return err
	}
	chain, err := c.openChain()
	if err != nil {
		return err
	}

	records := chain.HistoryOfAddress(addr)
	if len(records) == 0 {
		pterm.Info.Println("No records")
		return nil
	}

	data := pterm.TableData{{"Direction", "Kind", "Counterparty", "Value"}}
	for _, r := range records {
		direction := pterm.LightGreen("IN")
		counterparty := r.From
		if r.From == addr && r.To != addr {
			direction = pterm.LightRed("OUT")
			counterparty = r.To
		}
		if r.IsReward() {
			counterparty = "-"
		}
		data = append(data, []string{direction, string(r.Kind), shortHex(counterparty), strconv.FormatInt(r.Value, 10)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func (c *CLI) cmdBlocks() error {
	chain, err := c.openChain()
	if err != nil {
		return err
	}

	data := pterm.TableData{{"Height", "Hash", "Previous", "Records", "Nonce", "Time"}}
	for i, b := range chain.Blocks() {
		data = append(data, []string{
			strconv.Itoa(i),
			shortHex(b.Hash),
			shortHex(b.PreviousHash),
			strconv.Itoa(len(b.Records)),
			strconv.FormatUint(b.Nonce, 10),
			time.UnixMilli(b.Timestamp).UTC().Format(time.RFC3339),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func (c *CLI) cmdPending() error {
	chain, err := c.openChain()
	if err != nil {
		return err
	}
	pending := chain.Pending()
	if len(pending) == 0 {
		pterm.Info.Println("No pending records")
		return nil
	}
	pterm.DefaultSection.Printfln("%d pending records", len(pending))
	return printRecords(pending)
}

func printRecords(records []*ledger.Record) error {
	data := pterm.TableData{{"Kind", "From", "To", "Value"}}
	for _, r := range records {
		from := "-"
		if !r.IsReward() {
			from = shortHex(r.From)
		}
		data = append(data, []string{string(r.Kind), from, shortHex(r.To), strconv.FormatInt(r.Value, 10)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// cmdDemo walks through the ledger lifecycle on an in-memory chain.
func (c *CLI) cmdDemo() error {
	chain, err := ledger.NewChain(ledger.ChainConfig{
		Difficulty:   c.cfg.Difficulty,
		MiningReward: c.cfg.Reward,
		Miner:        ledger.MinerConfig{Threads: c.cfg.Threads},
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	alice, err := ledger.GenerateKey()
	if err != nil {
		return err
	}
	defer alice.Zero()
	bob, err := ledger.GenerateKey()
	if err != nil {
		return err
	}
	defer bob.Zero()

	pterm.DefaultSection.Println("Keys")
	pterm.Info.Printfln("Alice: %s", alice.Address())
	pterm.Info.Printfln("Bob:   %s", bob.Address())

	pterm.DefaultSection.Println("Transfers")
	for _, value := range []int64{3, 1} {
		r := ledger.NewTransfer(alice.Address(), bob.Address(), value)
		if err := r.Sign(alice); err != nil {
			return err
		}
		if err := chain.AddRecord(r); err != nil {
			return err
		}
		pterm.Success.Printfln("Queued %s", r)
	}

	forged := ledger.NewTransfer(bob.Address(), alice.Address(), 5)
	if err := forged.Sign(alice); err != nil {
		pterm.Warning.Printfln("Alice cannot sign for Bob: %v", err)
	}

	pterm.DefaultSection.Println("Mining")
	for _, miner := range []*ledger.PrivateKey{alice, bob} {
		if err := chain.MinePendingRecordsContext(c.ctx, miner.Address()); err != nil {
			return err
		}
		block := chain.LatestBlock()
		pterm.Success.Printfln("Block %d sealed: %s (nonce %d)", chain.Height(), block.Hash, block.Nonce)
	}

	pterm.DefaultSection.Println("Chain")
	if err := c.printChainSummary(chain, map[string]string{
		alice.Address(): "Alice",
		bob.Address():   "Bob",
	}); err != nil {
		return err
	}

	if err := chain.Validate(); err != nil {
		return fmt.Errorf("demo chain is invalid: %w", err)
	}
	pterm.Success.Println("Chain is valid")
	return nil
}

func (c *CLI) printChainSummary(chain *ledger.Chain, names map[string]string) error {
	data := pterm.TableData{{"Name", "Balance", "Score"}}
	for _, addr := range sortedKeys(names) {
		data = append(data, []string{
			names[addr],
			strconv.FormatInt(chain.BalanceOfAddress(addr), 10),
			strconv.FormatFloat(chain.ScoreOfAddress(addr), 'f', 2, 64),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("Pending: %d", len(chain.Pending()))
	stats := chain.Miner().Stats()
	pterm.Info.Printfln("Hashes:  %d (%.0f H/s average)", stats.HashCount, chain.Miner().HashRate())
	return nil
}

// ============================================================================
// Passwords and key files
// ============================================================================

func (c *CLI) loadWallet(filename string) (*wallet.Wallet, error) {
	password, err := c.promptPassword("Password: ")
	if err != nil {
		return nil, err
	}
	defer wipeBytes(password)
	return wallet.LoadWallet(filename, password)
}

// promptPassword reads PROOFLEDGER_PASSWORD, then the terminal, then a line
// of stdin.
func (c *CLI) promptPassword(prompt string) ([]byte, error) {
	if env, ok := os.LookupEnv(PasswordEnv); ok {
		return []byte(env), nil
	}

	fmt.Print(prompt)

	// Check if we're in a terminal
	if f, ok := c.cfg.Stdin.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			password, err := term.ReadPassword(fd)
			fmt.Println() // newline after hidden input
			return password, err
		}
	}

	// Fallback for non-terminal (testing)
	line, err := c.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, err
	}
	return []byte(strings.TrimSpace(line)), nil
}

func (c *CLI) promptNewPassword() ([]byte, error) {
	if env, ok := os.LookupEnv(PasswordEnv); ok {
		if len(env) < 3 {
			return nil, fmt.Errorf("password must be at least 3 characters")
		}
		return []byte(env), nil
	}

	password, err := c.promptPassword("Enter new password: ")
	if err != nil {
		return nil, err
	}

	if len(password) < 3 {
		wipeBytes(password)
		return nil, fmt.Errorf("password must be at least 3 characters")
	}

	confirm, err := c.promptPassword("Confirm password: ")
	if err != nil {
		wipeBytes(password)
		return nil, err
	}

	ph := passwordHash(password)
	ch := passwordHash(confirm)
	wipeBytes(confirm)
	if subtle.ConstantTimeCompare(ph[:], ch[:]) != 1 {
		wipeBytes(password)
		return nil, fmt.Errorf("passwords do not match")
	}

	return password, nil
}

// Helpers
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func shortHex(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + ".." + s[len(s)-6:]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })
	return keys
}
