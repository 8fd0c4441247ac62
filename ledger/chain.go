package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/blocknetprivacy/proofledger/debug"
	"github.com/blocknetprivacy/proofledger/protocol/params"
)

// ChainConfig configures a Chain
type ChainConfig struct {
	// Difficulty is the number of leading zero hex characters required of
	// every sealed block hash.
	Difficulty int

	// MiningReward is the value of the reward record queued after each seal.
	MiningReward int64

	// Miner configures the nonce search.
	Miner MinerConfig

	// Store persists the chain; nil keeps it in memory only.
	Store Store

	// Logger receives chain events; nil uses slog.Default().
	Logger *slog.Logger

	// Now stamps new blocks; nil uses time.Now.
	Now func() time.Time
}

// DefaultChainConfig returns the protocol defaults: difficulty 4, reward 5,
// one mining thread, memory only.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Difficulty:   params.DefaultDifficulty,
		MiningReward: params.DefaultMiningReward,
		Miner:        DefaultMinerConfig(),
	}
}

// Chain is the ledger: the ordered blocks from genesis plus the queue of
// admitted records waiting to be sealed.
type Chain struct {
	mu     debug.RWMutex // guards blocks and pending
	mineMu debug.Mutex   // one seal at a time

	blocks  []*Block
	pending []*Record

	difficulty int
	reward     int64

	miner  *Miner
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// AddressStats aggregates the sealed records received by an address.
type AddressStats struct {
	Count int
	Total int64
}

// NewChain creates a chain. With a store, existing state is loaded and
// validated; an empty store is initialized with the genesis block.
func NewChain(cfg ChainConfig) (*Chain, error) {
	if cfg.Difficulty < 0 || cfg.Difficulty > params.MaxDifficulty {
		return nil, fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidDifficulty, cfg.Difficulty, params.MaxDifficulty)
	}
	if cfg.MiningReward <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidReward, cfg.MiningReward)
	}

	c := &Chain{
		mu:         debug.NewRWMutex("ledger.chain"),
		mineMu:     debug.NewMutex("ledger.mine"),
		difficulty: cfg.Difficulty,
		reward:     cfg.MiningReward,
		miner:      NewMiner(cfg.Miner),
		store:      cfg.Store,
		logger:     cfg.Logger,
		now:        cfg.Now,
		pending:    []*Record{},
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	if c.store == nil {
		c.blocks = []*Block{GenesisBlock()}
		return c, nil
	}

	if err := c.loadFromStore(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFromStore loads and validates stored state, writing genesis to an
// empty store.
func (c *Chain) loadFromStore() error {
	blocks, pending, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load chain: %w", err)
	}

	if len(blocks) == 0 {
		genesis := GenesisBlock()
		if err := c.store.CommitBlock(0, genesis, nil); err != nil {
			return fmt.Errorf("failed to store genesis block: %w", err)
		}
		c.blocks = []*Block{genesis}
		c.logger.Info("initialized chain", "genesis", genesis.Hash)
		return nil
	}

	if err := validateBlocks(blocks, c.difficulty); err != nil {
		return fmt.Errorf("stored chain is invalid: %w", err)
	}
	for i, r := range pending {
		if ok, err := r.IsValid(); err != nil || !ok {
			return fmt.Errorf("stored pending record %d is invalid: %w", i, ErrInvalidRecord)
		}
	}

	c.blocks = blocks
	if pending != nil {
		c.pending = pending
	}
	c.logger.Info("loaded chain", "height", len(blocks)-1, "tip", blocks[len(blocks)-1].Hash, "pending", len(c.pending))
	return nil
}

// Difficulty returns the required count of leading zero hex characters.
func (c *Chain) Difficulty() int { return c.difficulty }

// MiningReward returns the value paid by each reward record.
func (c *Chain) MiningReward() int64 { return c.reward }

// Miner returns the chain's nonce search, for stats and thread tuning.
func (c *Chain) Miner() *Miner { return c.miner }

// LatestBlock returns the tail block.
func (c *Chain) LatestBlock() *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Height returns the index of the tail block; a genesis-only chain has
// height 0.
func (c *Chain) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks) - 1
}

// Blocks returns the blocks from genesis to tip.
func (c *Chain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.blocks)
}

// Block returns the block at height, or nil.
func (c *Chain) Block(height int) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height >= len(c.blocks) {
		return nil
	}
	return c.blocks[height]
}

// Pending returns the records waiting to be sealed.
func (c *Chain) Pending() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.pending)
}

// AddRecord admits a signed record to the pending queue. Rewards cannot be
// added here; they are queued by mining only.
func (c *Chain) AddRecord(r *Record) error {
	if r == nil || r.From == "" || r.To == "" {
		return ErrIncompleteRecord
	}
	ok, err := r.IsValid()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if !ok {
		return ErrInvalidRecord
	}

	rec := r.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	next := append(slices.Clone(c.pending), rec)
	if c.store != nil {
		if err := c.store.SavePending(next); err != nil {
			return fmt.Errorf("failed to persist pending records: %w", err)
		}
	}
	c.pending = next

	c.logger.Debug("record admitted", "record", rec.String(), "pending", len(next))
	return nil
}

// MinePendingRecords seals every pending record into a new block and then
// queues a reward for rewardAddress. It blocks until the seal is found.
func (c *Chain) MinePendingRecords(rewardAddress string) error {
	return c.MinePendingRecordsContext(context.Background(), rewardAddress)
}

// MinePendingRecordsContext is MinePendingRecords with cancellation. Mining
// is all or nothing: if ctx ends or the store rejects the commit, neither
// the blocks nor the pending queue change. Records admitted while the seal
// was running stay queued after the new reward.
func (c *Chain) MinePendingRecordsContext(ctx context.Context, rewardAddress string) error {
	if rewardAddress == "" {
		return fmt.Errorf("%w: reward address is empty", ErrIncompleteRecord)
	}

	c.mineMu.Lock()
	defer c.mineMu.Unlock()

	c.mu.RLock()
	records := slices.Clone(c.pending)
	prevHash := c.blocks[len(c.blocks)-1].Hash
	height := len(c.blocks)
	c.mu.RUnlock()

	block := NewBlock(c.now(), records, prevHash)
	start := time.Now()
	if err := c.miner.Seal(ctx, block, c.difficulty); err != nil {
		return fmt.Errorf("failed to seal block %d: %w", height, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]*Record, 0, 1+len(c.pending)-len(records))
	next = append(next, NewReward(rewardAddress, c.reward))
	next = append(next, c.pending[len(records):]...)

	if c.store != nil {
		if err := c.store.CommitBlock(height, block, next); err != nil {
			return fmt.Errorf("failed to persist block %d: %w", height, err)
		}
	}
	c.blocks = append(c.blocks, block)
	c.pending = next

	c.logger.Info("block sealed",
		"height", height,
		"hash", block.Hash,
		"nonce", block.Nonce,
		"records", len(records),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// IsChainValid reports whether the chain is intact.
func (c *Chain) IsChainValid() bool {
	return c.Validate() == nil
}

// Validate checks the chain and returns the first problem found. The
// genesis block must be the canonical one; every later block must hold
// valid records, carry its own recomputed hash, meet the difficulty and
// link to its predecessor.
func (c *Chain) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validateBlocks(c.blocks, c.difficulty)
}

func validateBlocks(blocks []*Block, difficulty int) error {
	if len(blocks) == 0 {
		return ErrGenesisMismatch
	}

	genesis := GenesisBlock()
	if g := blocks[0]; g.Hash != genesis.Hash || g.CalculateHash() != genesis.Hash {
		return ErrGenesisMismatch
	}

	for i := 1; i < len(blocks); i++ {
		b, prev := blocks[i], blocks[i-1]
		if !b.HasValidRecords() {
			return fmt.Errorf("block %d: %w", i, ErrBlockRecords)
		}
		if b.Hash != b.CalculateHash() {
			return fmt.Errorf("block %d: %w", i, ErrBlockHashMismatch)
		}
		if !b.MeetsDifficulty(difficulty) {
			return fmt.Errorf("block %d: %w", i, ErrInsufficientWork)
		}
		if b.PreviousHash != prev.Hash {
			return fmt.Errorf("block %d: %w", i, ErrBrokenLink)
		}
	}
	return nil
}

// forEachRecord calls fn for every sealed record. Caller holds c.mu.
func (c *Chain) forEachRecord(fn func(*Record)) {
	for _, b := range c.blocks {
		for _, r := range b.Records {
			fn(r)
		}
	}
}

// StatsOfAddress counts the sealed records received by address and sums
// their values.
func (c *Chain) StatsOfAddress(address string) AddressStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s AddressStats
	c.forEachRecord(func(r *Record) {
		if r.To == address {
			s.Count++
			s.Total += r.Value
		}
	})
	return s
}

// ScoreOfAddress returns the average value of the sealed records received
// by address, or 0 if it has received none.
func (c *Chain) ScoreOfAddress(address string) float64 {
	s := c.StatsOfAddress(address)
	if s.Count == 0 {
		return 0
	}
	return float64(s.Total) / float64(s.Count)
}

// BalanceOfAddress returns the value received minus the value sent by
// address across sealed records. Pending records do not count.
func (c *Chain) BalanceOfAddress(address string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var balance int64
	c.forEachRecord(func(r *Record) {
		if r.From == address {
			balance -= r.Value
		}
		if r.To == address {
			balance += r.Value
		}
	})
	return balance
}

// HistoryOfAddress returns every sealed record sent or received by address,
// oldest first.
func (c *Chain) HistoryOfAddress(address string) []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*Record
	c.forEachRecord(func(r *Record) {
		if r.From == address || r.To == address {
			out = append(out, r)
		}
	})
	return out
}
