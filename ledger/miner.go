package ledger

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MinerConfig holds nonce search configuration
type MinerConfig struct {
	// Threads is the number of search workers (<1 = 1)
	Threads int
	// MaxNonce bounds the search; 0 searches the whole nonce space
	MaxNonce uint64
}

// DefaultMinerConfig returns a single-threaded, unbounded search.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{Threads: 1}
}

// MinerStats holds mining statistics
type MinerStats struct {
	HashCount   uint64
	BlocksFound uint64
	StartTime   time.Time
	LastSolve   time.Duration
}

// Miner seals blocks by searching the nonce space with a pool of workers.
// Worker t tries nonces t, t+n, t+2n, ... and every worker keeps going until
// it passes the best solution found so far, so the nonce returned is always
// the smallest solving nonce. The result matches Block.Mine for any thread
// count.
type Miner struct {
	maxNonce  uint64
	threads   atomic.Int32
	hashCount atomic.Uint64
	found     atomic.Uint64
	lastSolve atomic.Int64
	startTime time.Time
}

// NewMiner creates a new miner
func NewMiner(config MinerConfig) *Miner {
	m := &Miner{
		maxNonce:  config.MaxNonce,
		startTime: time.Now(),
	}
	m.SetThreads(config.Threads)
	return m
}

// SetThreads updates the number of workers used by the next Seal.
func (m *Miner) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	m.threads.Store(int32(n))
}

// Threads returns the current worker count
func (m *Miner) Threads() int {
	n := int(m.threads.Load())
	if n < 1 {
		return 1
	}
	return n
}

// Seal finds the smallest nonce, starting from zero, whose block hash meets
// difficulty, and writes nonce and hash back to b. On cancellation or when
// the bounded search finds nothing, b is left untouched.
func (m *Miner) Seal(ctx context.Context, b *Block, difficulty int) error {
	start := time.Now()
	records := b.recordsJSON()

	limit := uint64(math.MaxUint64)
	if m.maxNonce > 0 {
		limit = m.maxNonce
	}

	numThreads := m.Threads()
	var best atomic.Uint64
	var solved atomic.Bool
	best.Store(math.MaxUint64)

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for t := 0; t < numThreads; t++ {
		wg.Add(1)
		go func(threadID int) {
			defer wg.Done()
			step := uint64(numThreads)
			var hashes uint64
			defer func() { m.hashCount.Add(hashes) }()

			for nonce := uint64(threadID); nonce <= limit && nonce < best.Load(); nonce += step {
				if hashes%1024 == 0 {
					select {
					case <-searchCtx.Done():
						return
					default:
					}
					// Yield periodically to keep the caller responsive
					runtime.Gosched()
				}

				hashes++
				if HashMeetsDifficulty(b.hashWith(records, nonce), difficulty) {
					storeMin(&best, nonce)
					solved.Store(true)
					return
				}

				if nonce > math.MaxUint64-step {
					return
				}
			}
		}(t)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !solved.Load() {
		return ErrNonceExhausted
	}
	winner := best.Load()

	b.Nonce = winner
	b.Hash = b.hashWith(records, winner)
	m.found.Add(1)
	m.lastSolve.Store(int64(time.Since(start)))
	return nil
}

// storeMin lowers v to n if n is smaller.
func storeMin(v *atomic.Uint64, n uint64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Stats returns current mining statistics
func (m *Miner) Stats() MinerStats {
	return MinerStats{
		HashCount:   m.hashCount.Load(),
		BlocksFound: m.found.Load(),
		StartTime:   m.startTime,
		LastSolve:   time.Duration(m.lastSolve.Load()),
	}
}

// HashRate returns the average hash rate since the miner was created
func (m *Miner) HashRate() float64 {
	stats := m.Stats()
	elapsed := time.Since(stats.StartTime).Seconds()
	if elapsed < 1 {
		return 0
	}
	return float64(stats.HashCount) / elapsed
}
