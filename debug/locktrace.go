// Package debug holds opt-in diagnostics for the ledger.
package debug

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Lock tracing reports how long callers wait for the ledger's locks and how
// long exclusive holders keep them. Mining holds the seal lock for the whole
// nonce search, so this is the quickest way to see a slow seal stalling
// admissions. It is disabled by default.
//
// Enable with:
//   PROOFLEDGER_LOCK_TRACE=1
//
// Optional filters (milliseconds; default 0 = log everything):
//   PROOFLEDGER_LOCK_TRACE_MIN_WAIT_MS
//   PROOFLEDGER_LOCK_TRACE_MIN_HOLD_MS   (exclusive Lock/Unlock only)
//
// Read locks log wait time only; several readers may hold at once.

const (
	envTrace        = "PROOFLEDGER_LOCK_TRACE"
	envTraceMinWait = "PROOFLEDGER_LOCK_TRACE_MIN_WAIT_MS"
	envTraceMinHold = "PROOFLEDGER_LOCK_TRACE_MIN_HOLD_MS"
)

var (
	traceEnabled atomic.Bool

	minWaitNS atomic.Int64
	minHoldNS atomic.Int64

	// Sequence shared by all exclusive locks so acquire/release lines pair up.
	lockSeq atomic.Uint64

	traceInitOnce sync.Once
)

func traceInit() {
	traceInitOnce.Do(func() {
		traceEnabled.Store(envBool(envTrace, false))
		minWaitNS.Store(int64(envMillis(envTraceMinWait)))
		minHoldNS.Store(int64(envMillis(envTraceMinHold)))
	})
}

// SetTracing turns tracing on or off regardless of the environment.
func SetTracing(enabled bool) {
	traceInit()
	traceEnabled.Store(enabled)
}

// TracingEnabled reports whether lock tracing is on.
func TracingEnabled() bool {
	traceInit()
	return traceEnabled.Load()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envMillis(key string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

// callsite returns file:line of the code that called Lock/Unlock.
func callsite() string {
	// 0 = callsite, 1 = trace helper, 2 = lock method, 3 = caller
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown:0"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
			file = file[j+1:]
		}
	}
	return file + ":" + strconv.Itoa(line)
}

func traceAcquire(name, mode string, seq uint64, wait time.Duration) {
	if int64(wait) < minWaitNS.Load() {
		return
	}
	slog.Info("lock acquire", "name", name, "mode", mode, "seq", seq,
		"wait", wait.Truncate(time.Microsecond), "at", callsite())
}

func traceRelease(name, mode string, seq uint64, held time.Duration) {
	if int64(held) < minHoldNS.Load() {
		return
	}
	slog.Info("lock release", "name", name, "mode", mode, "seq", seq,
		"held", held.Truncate(time.Microsecond), "at", callsite())
}

func safeName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

// RWMutex is a sync.RWMutex with optional contention tracing.
type RWMutex struct {
	mu   sync.RWMutex
	name string

	lastWriteAcquireNS atomic.Int64
	lastWriteSeq       atomic.Uint64
}

// NewRWMutex returns a named RWMutex.
func NewRWMutex(name string) RWMutex {
	return RWMutex{name: name}
}

func (m *RWMutex) Lock() {
	if !TracingEnabled() {
		m.mu.Lock()
		return
	}

	start := time.Now()
	m.mu.Lock()
	wait := time.Since(start)

	seq := lockSeq.Add(1)
	m.lastWriteSeq.Store(seq)
	m.lastWriteAcquireNS.Store(time.Now().UnixNano())
	traceAcquire(safeName(m.name), "Lock", seq, wait)
}

func (m *RWMutex) Unlock() {
	if !TracingEnabled() {
		m.mu.Unlock()
		return
	}

	seq := m.lastWriteSeq.Load()
	acq := m.lastWriteAcquireNS.Load()
	m.mu.Unlock()
	traceRelease(safeName(m.name), "Unlock", seq, time.Since(time.Unix(0, acq)))
}

func (m *RWMutex) RLock() {
	if !TracingEnabled() {
		m.mu.RLock()
		return
	}

	start := time.Now()
	m.mu.RLock()
	traceAcquire(safeName(m.name), "RLock", 0, time.Since(start))
}

func (m *RWMutex) RUnlock() {
	m.mu.RUnlock()
}

// Mutex is a sync.Mutex with optional contention tracing.
type Mutex struct {
	mu   sync.Mutex
	name string

	lastAcquireNS atomic.Int64
	lastSeq       atomic.Uint64
}

// NewMutex returns a named Mutex.
func NewMutex(name string) Mutex {
	return Mutex{name: name}
}

func (m *Mutex) Lock() {
	if !TracingEnabled() {
		m.mu.Lock()
		return
	}

	start := time.Now()
	m.mu.Lock()
	wait := time.Since(start)

	seq := lockSeq.Add(1)
	m.lastSeq.Store(seq)
	m.lastAcquireNS.Store(time.Now().UnixNano())
	traceAcquire(safeName(m.name), "Lock", seq, wait)
}

func (m *Mutex) Unlock() {
	if !TracingEnabled() {
		m.mu.Unlock()
		return
	}

	seq := m.lastSeq.Load()
	acq := m.lastAcquireNS.Load()
	m.mu.Unlock()
	traceRelease(safeName(m.name), "Unlock", seq, time.Since(time.Unix(0, acq)))
}
