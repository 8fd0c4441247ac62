package ledger

// Store persists chain state. A Chain writes to its store before changing
// memory, so a failed write leaves both sides as they were.
type Store interface {
	// Load returns the stored blocks in height order and the pending queue.
	// An empty store returns no blocks.
	Load() (blocks []*Block, pending []*Record, err error)

	// CommitBlock atomically appends block at height and replaces the
	// pending queue.
	CommitBlock(height int, block *Block, pending []*Record) error

	// SavePending replaces the pending queue.
	SavePending(pending []*Record) error
}
