package params

// Ledger-level constants shared by the chain, the CLI and the wallet.
//
// Keep these out of the ledger package so tooling can read protocol defaults
// without pulling in the signing stack.
const (
	// DefaultDifficulty is the number of leading zero hex characters an
	// accepted block hash must carry.
	DefaultDifficulty = 4

	// MaxDifficulty is the hex length of a SHA-256 digest.
	MaxDifficulty = 64

	// DefaultMiningReward is paid to whoever triggers mining, as a single
	// unsigned reward record queued right after the block is sealed.
	DefaultMiningReward int64 = 5

	// Inclusive bounds on the value of a signed transfer record. Reward
	// records are exempt.
	MinTransferValue int64 = 1
	MaxTransferValue int64 = 5

	// GenesisPrevHash is the previous-hash sentinel carried by the genesis block.
	GenesisPrevHash = "0"

	// GenesisTimestampMillis is 2017-01-01T00:00:00Z in Unix milliseconds.
	GenesisTimestampMillis int64 = 1483228800000
)
