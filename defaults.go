package main

// Command defaults.
//
// Keep these centralized so main/cli/storage stay consistent.
const (
	DefaultDataDir         = "./proofledger-data"
	DefaultChainDBFilename = "proofledger.chain.db"
	DefaultKeyFilename     = "proofledger.key"

	// PasswordEnv supplies key file passwords non-interactively.
	PasswordEnv = "PROOFLEDGER_PASSWORD"
)
