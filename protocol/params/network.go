package params

// NetworkID is a public network identifier used as a domain separator in
// wallet address checksums.
const NetworkID = "proofledger_mainnet"
