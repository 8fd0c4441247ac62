// Package ledger implements a single-writer, append-only ledger of
// hash-linked blocks. Each block is sealed by a proof-of-work nonce search
// and carries signed value-transfer records.
//
// A Chain starts from a fixed genesis block. Records are admitted into a
// pending queue with AddRecord, and MinePendingRecords seals the whole queue
// into a new block, then queues a single reward record for the miner.
// IsChainValid re-derives every hash and signature to detect tampering.
//
// Record and block digests are hex SHA-256. Transfer records are signed with
// secp256k1 keys; the hex-encoded public key is the record address.
package ledger
