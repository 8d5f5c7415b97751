package types

// Version is the canonical project version.
// The ledger record contract shares this version (lockstep versioning).
const Version = "0.3.0"
