// Package chunkproof is the root of a set of packages
// for splitting byte buffers into chunks that can each be verified
// against a single 32-byte Merkle root.
//
// The core packages are:
//
//   - [github.com/gordian-engine/chunkproof/cpdigest]: the BLAKE2b-256 digest type
//   - [github.com/gordian-engine/chunkproof/cpmerkle]: roots and indexed proofs
//   - [github.com/gordian-engine/chunkproof/cpchunk]: chunk packaging, verification and encoding
//
// Built on those are reassembly ([github.com/gordian-engine/chunkproof/cpblob]),
// erasure coding ([github.com/gordian-engine/chunkproof/cperasure]),
// and a QUIC transfer protocol
// ([github.com/gordian-engine/chunkproof/cpfetch]).
package chunkproof
