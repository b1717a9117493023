// Package cpmerkle builds Merkle roots over ordered sequences of digests,
// and builds and checks indexed proofs for single leaves.
//
// The tree shape is that of a balanced left-to-right fold:
// for n > 1 leaves, the left subtree holds the largest power of two
// strictly less than n, and the right subtree holds the rest.
// For six leaves a through f:
//
//	a b c d e f
//	|/  |/  |/
//	g   h   i
//	| /   /
//	|/   /
//	j   k
//	| /
//	|/
//	l
//
// where k is i carried up unchanged.
// The root is never the raw top of the tree.
// The leaf count is bound in as a final step,
// so the emitted root for the example above is
// HashPair(le64(6), l).
// An empty sequence has the raw root [cpdigest.Sentinel2].
//
// An [IndexedProof] authenticates one leaf by position.
// Reconstructing its root needs only the proof itself,
// and the work is bounded by the 64-bit count,
// never by recursion depth.
package cpmerkle
