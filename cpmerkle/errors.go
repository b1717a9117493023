package cpmerkle

import "fmt"

// IndexOutOfBoundsError indicates a leaf index
// that is not present in a sequence of Count leaves.
type IndexOutOfBoundsError struct {
	Count, Index uint64
}

func (e IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf(
		"index out of bounds: count=%d, index=%d", e.Count, e.Index,
	)
}

// EmptyProofMustHaveIndexError is returned from [BuildProof]
// when asked for a nonzero index over zero leaves.
type EmptyProofMustHaveIndexError struct {
	Index uint64
}

func (e EmptyProofMustHaveIndexError) Error() string {
	return fmt.Sprintf(
		"cannot build proof over empty leaves: index must be 0 (got %d)", e.Index,
	)
}

// UnexpectedProofLengthError indicates a proof whose sibling count
// does not match the shape implied by its count and index.
// Proofs from the network that fail this way are malformed or adversarial.
type UnexpectedProofLengthError struct {
	Count, Index uint64

	Expected, Actual int
}

func (e UnexpectedProofLengthError) Error() string {
	return fmt.Sprintf(
		"unexpected proof length: count=%d, index=%d, expected %d siblings, got %d",
		e.Count, e.Index, e.Expected, e.Actual,
	)
}
