// Package cpdigest contains the fixed-size hash value
// used throughout chunkproof, and the hash primitive that produces it.
//
// The primitive is BLAKE2b with a 32-byte output.
// Outside of this package, digests are only produced
// through [Hash] and [HashPair].
package cpdigest

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the number of bytes in a [Digest].
const Size = blake2b.Size256

// Digest is the output of the hash primitive.
type Digest [Size]byte

// Sentinel digests are placeholders during tree construction.
// They are fixed byte patterns that are part of the root encoding,
// so they must never change.
var (
	// Sentinel0 stands in for an absent optional value.
	Sentinel0 = filled(0)

	// Sentinel1 terminates a right fold over a slice of digests.
	Sentinel1 = filled(1)

	// Sentinel2 is the raw root of an empty leaf sequence.
	Sentinel2 = filled(2)
)

func filled(b byte) Digest {
	var d Digest
	for i := range d {
		d[i] = b
	}
	return d
}

// Hash returns the digest of data.
func Hash(data []byte) Digest {
	return Digest(blake2b.Sum256(data))
}

// HashPair returns the digest of the concatenation of a and b,
// without allocating the concatenation.
func HashPair(a, b []byte) Digest {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only possible with an oversized key, and we never pass a key.
		panic(fmt.Errorf("BUG: failed to create blake2b hasher: %w", err))
	}
	_, _ = h.Write(a)
	_, _ = h.Write(b)

	var d Digest
	h.Sum(d[:0])
	return d
}

// HashOptional returns the value of d,
// or [Sentinel0] if d is nil.
func HashOptional(d *Digest) Digest {
	if d == nil {
		return Sentinel0
	}
	return *d
}

// FromSlice copies b into a new Digest.
// It returns an error if b is not exactly [Size] bytes.
func FromSlice(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, fmt.Errorf("digest must be %d bytes (got %d)", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ParseHex parses a hex-encoded digest, with or without a leading "0x".
func ParseHex(s string) (Digest, error) {
	var d Digest
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != 2*Size {
		return d, fmt.Errorf(
			"hex digest must be %d characters (got %d)", 2*Size, len(s),
		)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("failed to decode hex digest: %w", err)
	}
	return d, nil
}

// Compare returns -1, 0, or 1 comparing d and o lexicographically.
func (d Digest) Compare(o Digest) int {
	return bytes.Compare(d[:], o[:])
}

// IsZero reports whether every byte of d is zero,
// which is also the value of [Sentinel0].
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the lowercase hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Format implements [fmt.Formatter].
// The x and X verbs produce lower and upper hex,
// and the # flag adds a 0x prefix.
// Other verbs use the lowercase hex string.
func (d Digest) Format(f fmt.State, verb rune) {
	var s string
	switch verb {
	case 'X':
		s = fmt.Sprintf("%X", d[:])
	default:
		s = hex.EncodeToString(d[:])
	}
	if f.Flag('#') && (verb == 'x' || verb == 'X') {
		s = "0x" + s
	}
	_, _ = f.Write([]byte(s))
}

// MarshalText implements [encoding.TextMarshaler] as lowercase hex.
func (d Digest) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(Size))
	hex.Encode(out, d[:])
	return out, nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
