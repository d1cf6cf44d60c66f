package pow

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// DigestSize is the byte width of a Keccak-256 digest.
const DigestSize = 32

// DigestBits is the bit width of a Digest.
const DigestBits = DigestSize * 8

// Digest is a Keccak-256 hash output.
type Digest [DigestSize]byte

// Hex returns the digest as lowercase hex without a prefix.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return d.Hex()
}

// Hash returns the legacy Keccak-256 digest of b.
//
// This is the pre-standard Keccak padding used by Solana's keccak syscall,
// not SHA3-256. The two produce different digests for the same input.
func Hash(b []byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	if _, err := h.Write(b); err != nil {
		panic(fmt.Sprintf("pow: keccak write failed: %v", err))
	}
	h.Sum(d[:0])
	return d
}
