package pow

import (
	"fmt"
	"math"
	"math/bits"
)

// Difficulty is the number of leading zero bits a digest must have.
// Zero accepts every digest.
type Difficulty uint16

// Validate rejects targets wider than the digest, which no nonce can meet.
func (d Difficulty) Validate() error {
	if d > DigestBits {
		return fmt.Errorf("%w: %d exceeds %d digest bits", ErrInvalidDifficulty, d, DigestBits)
	}
	return nil
}

// ExpectedIterations returns the mean number of hashes needed to meet d.
func (d Difficulty) ExpectedIterations() float64 {
	return math.Ldexp(1, int(d))
}

// MeetsDifficulty reports whether the digest has at least target leading zero
// bits, counted from the most significant bit of the first byte.
func MeetsDifficulty(d Digest, target Difficulty) bool {
	if target == 0 {
		return true
	}

	remaining := int(target)
	for _, b := range d {
		zeros := bits.LeadingZeros8(b)
		if zeros >= remaining {
			return true
		}
		if zeros < 8 {
			return false
		}
		remaining -= 8
	}
	return false
}

// LeadingZeroBits counts the leading zero bits of the digest.
func LeadingZeroBits(d Digest) int {
	total := 0
	for _, b := range d {
		if b == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(b)
		break
	}
	return total
}
