// Package pow implements the skillstake proof-of-work puzzle: finding and
// checking a nonce whose Keccak-256 digest clears a leading-zero-bit target.
//
// The digest is computed over a domain-separated preimage:
//
//	keccak256(domainTag || wallet || mint || le64(taskID) || le64(nonce))
//
// The same layout is checked by the on-chain program when a proof is
// recorded, so a nonce accepted by Verify here is accepted there as well.
//
// The package is pure computation. It does not log, touch the network or read
// configuration; callers hand it an Identity and a Difficulty.
package pow

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	// DefaultDomainTag separates proof preimages from any other keccak use.
	DefaultDomainTag = "skillstake_pow"

	// PublicKeySize is the width of a wallet or mint public key.
	PublicKeySize = 32

	// DefaultYieldInterval is how many iterations the solver runs between
	// scheduler yields and progress reports.
	DefaultYieldInterval = 2048
)

// Errors returned by pow operations.
var (
	// ErrInvalidInput is returned when a task id or nonce cannot be parsed.
	// It wraps one of ErrEmpty, ErrNotAnInteger or ErrOutOfRange.
	ErrInvalidInput = errors.New("pow: invalid input")

	// ErrCancelled is returned when a search is stopped before a nonce is found.
	ErrCancelled = errors.New("pow: cancelled")

	// ErrPreconditionFailed is returned when no wallet identity is available.
	ErrPreconditionFailed = errors.New("pow: no active identity")

	// ErrInvalidDifficulty is returned for targets wider than the digest.
	ErrInvalidDifficulty = errors.New("pow: invalid difficulty")

	// ErrExhausted is returned when a bounded search runs out of iterations.
	ErrExhausted = errors.New("pow: iteration limit reached")

	// ErrInvalidPublicKey is returned when a base58 key does not decode to 32 bytes.
	ErrInvalidPublicKey = errors.New("pow: invalid public key")
)

// PublicKey is a 32-byte ed25519 public key, as used for Solana accounts.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return publicKeyFromBytes(raw)
}

func publicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form of the key.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether the key is all zero bytes.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Identity binds a puzzle to a wallet and a token mint.
// It is built fresh for each solve or verify call and never mutated.
type Identity struct {
	// DomainTag prefixes every preimage. Empty means DefaultDomainTag.
	DomainTag []byte

	// Wallet is the public key of the account claiming the reward.
	Wallet PublicKey

	// Token is the public key of the reward mint.
	Token PublicKey
}

// NewIdentity returns an Identity using the default domain tag.
func NewIdentity(wallet, token PublicKey) Identity {
	return Identity{
		DomainTag: []byte(DefaultDomainTag),
		Wallet:    wallet,
		Token:     token,
	}
}

func (id Identity) domainTag() []byte {
	if len(id.DomainTag) == 0 {
		return []byte(DefaultDomainTag)
	}
	return id.DomainTag
}
