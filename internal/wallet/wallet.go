// Package wallet holds the local signing identity whose public key the
// prover binds into proof preimages.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/skillstake/skillstake/pkg/pow"
)

// Wallet is an ed25519 keypair in the Solana account format.
type Wallet struct {
	SigningKey ed25519.PrivateKey
	PublicKey  pow.PublicKey
}

// Generate creates a new random wallet.
func Generate() (*Wallet, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 keypair: %w", err)
	}
	return fromPrivateKey(priv), nil
}

// FromSeed derives a wallet from a 32-byte ed25519 seed.
func FromSeed(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return fromPrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

func fromPrivateKey(priv ed25519.PrivateKey) *Wallet {
	var pk pow.PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return &Wallet{SigningKey: priv, PublicKey: pk}
}

// Address returns the base58 account address.
func (w *Wallet) Address() string {
	return w.PublicKey.String()
}
