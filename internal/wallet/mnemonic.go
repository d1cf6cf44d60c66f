package wallet

import (
	"errors"

	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic is returned when an invalid BIP-39 mnemonic phrase is provided.
var ErrInvalidMnemonic = errors.New("wallet: invalid mnemonic phrase")

// NewWithMnemonic generates a new wallet with a 24-word BIP-39 recovery phrase.
func NewWithMnemonic() (*Wallet, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", err
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", err
	}

	w, err := FromMnemonic(mnemonic, "")
	if err != nil {
		return nil, "", err
	}

	return w, mnemonic, nil
}

// FromMnemonic recovers a wallet from a BIP-39 mnemonic and optional passphrase.
//
// The first 32 bytes of the BIP-39 seed are the ed25519 seed, matching
// solana-keygen recovery without a derivation path.
func FromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	return FromSeed(seed[:32])
}
