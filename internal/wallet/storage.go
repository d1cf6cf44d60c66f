package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16

	// minKeystoreSize is salt plus a GCM nonce.
	minKeystoreSize = saltSize + 12
)

// ErrKeystoreCorrupt is returned when a keystore file is truncated or its
// contents do not describe a consistent keypair.
var ErrKeystoreCorrupt = errors.New("wallet: keystore corrupt")

// serializedWallet is the JSON structure for storage.
type serializedWallet struct {
	SigningKey []byte `json:"signing_key"`
	Address    string `json:"address"`
}

// deriveKey uses Argon2id to derive an AES-256 key from passphrase.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// Save encrypts w with passphrase and writes it to path as
// salt || nonce || AES-GCM ciphertext.
func Save(w *Wallet, path, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(serializedWallet{
		SigningKey: w.SigningKey,
		Address:    w.Address(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize wallet: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, data, nil)

	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return nil
}

// Load decrypts the keystore at path.
func Load(path, passphrase string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) < minKeystoreSize {
		return nil, fmt.Errorf("%w: file too short", ErrKeystoreCorrupt)
	}

	salt := data[:saltSize]
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong passphrase?): %w", err)
	}

	var stored serializedWallet
	if err := json.Unmarshal(plaintext, &stored); err != nil {
		return nil, fmt.Errorf("failed to deserialize wallet: %w", err)
	}
	if len(stored.SigningKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: signing key is %d bytes", ErrKeystoreCorrupt, len(stored.SigningKey))
	}

	w := fromPrivateKey(ed25519.PrivateKey(stored.SigningKey))
	if w.Address() != stored.Address {
		return nil, fmt.Errorf("%w: address does not match signing key", ErrKeystoreCorrupt)
	}
	return w, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
