package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/compat/bip39"
	"golang.org/x/crypto/argon2"
)

const (
	Mnemonic12Words = 128
	Mnemonic24Words = 256

	// Argon2id parameters for the sealed seed.
	Argon2Time        = 3
	Argon2Memory      = 64 * 1024 // KiB
	Argon2Parallelism = 4
	Argon2KeyLen      = 32

	SaltLen     = 16
	NonceLen    = 12
	ChecksumLen = 4
)

// GenerateMnemonic returns a fresh BIP39 mnemonic of 12 or 24 words.
func GenerateMnemonic(entropyBits int) (string, error) {
	if entropyBits != Mnemonic12Words && entropyBits != Mnemonic24Words {
		return "", ErrInvalidEntropy
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("keystore: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("keystore: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic derives the 64-byte BIP39 seed. The passphrase may be empty.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("keystore: derive seed: %w", err)
	}
	return seed, nil
}

func sealer(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seedChecksum(seed []byte) []byte {
	sum := sha256.Sum256(seed)
	return sum[:ChecksumLen]
}

// SealSeed encrypts seed under password.
//
//	salt(16) || nonce(12) || AES-256-GCM(argon2id(password, salt), seed || sha256(seed)[:4])
func SealSeed(seed []byte, password string) ([]byte, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}

	out := make([]byte, SaltLen+NonceLen, SaltLen+NonceLen+len(seed)+ChecksumLen+16)
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("keystore: random salt and nonce: %w", err)
	}
	aead, err := sealer(password, out[:SaltLen])
	if err != nil {
		return nil, fmt.Errorf("keystore: cipher setup: %w", err)
	}

	plaintext := append(append([]byte{}, seed...), seedChecksum(seed)...)
	return aead.Seal(out, out[SaltLen:SaltLen+NonceLen], plaintext, nil), nil
}

// OpenSeed reverses SealSeed.
func OpenSeed(sealed []byte, password string) ([]byte, error) {
	if len(sealed) < SaltLen+NonceLen+ChecksumLen {
		return nil, ErrDecryptionFailed
	}
	aead, err := sealer(password, sealed[:SaltLen])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, sealed[SaltLen:SaltLen+NonceLen], sealed[SaltLen+NonceLen:], nil)
	if err != nil || len(plaintext) <= ChecksumLen {
		return nil, ErrDecryptionFailed
	}

	seed, sum := plaintext[:len(plaintext)-ChecksumLen], plaintext[len(plaintext)-ChecksumLen:]
	if subtle.ConstantTimeCompare(sum, seedChecksum(seed)) != 1 {
		return nil, ErrChecksumMismatch
	}
	return seed, nil
}
