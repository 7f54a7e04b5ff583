package keystore

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = fmt.Errorf("%w: keystore: invalid BIP39 mnemonic", revshare.ErrValidation)

	// ErrInvalidEntropy indicates entropy bits is not 128 or 256.
	ErrInvalidEntropy = fmt.Errorf("%w: keystore: entropy bits must be 128 or 256", revshare.ErrValidation)

	// ErrInvalidSeed indicates an empty seed.
	ErrInvalidSeed = errors.New("keystore: invalid seed")

	// ErrDecryptionFailed indicates a wrong password or a corrupted seed file.
	ErrDecryptionFailed = errors.New("keystore: seed decryption failed (wrong password or corrupted data)")

	// ErrChecksumMismatch indicates the decrypted seed fails its checksum.
	ErrChecksumMismatch = errors.New("keystore: seed checksum mismatch")

	// ErrDerivationFailed indicates BIP32 key derivation failed.
	ErrDerivationFailed = errors.New("keystore: key derivation failed")

	// ErrUnknownAddress indicates the keystore never issued the address.
	ErrUnknownAddress = fmt.Errorf("%w: keystore: address not issued by this authority", revshare.ErrNotFound)

	// ErrExhausted indicates the split key chain ran out of non-hardened indexes.
	ErrExhausted = errors.New("keystore: split address index exhausted")

	// ErrExists indicates Create found a keystore already present.
	ErrExists = errors.New("keystore: keystore already exists")
)
