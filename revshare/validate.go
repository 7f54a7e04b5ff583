package revshare

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/bsv-blockchain/go-sdk/script"
)

// ValidateAddress checks that addr is a base58check P2PKH address.
func ValidateAddress(addr string) error {
	if strings.TrimSpace(addr) != addr || addr == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	a, err := script.NewAddressFromString(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidAddress, addr, err)
	}
	if len(a.PublicKeyHash) != 20 {
		return fmt.Errorf("%w: %q: bad hash length", ErrInvalidAddress, addr)
	}
	return nil
}

// ValidateChain checks that chain is a known chain identifier.
func ValidateChain(chain string) error {
	switch chain {
	case ChainMainnet, ChainTestnet, ChainRegtest:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidChain, chain)
	}
}

// ValidateAddressForChain checks addr and that its version byte belongs to chain.
// Mainnet P2PKH addresses start with '1'; testnet and regtest with 'm' or 'n'.
func ValidateAddressForChain(addr, chain string) error {
	if err := ValidateChain(chain); err != nil {
		return err
	}
	if err := ValidateAddress(addr); err != nil {
		return err
	}
	mainnet := addr[0] == '1'
	if (chain == ChainMainnet) != mainnet {
		return fmt.Errorf("%w: %q is not a %s address", ErrInvalidAddress, addr, chain)
	}
	return nil
}

const maxHandleLen = 256

// ValidateHandle checks a contributor handle: a login, a domain, or a display
// name for authors without one. Surrounding whitespace and control
// characters are refused.
func ValidateHandle(handle string) error {
	if handle == "" || len(handle) > maxHandleLen || strings.TrimSpace(handle) != handle {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	for _, r := range handle {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
		}
	}
	return nil
}
