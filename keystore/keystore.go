// Package keystore holds the controlling authority's keys.
//
// Key hierarchy: m/44'/236'/0'/{chain}/{index}
// where chain 0 issues one treasury address per split and chain 1 index 0
// is the authority's identity key.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"

	"github.com/bitfsorg/contribsplit/revshare"
)

const (
	PurposeBIP44 = 44
	CoinType     = 236
	Account      = 0

	SplitChain     = 0
	AuthorityChain = 1

	Hardened = 0x80000000

	SeedFile  = "authority.enc"
	StateFile = "authority.json"
)

// Keystore derives split treasury keys from one authority seed and remembers
// which addresses it has handed out. Safe for concurrent use.
type Keystore struct {
	account   *bip32.ExtendedKey
	mainnet   bool
	statePath string

	mu    sync.Mutex
	state *State

	authority struct {
		key     *ec.PrivateKey
		address string
	}
}

// New builds a keystore from a raw seed. When statePath is empty, issued
// addresses are kept in memory only.
func New(seed []byte, chain, statePath string) (*Keystore, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	if err := revshare.ValidateChain(chain); err != nil {
		return nil, err
	}

	net := &chaincfg.TestNet
	mainnet := chain == revshare.ChainMainnet
	if mainnet {
		net = &chaincfg.MainNet
	}
	master, err := bip32.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	account, err := derive(master, PurposeBIP44+Hardened, CoinType+Hardened, Account+Hardened)
	if err != nil {
		return nil, err
	}

	ks := &Keystore{account: account, mainnet: mainnet, statePath: statePath, state: newState(chain)}
	if statePath != "" {
		st, err := loadState(statePath)
		switch {
		case err == nil:
			if st.Chain != chain {
				return nil, fmt.Errorf("%w: state is for %s, keystore opened for %s", revshare.ErrInvalidChain, st.Chain, chain)
			}
			ks.state = st
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	ks.authority.key, ks.authority.address, err = ks.keyAt(AuthorityChain, 0)
	if err != nil {
		return nil, err
	}
	return ks, nil
}

// Create seals seed under password into dir and returns the opened keystore.
func Create(dir string, seed []byte, password, chain string) (*Keystore, error) {
	seedPath := filepath.Join(dir, SeedFile)
	if _, err := os.Stat(seedPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, seedPath)
	}
	sealed, err := SealSeed(seed, password)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: create dir: %w", err)
	}
	if err := os.WriteFile(seedPath, sealed, 0o600); err != nil {
		return nil, fmt.Errorf("keystore: write seed: %w", err)
	}
	ks, err := New(seed, chain, filepath.Join(dir, StateFile))
	if err != nil {
		return nil, err
	}
	if err := ks.state.save(ks.statePath); err != nil {
		return nil, err
	}
	return ks, nil
}

// Open unseals the keystore in dir.
func Open(dir, password, chain string) (*Keystore, error) {
	sealed, err := os.ReadFile(filepath.Join(dir, SeedFile))
	if err != nil {
		return nil, fmt.Errorf("keystore: read seed: %w", err)
	}
	seed, err := OpenSeed(sealed, password)
	if err != nil {
		return nil, err
	}
	return New(seed, chain, filepath.Join(dir, StateFile))
}

func derive(key *bip32.ExtendedKey, path ...uint32) (*bip32.ExtendedKey, error) {
	var err error
	for depth, idx := range path {
		key, err = key.Child(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d: %w", ErrDerivationFailed, depth, err)
		}
	}
	return key, nil
}

func (k *Keystore) keyAt(chain, index uint32) (*ec.PrivateKey, string, error) {
	ext, err := derive(k.account, chain, index)
	if err != nil {
		return nil, "", err
	}
	priv, err := ext.ECPrivKey()
	if err != nil {
		return nil, "", fmt.Errorf("%w: private key: %w", ErrDerivationFailed, err)
	}
	addr, err := script.NewAddressFromPublicKey(priv.PubKey(), k.mainnet)
	if err != nil {
		return nil, "", fmt.Errorf("%w: address: %w", ErrDerivationFailed, err)
	}
	return priv, addr.AddressString, nil
}

// AuthorityAddress is the address identifying the controlling authority.
func (k *Keystore) AuthorityAddress() string { return k.authority.address }

// Chain returns the chain the keystore issues addresses for.
func (k *Keystore) Chain() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Chain
}

// NewSplitAddress issues the next treasury address and persists the
// allocation before returning it.
func (k *Keystore) NewSplitAddress() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx := k.state.NextIndex
	if idx >= Hardened {
		return "", ErrExhausted
	}
	_, addr, err := k.keyAt(SplitChain, idx)
	if err != nil {
		return "", err
	}

	k.state.NextIndex = idx + 1
	k.state.Addresses[addr] = idx
	if k.statePath != "" {
		if err := k.state.save(k.statePath); err != nil {
			k.state.NextIndex = idx
			delete(k.state.Addresses, addr)
			return "", err
		}
	}
	return addr, nil
}

// PrivateKeyFor returns the key controlling address, which must be a split
// address this keystore issued or the authority address.
func (k *Keystore) PrivateKeyFor(address string) (*ec.PrivateKey, error) {
	if address == k.authority.address {
		return k.authority.key, nil
	}
	k.mu.Lock()
	idx, ok := k.state.Addresses[address]
	k.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	priv, _, err := k.keyAt(SplitChain, idx)
	return priv, err
}

// Addresses returns every split address issued so far.
func (k *Keystore) Addresses() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.state.Addresses))
	for addr := range k.state.Addresses {
		out = append(out, addr)
	}
	return out
}
