package verification

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	bsm "github.com/bsv-blockchain/go-sdk/compat/bsm"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
)

// ChallengePrefix starts every challenge line.
const ChallengePrefix = "contribsplit:verify:v1"

// NonceSize is the number of random bytes in a session nonce.
const NonceSize = 16

// ChallengeText renders the single line a contributor publishes and signs.
// It is derived only from stored session fields, so it can be rebuilt at
// completion time.
func ChallengeText(handle, address, nonce string, expiresAt time.Time) string {
	return fmt.Sprintf("%s handle=%s address=%s nonce=%s expires=%s",
		ChallengePrefix, handle, address, nonce, expiresAt.UTC().Format(time.RFC3339))
}

func newNonce() (string, error) {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("verification: generating nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SignChallenge produces the proof for text: a base64 Bitcoin Signed Message
// signature by priv. Contributors usually sign with their own wallet.
func SignChallenge(priv *ec.PrivateKey, text string) (string, error) {
	sig, err := bsm.SignMessage(priv, []byte(text))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// verifySignature checks that proof is a compact signature of text by the
// key behind address. The recovered key's address is rendered for the
// address's own network, so testnet addresses verify too.
func verifySignature(address, proof, text string) error {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(proof))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	pub, compressed, err := bsm.PubKeyFromSignature(sig, []byte(text))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !compressed {
		return fmt.Errorf("%w: uncompressed keys are not supported", ErrInvalidSignature)
	}
	mainnet := strings.HasPrefix(address, "1")
	derived, err := script.NewAddressFromPublicKey(pub, mainnet)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if derived.AddressString != address {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, derived.AddressString)
	}
	return nil
}
