package ledger

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrConnectionFailed indicates the client could not reach the node.
	ErrConnectionFailed = fmt.Errorf("%w: ledger: connection failed", revshare.ErrNetwork)

	// ErrInvalidResponse indicates the node returned a malformed or unexpected response.
	ErrInvalidResponse = fmt.Errorf("%w: ledger: invalid response", revshare.ErrNetwork)

	// ErrAuthFailed indicates the node rejected the RPC credentials.
	ErrAuthFailed = fmt.Errorf("%w: ledger: rpc authentication failed", revshare.ErrAuth)

	// ErrBroadcastRejected indicates the node refused the settlement transaction.
	ErrBroadcastRejected = fmt.Errorf("%w: ledger: broadcast rejected", revshare.ErrRejected)

	// ErrInsufficientFunds indicates the split's outputs cannot cover recipients plus fee.
	ErrInsufficientFunds = fmt.Errorf("%w: ledger: insufficient funds", revshare.ErrRejected)

	// ErrDustChange indicates the leftover after paying recipients is more
	// than the fee but too small to return as change.
	ErrDustChange = fmt.Errorf("%w: ledger: leftover below dust limit", revshare.ErrRejected)

	// ErrNoSigningKey indicates the authority holds no key for the split address.
	ErrNoSigningKey = fmt.Errorf("%w: ledger: no signing key for address", revshare.ErrRejected)

	// ErrNoRecipients indicates a settlement without recipients.
	ErrNoRecipients = fmt.Errorf("%w: ledger: no recipients", revshare.ErrValidation)

	// ErrChainMismatch indicates a request for a chain this executor is not connected to.
	ErrChainMismatch = fmt.Errorf("%w: ledger: chain mismatch", revshare.ErrValidation)

	// ErrRPC indicates the node answered with a JSON-RPC error object.
	ErrRPC = errors.New("ledger: rpc error")

	// ErrMissingRPCConfig indicates no RPC endpoint could be resolved.
	ErrMissingRPCConfig = fmt.Errorf("%w: ledger: missing rpc configuration", revshare.ErrValidation)
)
