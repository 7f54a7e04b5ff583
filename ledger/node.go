package ledger

import (
	"context"
	"errors"
)

// Node is the subset of node RPC the settlement executor needs.
type Node interface {
	ListUnspent(ctx context.Context, address string) ([]*UTXO, error)
	BroadcastTx(ctx context.Context, rawTxHex string) (string, error)
	ImportAddress(ctx context.Context, address string, rescan bool) error
}

var _ Node = (*RPCClient)(nil)

func isRPCError(err error) bool {
	return errors.Is(err, ErrRPC)
}
