package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/contribsplit/revshare"
)

// Signer returns the private key controlling a split address.
type Signer interface {
	PrivateKeyFor(address string) (*ec.PrivateKey, error)
}

// RPCExecutorConfig configures an RPCExecutor.
type RPCExecutorConfig struct {
	Network string
	FeeRate uint64 // sat/KB; zero means DefaultFeeRate
	Logger  *slog.Logger
}

// RPCExecutor settles distributions through a node's JSON-RPC interface,
// signing with the controlling authority's keys.
type RPCExecutor struct {
	node    Node
	signer  Signer
	network string
	feeRate uint64
	logger  *slog.Logger

	watched sync.Map // address -> struct{}
}

var _ Executor = (*RPCExecutor)(nil)

// NewRPCExecutor creates an executor backed by node.
func NewRPCExecutor(node Node, signer Signer, cfg RPCExecutorConfig) *RPCExecutor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCExecutor{
		node:    node,
		signer:  signer,
		network: cfg.Network,
		feeRate: cfg.FeeRate,
		logger:  logger,
	}
}

func (e *RPCExecutor) checkChain(chain string) error {
	if e.network != "" && chain != e.network {
		return fmt.Errorf("%w: executor is on %s, request for %s", ErrChainMismatch, e.network, chain)
	}
	return nil
}

// watch imports address into the node wallet once per process.
func (e *RPCExecutor) watch(ctx context.Context, address string) error {
	if _, ok := e.watched.Load(address); ok {
		return nil
	}
	if err := e.node.ImportAddress(ctx, address, true); err != nil {
		if !isRPCError(err) {
			return classify(err)
		}
		// Nodes report already-watched addresses as an RPC error.
		e.logger.Debug("ledger_import_address_rpc_error", "address", address, "error", err)
	}
	e.watched.Store(address, struct{}{})
	return nil
}

// GetBalance sums the unspent outputs at address.
func (e *RPCExecutor) GetBalance(ctx context.Context, address, chain string) (uint64, error) {
	if err := e.checkChain(chain); err != nil {
		return 0, err
	}
	if err := e.watch(ctx, address); err != nil {
		return 0, err
	}
	utxos, err := e.node.ListUnspent(ctx, address)
	if err != nil {
		return 0, classify(err)
	}
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return total, nil
}

// ExecuteSettlement builds, signs and broadcasts one transaction paying
// every recipient from splitAddress. It returns the txid.
func (e *RPCExecutor) ExecuteSettlement(ctx context.Context, splitAddress, chain string, recipients []Recipient) (string, error) {
	if err := e.checkChain(chain); err != nil {
		return "", err
	}
	key, err := e.signer.PrivateKeyFor(splitAddress)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNoSigningKey, splitAddress, err)
	}
	if err := e.watch(ctx, splitAddress); err != nil {
		return "", err
	}
	utxos, err := e.node.ListUnspent(ctx, splitAddress)
	if err != nil {
		return "", classify(err)
	}

	st, err := BuildSettlement(utxos, recipients, splitAddress, key, e.feeRate)
	if err != nil {
		return "", err
	}

	txid, err := e.node.BroadcastTx(ctx, st.RawHex)
	if err != nil {
		return "", classify(err)
	}
	if txid == "" {
		txid = st.TxID
	}
	e.logger.Info("ledger_settlement_broadcast",
		"split_address", splitAddress,
		"txid", txid,
		"recipients", len(recipients),
		"fee", st.Fee,
		"change", st.Change,
	)
	return txid, nil
}

// classify makes sure err carries an external-provider kind.
func classify(err error) error {
	if errors.Is(err, revshare.ErrExternal) || errors.Is(err, revshare.ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}
