package ledger

import (
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

const (
	// DustLimit is the smallest change output worth creating. Smaller change
	// is left to the miner.
	DustLimit = uint64(546)

	// DefaultFeeRate is the default fee rate in sat/KB.
	DefaultFeeRate = uint64(1)
)

// EstimateFee returns the fee for a transaction of txSizeBytes at feeRate sat/KB,
// rounded up.
func EstimateFee(txSizeBytes int, feeRate uint64) uint64 {
	if feeRate == 0 {
		feeRate = DefaultFeeRate
	}
	fee := uint64(txSizeBytes) * feeRate
	return (fee + 999) / 1000
}

// EstimateTxSize estimates the size of a P2PKH-only transaction.
//
//	base:   version(4) + locktime(4) + input count(1) + output count(1) = 10
//	input:  prevhash(32) + index(4) + script len(1) + script(~107) + sequence(4) = 148
//	output: value(8) + script len(1) + script(25) = 34
func EstimateTxSize(numInputs, numOutputs int) int {
	return 10 + numInputs*148 + numOutputs*34
}

// Settlement is a signed settlement transaction ready to broadcast.
type Settlement struct {
	TxID   string
	RawHex string
	Fee    uint64
	Change uint64
}

// BuildSettlement spends every utxo held by key to one P2PKH output per
// recipient, in order. The fee comes out of whatever the recipients leave
// over and the rest returns to changeAddr. A leftover too small for a change
// output is refused with ErrDustChange unless it is within the fee of the
// change output itself.
func BuildSettlement(utxos []*UTXO, recipients []Recipient, changeAddr string, key *ec.PrivateKey, feeRate uint64) (*Settlement, error) {
	if key == nil {
		return nil, ErrNoSigningKey
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: no spendable outputs", ErrInsufficientFunds)
	}

	var total, pay uint64
	for _, u := range utxos {
		total += u.Amount
	}
	for _, r := range recipients {
		pay += r.Amount
	}

	withChange := EstimateFee(EstimateTxSize(len(utxos), len(recipients)+1), feeRate)
	withoutChange := EstimateFee(EstimateTxSize(len(utxos), len(recipients)), feeRate)
	if total < pay+withoutChange {
		return nil, fmt.Errorf("%w: have %d, need %d + fee %d", ErrInsufficientFunds, total, pay, withoutChange)
	}

	sdkTx := transaction.NewTransaction()
	unlocker, err := p2pkh.Unlock(key, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: create unlocker: %w", err)
	}

	for i, u := range utxos {
		txid, err := chainhash.NewHashFromHex(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo %d txid: %w", ErrInvalidResponse, i, err)
		}
		lockBytes, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo %d script: %w", ErrInvalidResponse, i, err)
		}
		sdkTx.AddInput(&transaction.TransactionInput{
			SourceTXID:       txid,
			SourceTxOutIndex: u.Vout,
			SequenceNumber:   transaction.DefaultSequenceNumber,
		})
		sdkTx.Inputs[i].SetSourceTxOutput(&transaction.TransactionOutput{
			Satoshis:      u.Amount,
			LockingScript: script.NewFromBytes(lockBytes),
		})
		sdkTx.Inputs[i].UnlockingScriptTemplate = unlocker
	}

	for _, r := range recipients {
		out, err := p2pkhOutput(r.Address, r.Amount)
		if err != nil {
			return nil, err
		}
		sdkTx.AddOutput(out)
	}

	var fee, change uint64
	switch excess := total - pay - withoutChange; {
	case total >= pay+withChange && total-pay-withChange > DustLimit:
		fee = withChange
		change = total - pay - withChange
		out, err := p2pkhOutput(changeAddr, change)
		if err != nil {
			return nil, err
		}
		sdkTx.AddOutput(out)
	case excess <= withChange-withoutChange:
		fee = total - pay
	default:
		return nil, fmt.Errorf("%w: %d sat left after paying %d", ErrDustChange, excess, pay)
	}

	if err := sdkTx.Sign(); err != nil {
		return nil, fmt.Errorf("ledger: sign settlement: %w", err)
	}

	return &Settlement{
		TxID:   sdkTx.TxID().String(),
		RawHex: sdkTx.Hex(),
		Fee:    fee,
		Change: change,
	}, nil
}

func p2pkhOutput(address string, amount uint64) (*transaction.TransactionOutput, error) {
	addr, err := script.NewAddressFromString(address)
	if err != nil {
		return nil, fmt.Errorf("%w: output address %q: %w", ErrBroadcastRejected, address, err)
	}
	lock, err := p2pkh.Lock(addr)
	if err != nil {
		return nil, fmt.Errorf("ledger: P2PKH lock: %w", err)
	}
	return &transaction.TransactionOutput{Satoshis: amount, LockingScript: lock}, nil
}
