// Package ledger reads split balances and settles distributions on chain.
package ledger

import "context"

// Recipient is one output of a settlement.
type Recipient struct {
	Address string
	Amount  uint64
}

// Executor reads balances and executes settlements on behalf of the
// controlling authority.
type Executor interface {
	// GetBalance returns the spendable balance held at address.
	GetBalance(ctx context.Context, address, chain string) (uint64, error)

	// ExecuteSettlement pays recipients out of splitAddress and returns the
	// settlement transaction reference.
	ExecuteSettlement(ctx context.Context, splitAddress, chain string, recipients []Recipient) (string, error)
}

// MockExecutor is a test double for Executor.
// All function fields must be set before the corresponding method is called.
type MockExecutor struct {
	GetBalanceFn        func(ctx context.Context, address, chain string) (uint64, error)
	ExecuteSettlementFn func(ctx context.Context, splitAddress, chain string, recipients []Recipient) (string, error)
}

var _ Executor = (*MockExecutor)(nil)

func (m *MockExecutor) GetBalance(ctx context.Context, address, chain string) (uint64, error) {
	return m.GetBalanceFn(ctx, address, chain)
}

func (m *MockExecutor) ExecuteSettlement(ctx context.Context, splitAddress, chain string, recipients []Recipient) (string, error) {
	return m.ExecuteSettlementFn(ctx, splitAddress, chain, recipients)
}
