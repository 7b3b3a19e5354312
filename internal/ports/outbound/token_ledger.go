package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferKind discriminates the staged transfer instructions the exchange
// engine produces for one settlement.
type TransferKind string

const (
	// TransferERC20 moves Amount of the fungible Token from From to To using
	// the allowance From granted to the engine (transferFrom semantics).
	TransferERC20 TransferKind = "erc20"

	// TransferItem moves Amount units of item ItemID on contract Token from
	// From to To (safeTransferFrom semantics; requires operator approval).
	TransferItem TransferKind = "item"

	// TransferWrapNative takes Amount of native currency from From and
	// credits the same Amount of the wrapped Token to To (deposit semantics).
	TransferWrapNative TransferKind = "wrap_native"

	// TransferWrapped moves Amount of the wrapped Token held by From to To
	// (plain transfer semantics; From is the engine's settlement account).
	TransferWrapped TransferKind = "wrapped"
)

// Transfer is one staged transfer instruction. Amount is in the asset's
// native units; ItemID is only set for TransferItem.
type Transfer struct {
	Kind   TransferKind
	Token  common.Address
	From   common.Address
	To     common.Address
	ItemID uint64
	Amount *big.Int
}

// TokenReader provides the read-side of the consumed token interfaces. The
// engine uses it to validate every precondition before anything moves.
type TokenReader interface {
	// Allowance returns how much of token the owner has pre-authorized the
	// spender to move.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// Decimals returns the token's decimal precision.
	Decimals(ctx context.Context, token common.Address) (uint8, error)

	// BalanceOf returns the owner's balance of token.
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// IsApprovedForAll reports whether owner has authorized operator to move
	// their items on the given item contract.
	IsApprovedForAll(ctx context.Context, itemContract, owner, operator common.Address) (bool, error)
}

// TransferExecutor applies a staged transfer batch.
//
// The contract is all-or-nothing: either every transfer in the batch takes
// effect or none of them do. Implementations that cannot provide a true
// atomic commit (e.g. sequential on-chain transactions) must document the
// weaker discipline they provide; the engine compensates by validating all
// preconditions before calling ExecuteTransfers.
type TransferExecutor interface {
	ExecuteTransfers(ctx context.Context, transfers []Transfer) error
}
