package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies this.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Compile-time check that TokenReader implements outbound.TokenReader.
var _ outbound.TokenReader = (*TokenReader)(nil)

// TokenReader reads ERC-20 and ERC-1155 state at the chain head.
type TokenReader struct {
	caller ContractCaller
	abis   *parsedABIs
}

// NewTokenReader creates a reader over the given caller.
func NewTokenReader(caller ContractCaller) (*TokenReader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &TokenReader{caller: caller, abis: abis}, nil
}

// Allowance returns the ERC-20 allowance owner granted spender.
func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.view(ctx, r.abis.erc20, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Decimals returns the ERC-20 decimals value.
func (r *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := r.view(ctx, r.abis.erc20, token, "decimals")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// BalanceOf returns the ERC-20 balance of owner.
func (r *TokenReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := r.view(ctx, r.abis.erc20, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// IsApprovedForAll returns the ERC-1155 blanket approval owner granted operator.
func (r *TokenReader) IsApprovedForAll(ctx context.Context, itemContract, owner, operator common.Address) (bool, error) {
	out, err := r.view(ctx, r.abis.erc1155, itemContract, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (r *TokenReader) view(ctx context.Context, contractABI abi.ABI, target common.Address, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	returnData, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", method, target.Hex(), err)
	}
	out, err := contractABI.Unpack(method, returnData)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s from %s: %w", method, target.Hex(), err)
	}
	return out, nil
}
