package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Backend is the subset of an Ethereum client the executor needs: read-only
// calls for the validation pass, transaction submission, and receipt lookup.
// *ethclient.Client satisfies this.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Compile-time check that Executor implements outbound.TransferExecutor.
var _ outbound.TransferExecutor = (*Executor)(nil)

// Executor settles staged transfer batches on chain from the operator
// account. On-chain transfers cannot be rolled back once mined, so the
// executor validates the entire batch with eth_call dry-runs before sending
// anything: every transfer that could fail is rejected up front, and only
// then are the transactions submitted and awaited in order.
//
// The wrap-native leg spends the operator's own balance; the inbound payment
// channel is responsible for having forwarded the buyer's attached value to
// the operator before settlement starts.
type Executor struct {
	backend Backend
	opts    *bind.TransactOpts
	abis    *parsedABIs
	logger  *slog.Logger
}

// NewExecutor creates an executor signing with the given transact options.
func NewExecutor(backend Backend, opts *bind.TransactOpts, logger *slog.Logger) (*Executor, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if opts == nil {
		return nil, fmt.Errorf("transact options cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &Executor{backend: backend, opts: opts, abis: abis, logger: logger}, nil
}

// stagedCall is one transfer lowered to a contract call.
type stagedCall struct {
	target   common.Address
	callData []byte
	value    *big.Int
}

// ExecuteTransfers validates and then submits the batch. A validation failure
// aborts before any transaction is sent. A submission or revert after the
// validation pass is reported as an error; by then earlier legs may have
// mined, which is the residual risk of settling over individual transactions.
func (e *Executor) ExecuteTransfers(ctx context.Context, transfers []outbound.Transfer) error {
	calls := make([]stagedCall, len(transfers))
	for i, t := range transfers {
		call, err := e.lower(t)
		if err != nil {
			return fmt.Errorf("transfer %d (%s): %w", i, t.Kind, err)
		}
		calls[i] = call
	}

	for i, call := range calls {
		msg := ethereum.CallMsg{
			From:  e.opts.From,
			To:    &call.target,
			Value: call.value,
			Data:  call.callData,
		}
		if _, err := e.backend.CallContract(ctx, msg, nil); err != nil {
			return fmt.Errorf("validating transfer %d (%s): %w", i, transfers[i].Kind, err)
		}
	}

	for i, call := range calls {
		if err := e.submit(ctx, call); err != nil {
			return fmt.Errorf("executing transfer %d (%s): %w", i, transfers[i].Kind, err)
		}
	}
	return nil
}

func (e *Executor) lower(t outbound.Transfer) (stagedCall, error) {
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return stagedCall{}, fmt.Errorf("invalid amount")
	}

	switch t.Kind {
	case outbound.TransferERC20:
		callData, err := e.abis.erc20.Pack("transferFrom", t.From, t.To, t.Amount)
		if err != nil {
			return stagedCall{}, err
		}
		return stagedCall{target: t.Token, callData: callData}, nil

	case outbound.TransferWrapped:
		callData, err := e.abis.erc20.Pack("transfer", t.To, t.Amount)
		if err != nil {
			return stagedCall{}, err
		}
		return stagedCall{target: t.Token, callData: callData}, nil

	case outbound.TransferWrapNative:
		callData, err := e.abis.weth.Pack("deposit")
		if err != nil {
			return stagedCall{}, err
		}
		return stagedCall{target: t.Token, callData: callData, value: t.Amount}, nil

	case outbound.TransferItem:
		callData, err := e.abis.erc1155.Pack("safeTransferFrom",
			t.From, t.To, new(big.Int).SetUint64(t.ItemID), t.Amount, []byte{})
		if err != nil {
			return stagedCall{}, err
		}
		return stagedCall{target: t.Token, callData: callData}, nil

	default:
		return stagedCall{}, fmt.Errorf("unknown transfer kind %q", t.Kind)
	}
}

func (e *Executor) submit(ctx context.Context, call stagedCall) error {
	opts := *e.opts
	opts.Context = ctx
	opts.Value = call.value

	contract := bind.NewBoundContract(call.target, e.abis.erc20, e.backend, e.backend, e.backend)
	tx, err := contract.RawTransact(&opts, call.callData)
	if err != nil {
		return fmt.Errorf("sending transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, e.backend, tx)
	if err != nil {
		return fmt.Errorf("waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}

	e.logger.Debug("transfer mined", "tx", tx.Hash().Hex(), "target", call.target.Hex())
	return nil
}
