package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time checks that Ledger implements the token ports.
var (
	_ outbound.TokenReader      = (*Ledger)(nil)
	_ outbound.TransferExecutor = (*Ledger)(nil)
)

// Ledger is an in-process token ledger: fungible balances with allowances,
// semi-fungible item holdings with operator approvals, and native-currency
// accounts with a wrap operation.
//
// ExecuteTransfers is the reference all-or-nothing executor: a staged batch
// applies against a snapshot and is discarded wholesale when any single
// transfer fails, so a rejected item move can never strand a payment.
type Ledger struct {
	mu sync.RWMutex

	operator common.Address

	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int                // token -> holder
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int // token -> owner -> spender
	decimals   map[common.Address]uint8

	items         map[common.Address]map[uint64]map[common.Address]uint64 // contract -> item id -> holder
	itemApprovals map[common.Address]map[common.Address]map[common.Address]bool // contract -> owner -> operator
}

// NewLedger creates an empty ledger. Allowance-consuming transfers debit the
// allowance granted to the given operator account.
func NewLedger(operator common.Address) *Ledger {
	return &Ledger{
		operator:      operator,
		native:        make(map[common.Address]*big.Int),
		balances:      make(map[common.Address]map[common.Address]*big.Int),
		allowances:    make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
		decimals:      make(map[common.Address]uint8),
		items:         make(map[common.Address]map[uint64]map[common.Address]uint64),
		itemApprovals: make(map[common.Address]map[common.Address]map[common.Address]bool),
	}
}

// --- seeding helpers -------------------------------------------------------

// SetNativeBalance sets an account's native-currency balance.
func (l *Ledger) SetNativeBalance(account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.native[account] = new(big.Int).Set(amount)
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addBig(l.tokenBalances(token), holder, amount)
}

// SetDecimals registers a token's decimal precision.
func (l *Ledger) SetDecimals(token common.Address, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decimals[token] = decimals
}

// Approve sets the allowance owner grants spender on token.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byOwner, ok := l.allowances[token]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]*big.Int)
		l.allowances[token] = byOwner
	}
	bySpender, ok := byOwner[owner]
	if !ok {
		bySpender = make(map[common.Address]*big.Int)
		byOwner[owner] = bySpender
	}
	bySpender[spender] = new(big.Int).Set(amount)
}

// MintItem credits amount units of item id on contract to holder.
func (l *Ledger) MintItem(contract common.Address, itemID uint64, holder common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byItem, ok := l.items[contract]
	if !ok {
		byItem = make(map[uint64]map[common.Address]uint64)
		l.items[contract] = byItem
	}
	holders, ok := byItem[itemID]
	if !ok {
		holders = make(map[common.Address]uint64)
		byItem[itemID] = holders
	}
	holders[holder] += amount
}

// SetApprovalForAll sets owner's blanket item approval for operator.
func (l *Ledger) SetApprovalForAll(contract, owner, operator common.Address, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byOwner, ok := l.itemApprovals[contract]
	if !ok {
		byOwner = make(map[common.Address]map[common.Address]bool)
		l.itemApprovals[contract] = byOwner
	}
	byOperator, ok := byOwner[owner]
	if !ok {
		byOperator = make(map[common.Address]bool)
		byOwner[owner] = byOperator
	}
	byOperator[operator] = approved
}

// --- TokenReader -----------------------------------------------------------

// Allowance returns the allowance owner granted spender on token.
func (l *Ledger) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bySpender, ok := l.allowances[token][owner]; ok {
		if amount, ok := bySpender[spender]; ok {
			return new(big.Int).Set(amount), nil
		}
	}
	return new(big.Int), nil
}

// Decimals returns the token's registered decimal precision.
func (l *Ledger) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.decimals[token]
	if !ok {
		return 0, fmt.Errorf("unknown token %s", token.Hex())
	}
	return d, nil
}

// BalanceOf returns the holder's balance of token.
func (l *Ledger) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if amount, ok := l.balances[token][owner]; ok {
		return new(big.Int).Set(amount), nil
	}
	return new(big.Int), nil
}

// NativeBalanceOf returns the account's native-currency balance.
func (l *Ledger) NativeBalanceOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if amount, ok := l.native[account]; ok {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

// ItemBalanceOf returns the holder's quantity of item id on contract.
func (l *Ledger) ItemBalanceOf(contract common.Address, itemID uint64, holder common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items[contract][itemID][holder]
}

// IsApprovedForAll reports owner's blanket item approval for operator.
func (l *Ledger) IsApprovedForAll(ctx context.Context, itemContract, owner, operator common.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.itemApprovals[itemContract][owner][operator], nil
}

// --- TransferExecutor ------------------------------------------------------

// ExecuteTransfers applies the staged batch atomically: the whole batch
// commits, or the ledger is left exactly as it was.
func (l *Ledger) ExecuteTransfers(ctx context.Context, transfers []outbound.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.snapshot()

	for i, t := range transfers {
		if err := l.apply(t); err != nil {
			l.restore(snapshot)
			return fmt.Errorf("transfer %d (%s): %w", i, t.Kind, err)
		}
	}
	return nil
}

func (l *Ledger) apply(t outbound.Transfer) error {
	if t.Amount == nil || t.Amount.Sign() < 0 {
		return fmt.Errorf("invalid amount")
	}

	switch t.Kind {
	case outbound.TransferERC20:
		bySpender := l.allowances[t.Token][t.From]
		allowance, ok := bySpender[l.operator]
		if !ok || allowance.Cmp(t.Amount) < 0 {
			return fmt.Errorf("allowance below %s", t.Amount)
		}
		if err := subBig(l.tokenBalances(t.Token), t.From, t.Amount); err != nil {
			return err
		}
		allowance.Sub(allowance, t.Amount)
		addBig(l.tokenBalances(t.Token), t.To, t.Amount)

	case outbound.TransferWrapped:
		if err := subBig(l.tokenBalances(t.Token), t.From, t.Amount); err != nil {
			return err
		}
		addBig(l.tokenBalances(t.Token), t.To, t.Amount)

	case outbound.TransferWrapNative:
		balance, ok := l.native[t.From]
		if !ok || balance.Cmp(t.Amount) < 0 {
			return fmt.Errorf("native balance below %s", t.Amount)
		}
		balance.Sub(balance, t.Amount)
		addBig(l.tokenBalances(t.Token), t.To, t.Amount)

	case outbound.TransferItem:
		if !l.itemApprovals[t.Token][t.From][l.operator] {
			return fmt.Errorf("operator not approved for items of %s", t.From.Hex())
		}
		if !t.Amount.IsUint64() {
			return fmt.Errorf("item amount out of range")
		}
		amount := t.Amount.Uint64()
		holders := l.items[t.Token][t.ItemID]
		if holders[t.From] < amount {
			return fmt.Errorf("item balance below %d", amount)
		}
		holders[t.From] -= amount
		holders[t.To] += amount

	default:
		return fmt.Errorf("unknown transfer kind %q", t.Kind)
	}
	return nil
}

type ledgerSnapshot struct {
	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
	items      map[common.Address]map[uint64]map[common.Address]uint64
}

func (l *Ledger) snapshot() ledgerSnapshot {
	s := ledgerSnapshot{
		native:     make(map[common.Address]*big.Int, len(l.native)),
		balances:   make(map[common.Address]map[common.Address]*big.Int, len(l.balances)),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int, len(l.allowances)),
		items:      make(map[common.Address]map[uint64]map[common.Address]uint64, len(l.items)),
	}
	for k, v := range l.native {
		s.native[k] = new(big.Int).Set(v)
	}
	for token, holders := range l.balances {
		cp := make(map[common.Address]*big.Int, len(holders))
		for holder, amount := range holders {
			cp[holder] = new(big.Int).Set(amount)
		}
		s.balances[token] = cp
	}
	for token, byOwner := range l.allowances {
		ownerCp := make(map[common.Address]map[common.Address]*big.Int, len(byOwner))
		for owner, bySpender := range byOwner {
			spenderCp := make(map[common.Address]*big.Int, len(bySpender))
			for spender, amount := range bySpender {
				spenderCp[spender] = new(big.Int).Set(amount)
			}
			ownerCp[owner] = spenderCp
		}
		s.allowances[token] = ownerCp
	}
	for contract, byItem := range l.items {
		itemCp := make(map[uint64]map[common.Address]uint64, len(byItem))
		for itemID, holders := range byItem {
			holderCp := make(map[common.Address]uint64, len(holders))
			for holder, amount := range holders {
				holderCp[holder] = amount
			}
			itemCp[itemID] = holderCp
		}
		s.items[contract] = itemCp
	}
	return s
}

func (l *Ledger) restore(s ledgerSnapshot) {
	l.native = s.native
	l.balances = s.balances
	l.allowances = s.allowances
	l.items = s.items
}

func (l *Ledger) tokenBalances(token common.Address) map[common.Address]*big.Int {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	return holders
}

func addBig(m map[common.Address]*big.Int, key common.Address, amount *big.Int) {
	if existing, ok := m[key]; ok {
		existing.Add(existing, amount)
		return
	}
	m[key] = new(big.Int).Set(amount)
}

func subBig(m map[common.Address]*big.Int, key common.Address, amount *big.Int) error {
	existing, ok := m[key]
	if !ok || existing.Cmp(amount) < 0 {
		return fmt.Errorf("balance below %s", amount)
	}
	existing.Sub(existing, amount)
	return nil
}
