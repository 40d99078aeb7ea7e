// Package positions issues transferable handles over pool positions. Every handle owns
// its own pool position through a derived owner-of-record account, so handles in the same
// pool never share fees or liquidity.
package positions

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeAMM/internal/fixedpoint"
	"rangeAMM/internal/model"
	"rangeAMM/internal/notify"
	"rangeAMM/internal/pool"
	"rangeAMM/internal/registry"
	"rangeAMM/internal/txn"
)

type entry struct {
	pool    common.Address
	account common.Address
}

type operatorKey struct {
	owner    common.Address
	operator common.Address
}

// Info describes a handle together with the pool position behind it.
type Info struct {
	ID        uint64
	Owner     common.Address
	Approved  common.Address
	Pool      common.Address
	Account   common.Address
	Token0    common.Address
	Token1    common.Address
	TickLower int32
	TickUpper int32
	Fee       uint32
	pool.Position
}

type Manager struct {
	address   common.Address
	registry  *registry.Registry
	vault     pool.Vault
	publisher notify.Publisher
	logger    *zap.Logger

	journal   txn.Journal
	nextID    uint64
	entries   map[uint64]entry
	owners    map[uint64]common.Address
	balances  map[common.Address]uint64
	approvals map[uint64]common.Address
	operators map[operatorKey]bool
}

func New(address common.Address, reg *registry.Registry, vault pool.Vault, publisher notify.Publisher, logger *zap.Logger) *Manager {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		address:   address,
		registry:  reg,
		vault:     vault,
		publisher: publisher,
		logger:    logger,
		nextID:    1,
		entries:   make(map[uint64]entry),
		owners:    make(map[uint64]common.Address),
		balances:  make(map[common.Address]uint64),
		approvals: make(map[uint64]common.Address),
		operators: make(map[operatorKey]bool),
	}
}

// AccountOf derives the account that holds handle id's pool position.
func AccountOf(ledger common.Address, id uint64) common.Address {
	word := uint256.NewInt(id).Bytes32()
	return common.BytesToAddress(crypto.Keccak256(ledger.Bytes(), word[:])[12:])
}

func (m *Manager) Address() common.Address { return m.address }

func (m *Manager) OwnerOf(id uint64) (common.Address, error) {
	owner, ok := m.owners[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrInvalidToken, id)
	}
	return owner, nil
}

func (m *Manager) BalanceOf(owner common.Address) uint64 { return m.balances[owner] }

func (m *Manager) GetApproved(id uint64) (common.Address, error) {
	if _, err := m.OwnerOf(id); err != nil {
		return common.Address{}, err
	}
	return m.approvals[id], nil
}

func (m *Manager) IsApprovedForAll(owner, operator common.Address) bool {
	return m.operators[operatorKey{owner, operator}]
}

// Tokens lists the ids held by owner in ascending order.
func (m *Manager) Tokens(owner common.Address) []uint64 {
	var ids []uint64
	for id, holder := range m.owners {
		if holder == owner {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Position returns the handle and the current state of its pool position.
func (m *Manager) Position(id uint64) (Info, error) {
	owner, err := m.OwnerOf(id)
	if err != nil {
		return Info{}, err
	}
	e := m.entries[id]
	p, err := m.registry.Lookup(e.pool)
	if err != nil {
		return Info{}, err
	}
	cfg := p.Config()
	return Info{
		ID:        id,
		Owner:     owner,
		Approved:  m.approvals[id],
		Pool:      e.pool,
		Account:   e.account,
		Token0:    cfg.Token0,
		Token1:    cfg.Token1,
		TickLower: cfg.TickLower,
		TickUpper: cfg.TickUpper,
		Fee:       cfg.Fee,
		Position:  p.GetPosition(e.account),
	}, nil
}

func (m *Manager) lookup(id uint64) (entry, *pool.Pool, error) {
	if _, err := m.OwnerOf(id); err != nil {
		return entry{}, nil, err
	}
	e := m.entries[id]
	p, err := m.registry.Lookup(e.pool)
	if err != nil {
		return entry{}, nil, err
	}
	return e, p, nil
}

func (m *Manager) authorize(caller common.Address, id uint64) error {
	owner, err := m.OwnerOf(id)
	if err != nil {
		return err
	}
	if caller == owner || m.approvals[id] == caller || m.operators[operatorKey{owner, caller}] {
		return nil
	}
	return fmt.Errorf("%w: %s on position %d", ErrNotApproved, caller.Hex(), id)
}

// addLiquidity mints the largest liquidity the desired amounts can fund into account.
func (m *Manager) addLiquidity(ctx context.Context, p *pool.Pool, account, payer common.Address, desired0, desired1, min0, min1 *uint256.Int) (*uint256.Int, *uint256.Int, *uint256.Int, error) {
	slot := p.Slot0()
	if !slot.Initialized {
		return nil, nil, nil, pool.ErrNotInitialized
	}
	lower, upper := p.PriceBounds()
	liquidity, err := fixedpoint.GetLiquidityForAmounts(slot.SqrtPriceX96, lower, upper, orZero(desired0), orZero(desired1))
	if err != nil {
		return nil, nil, nil, err
	}
	if liquidity.IsZero() {
		return nil, nil, nil, ErrZeroLiquidity
	}
	amount0, amount1, err := p.Mint(ctx, m.address, account, liquidity, p.PayFrom(payer), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	if amount0.Lt(orZero(min0)) || amount1.Lt(orZero(min1)) {
		return nil, nil, nil, fmt.Errorf("%w: paid (%s, %s), minimum (%s, %s)", ErrSlippageExceeded,
			amount0.ToBig(), amount1.ToBig(), orZero(min0).ToBig(), orZero(min1).ToBig())
	}
	return liquidity, amount0, amount1, nil
}

// MintParams opens a new position. Tokens may be given in either order; the amounts follow
// the tokens they are given with. A nil SqrtPriceX96 requires an initialized pool.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	TickLower      int32
	TickUpper      int32
	Fee            uint32
	SqrtPriceX96   *uint256.Int
	Amount0Desired *uint256.Int
	Amount1Desired *uint256.Int
	Amount0Min     *uint256.Int
	Amount1Min     *uint256.Int
	Payer          common.Address
	Recipient      common.Address
}

type MintResult struct {
	ID        uint64
	Pool      common.Address
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

// Mint creates the pool when needed, funds a new pool position from Payer and issues a
// handle for it to Recipient.
func (m *Manager) Mint(ctx context.Context, params MintParams) (MintResult, error) {
	if params.Recipient == (common.Address{}) {
		return MintResult{}, ErrInvalidRecipient
	}
	token0, token1, err := registry.SortTokens(params.Token0, params.Token1)
	if err != nil {
		return MintResult{}, err
	}
	desired0, desired1 := params.Amount0Desired, params.Amount1Desired
	min0, min1 := params.Amount0Min, params.Amount1Min
	if token0 != params.Token0 {
		desired0, desired1 = desired1, desired0
		min0, min1 = min1, min0
	}

	var result MintResult
	err = txn.Run(func() error {
		p, err := m.poolFor(ctx, token0, token1, params)
		if err != nil {
			return err
		}
		return txn.Run(func() error {
			id := m.allocate()
			account := AccountOf(m.address, id)
			liquidity, amount0, amount1, err := m.addLiquidity(ctx, p, account, params.Payer, desired0, desired1, min0, min1)
			if err != nil {
				return err
			}
			set(&m.journal, m.entries, id, entry{pool: p.Address(), account: account})
			if err := m.move(common.Address{}, params.Recipient, id); err != nil {
				return err
			}
			if err := m.publishLiquidity(model.EventIncreaseLiquidity, id, liquidity, amount0, amount1); err != nil {
				return err
			}
			result = MintResult{ID: id, Pool: p.Address(), Liquidity: liquidity, Amount0: amount0, Amount1: amount1}
			return nil
		}, p)
	}, m, m.registry, m.vault, m.publisher)
	if err != nil {
		return MintResult{}, err
	}
	m.logger.Debug("position minted",
		zap.Uint64("id", result.ID),
		zap.String("pool", result.Pool.Hex()),
		zap.String("liquidity", result.Liquidity.ToBig().String()),
	)
	return result, nil
}

func (m *Manager) poolFor(ctx context.Context, token0, token1 common.Address, params MintParams) (*pool.Pool, error) {
	if params.SqrtPriceX96 != nil {
		return m.registry.CreateAndInitializePoolIfNecessary(ctx, token0, token1, params.TickLower, params.TickUpper, params.Fee, params.SqrtPriceX96)
	}
	address, err := m.registry.CreatePool(token0, token1, params.TickLower, params.TickUpper, params.Fee)
	if err != nil {
		return nil, err
	}
	return m.registry.Lookup(address)
}

type IncreaseParams struct {
	ID             uint64
	Payer          common.Address
	Amount0Desired *uint256.Int
	Amount1Desired *uint256.Int
	Amount0Min     *uint256.Int
	Amount1Min     *uint256.Int
}

type LiquidityResult struct {
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

// IncreaseLiquidity adds to an existing position, funded by Payer. Anyone may add.
func (m *Manager) IncreaseLiquidity(ctx context.Context, params IncreaseParams) (LiquidityResult, error) {
	e, p, err := m.lookup(params.ID)
	if err != nil {
		return LiquidityResult{}, err
	}
	var result LiquidityResult
	err = txn.Run(func() error {
		liquidity, amount0, amount1, err := m.addLiquidity(ctx, p, e.account, params.Payer,
			params.Amount0Desired, params.Amount1Desired, params.Amount0Min, params.Amount1Min)
		if err != nil {
			return err
		}
		result = LiquidityResult{Liquidity: liquidity, Amount0: amount0, Amount1: amount1}
		return m.publishLiquidity(model.EventIncreaseLiquidity, params.ID, liquidity, amount0, amount1)
	}, m.vault, m.publisher, p)
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

type DecreaseParams struct {
	ID         uint64
	Liquidity  *uint256.Int
	Amount0Min *uint256.Int
	Amount1Min *uint256.Int
}

// DecreaseLiquidity burns part of the position. The tokens it was worth become owed to
// the position and are paid out by Collect.
func (m *Manager) DecreaseLiquidity(ctx context.Context, caller common.Address, params DecreaseParams) (LiquidityResult, error) {
	if err := m.authorize(caller, params.ID); err != nil {
		return LiquidityResult{}, err
	}
	if params.Liquidity == nil || params.Liquidity.IsZero() {
		return LiquidityResult{}, ErrZeroLiquidity
	}
	e, p, err := m.lookup(params.ID)
	if err != nil {
		return LiquidityResult{}, err
	}
	var result LiquidityResult
	err = txn.Run(func() error {
		amount0, amount1, err := p.Burn(ctx, e.account, params.Liquidity)
		if err != nil {
			return err
		}
		if amount0.Lt(orZero(params.Amount0Min)) || amount1.Lt(orZero(params.Amount1Min)) {
			return fmt.Errorf("%w: received (%s, %s)", ErrSlippageExceeded, amount0.ToBig(), amount1.ToBig())
		}
		result = LiquidityResult{Liquidity: params.Liquidity.Clone(), Amount0: amount0, Amount1: amount1}
		return m.publishLiquidity(model.EventDecreaseLiquidity, params.ID, params.Liquidity, amount0, amount1)
	}, m.vault, m.publisher, p)
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

// CollectParams caps what Collect pays. Nil maxima collect everything owed.
type CollectParams struct {
	ID         uint64
	Recipient  common.Address
	Amount0Max *uint256.Int
	Amount1Max *uint256.Int
}

// Collect accrues the position's fees and pays its owed balances to Recipient.
func (m *Manager) Collect(ctx context.Context, caller common.Address, params CollectParams) (*uint256.Int, *uint256.Int, error) {
	if err := m.authorize(caller, params.ID); err != nil {
		return nil, nil, err
	}
	if params.Recipient == (common.Address{}) {
		return nil, nil, ErrInvalidRecipient
	}
	e, p, err := m.lookup(params.ID)
	if err != nil {
		return nil, nil, err
	}
	max0, max1 := params.Amount0Max, params.Amount1Max
	if max0 == nil {
		max0 = fixedpoint.MaxUint128
	}
	if max1 == nil {
		max1 = fixedpoint.MaxUint128
	}

	var amount0, amount1 *uint256.Int
	err = txn.Run(func() error {
		if pos := p.GetPosition(e.account); !pos.Liquidity.IsZero() {
			if _, _, err := p.Burn(ctx, e.account, new(uint256.Int)); err != nil {
				return err
			}
		}
		var err error
		if amount0, amount1, err = p.Collect(ctx, e.account, params.Recipient, max0, max1); err != nil {
			return err
		}
		return m.publisher.Publish(m.address, model.EventCollectPosition, model.PositionCollectEventData{
			PositionID: idString(params.ID),
			Recipient:  params.Recipient.Hex(),
			Amount0:    amount0.ToBig().String(),
			Amount1:    amount1.ToBig().String(),
		})
	}, m.vault, m.publisher, p)
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

type BurnResult struct {
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Destroyed bool
}

// Burn removes all remaining liquidity of the position. The handle is destroyed when
// nothing is left owed; otherwise it stays so the owed balances can still be collected.
func (m *Manager) Burn(ctx context.Context, caller common.Address, id uint64) (BurnResult, error) {
	if err := m.authorize(caller, id); err != nil {
		return BurnResult{}, err
	}
	e, p, err := m.lookup(id)
	if err != nil {
		return BurnResult{}, err
	}
	result := BurnResult{Amount0: new(uint256.Int), Amount1: new(uint256.Int)}
	err = txn.Run(func() error {
		if pos := p.GetPosition(e.account); !pos.Liquidity.IsZero() {
			amount0, amount1, err := p.Burn(ctx, e.account, &pos.Liquidity)
			if err != nil {
				return err
			}
			result.Amount0, result.Amount1 = amount0, amount1
			if err := m.publishLiquidity(model.EventDecreaseLiquidity, id, &pos.Liquidity, amount0, amount1); err != nil {
				return err
			}
		}
		if !p.GetPosition(e.account).IsEmpty() {
			return nil
		}
		result.Destroyed = true
		return m.destroy(id)
	}, m, m.vault, m.publisher, p)
	if err != nil {
		return BurnResult{}, err
	}
	return result, nil
}

// Destroy removes a handle whose position holds neither liquidity nor owed tokens.
func (m *Manager) Destroy(caller common.Address, id uint64) error {
	if err := m.authorize(caller, id); err != nil {
		return err
	}
	e, p, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !p.GetPosition(e.account).IsEmpty() {
		return fmt.Errorf("%w: %d", ErrNotCleared, id)
	}
	return txn.Run(func() error { return m.destroy(id) }, m, m.publisher)
}

func (m *Manager) destroy(id uint64) error {
	owner := m.owners[id]
	unset(&m.journal, m.entries, id)
	unset(&m.journal, m.approvals, id)
	if err := m.move(owner, common.Address{}, id); err != nil {
		return err
	}
	m.logger.Debug("position destroyed", zap.Uint64("id", id))
	return nil
}

// TransferFrom hands the position from its owner to another account. The pool
// position behind it is untouched.
func (m *Manager) TransferFrom(caller, from, to common.Address, id uint64) error {
	owner, err := m.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not own position %d", ErrNotApproved, from.Hex(), id)
	}
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if err := m.authorize(caller, id); err != nil {
		return err
	}
	return txn.Run(func() error {
		unset(&m.journal, m.approvals, id)
		return m.move(from, to, id)
	}, m, m.publisher)
}

// Approve lets spender manage one position. Only the owner or one of its operators may approve.
func (m *Manager) Approve(caller, spender common.Address, id uint64) error {
	owner, err := m.OwnerOf(id)
	if err != nil {
		return err
	}
	if spender == owner {
		return ErrApproveToOwner
	}
	if caller != owner && !m.operators[operatorKey{owner, caller}] {
		return fmt.Errorf("%w: %s cannot approve position %d", ErrNotApproved, caller.Hex(), id)
	}
	return txn.Run(func() error {
		if spender == (common.Address{}) {
			unset(&m.journal, m.approvals, id)
		} else {
			set(&m.journal, m.approvals, id, spender)
		}
		return nil
	}, m)
}

// SetApprovalForAll lets operator manage every position of caller.
func (m *Manager) SetApprovalForAll(caller, operator common.Address, approved bool) error {
	if caller == operator {
		return ErrApproveToOwner
	}
	return txn.Run(func() error {
		key := operatorKey{caller, operator}
		if approved {
			set(&m.journal, m.operators, key, true)
		} else {
			unset(&m.journal, m.operators, key)
		}
		return nil
	}, m)
}

func (m *Manager) Snapshot() int           { return m.journal.Snapshot() }
func (m *Manager) RevertToSnapshot(id int) { m.journal.RevertToSnapshot(id) }
func (m *Manager) DiscardSnapshot(id int)  { m.journal.DiscardSnapshot(id) }

func (m *Manager) allocate() uint64 {
	id := m.nextID
	m.journal.Append(func() { m.nextID = id })
	m.nextID++
	return id
}

// move reassigns id and publishes Transfer. A zero from mints and a zero to burns.
func (m *Manager) move(from, to common.Address, id uint64) error {
	if from != (common.Address{}) {
		set(&m.journal, m.balances, from, m.balances[from]-1)
	}
	if to != (common.Address{}) {
		set(&m.journal, m.balances, to, m.balances[to]+1)
		set(&m.journal, m.owners, id, to)
	} else {
		unset(&m.journal, m.owners, id)
	}
	return m.publisher.Publish(m.address, model.EventTransfer, model.TransferEventData{
		From:       from.Hex(),
		To:         to.Hex(),
		PositionID: idString(id),
	})
}

func (m *Manager) publishLiquidity(name string, id uint64, liquidity, amount0, amount1 *uint256.Int) error {
	return m.publisher.Publish(m.address, name, model.LiquidityEventData{
		PositionID: idString(id),
		Liquidity:  liquidity.ToBig().String(),
		Amount0:    amount0.ToBig().String(),
		Amount1:    amount1.ToBig().String(),
	})
}

func set[K comparable, V any](j *txn.Journal, m map[K]V, key K, value V) {
	prev, existed := m[key]
	j.Append(func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = value
}

func unset[K comparable, V any](j *txn.Journal, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	j.Append(func() { m[key] = prev })
	delete(m, key)
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

func idString(id uint64) string { return strconv.FormatUint(id, 10) }
