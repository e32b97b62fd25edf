// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package asset

import (
	"io"
	"log/slog"
	"math/big"
	"sync"
)

type balanceKey struct {
	asset  Address
	holder Address
}

type approvalKey struct {
	asset   Address
	owner   Address
	spender Address
}

type assetInfo struct {
	governance bool
}

// LedgerConfig configures an in-memory asset ledger.
type LedgerConfig struct {
	Logger *slog.Logger
}

// Ledger is an in-memory, mutex-guarded implementation of the Token and
// GovernanceToken interfaces with exact-amount transfer semantics.
type Ledger struct {
	config    LedgerConfig
	logger    *slog.Logger
	assets    map[Address]assetInfo
	balances  map[balanceKey]*big.Int
	approvals map[approvalKey]*big.Int
	delegates map[balanceKey]Address
	sync.RWMutex
}

func NewLedger(config LedgerConfig) *Ledger {
	l := &Ledger{
		config:    config,
		assets:    make(map[Address]assetInfo),
		balances:  make(map[balanceKey]*big.Int),
		approvals: make(map[approvalKey]*big.Int),
		delegates: make(map[balanceKey]Address),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = config.Logger
	}
	return l
}

// Register adds an asset. Governance assets support delegation.
func (l *Ledger) Register(asset Address, governance bool) {
	l.Lock()
	defer l.Unlock()
	l.assets[asset] = assetInfo{governance: governance}
}

// Mint credits amount of asset to holder, registering the asset if needed.
func (l *Ledger) Mint(asset Address, holder Address, amount *big.Int) {
	l.Lock()
	defer l.Unlock()
	if _, ok := l.assets[asset]; !ok {
		l.assets[asset] = assetInfo{}
	}
	l.credit(asset, holder, amount)
	l.logger.Debug(
		"minted tokens",
		"component", "asset",
		"asset", asset,
		"holder", holder,
		"amount", amount.String(),
	)
}

// Approve lets spender move up to amount of owner's asset balance.
func (l *Ledger) Approve(asset Address, owner, spender Address, amount *big.Int) {
	l.Lock()
	defer l.Unlock()
	l.approvals[approvalKey{asset, owner, spender}] = new(big.Int).Set(amount)
}

func (l *Ledger) Transfer(asset Address, from, to Address, amount *big.Int) error {
	l.Lock()
	defer l.Unlock()
	return l.transfer(asset, from, to, amount)
}

func (l *Ledger) TransferFrom(
	asset Address,
	spender, from, to Address,
	amount *big.Int,
) error {
	l.Lock()
	defer l.Unlock()
	if spender != from {
		key := approvalKey{asset, from, spender}
		approved, ok := l.approvals[key]
		if !ok || approved.Cmp(amount) < 0 {
			return ErrInsufficientApproval
		}
		approved.Sub(approved, amount)
	}
	return l.transfer(asset, from, to, amount)
}

func (l *Ledger) BalanceOf(asset Address, holder Address) (*big.Int, error) {
	l.RLock()
	defer l.RUnlock()
	if _, ok := l.assets[asset]; !ok {
		return nil, ErrUnknownAsset
	}
	bal, ok := l.balances[balanceKey{asset, holder}]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

func (l *Ledger) SupportsDelegation(asset Address) bool {
	l.RLock()
	defer l.RUnlock()
	return l.assets[asset].governance
}

func (l *Ledger) Delegate(asset Address, holder, to Address) error {
	l.Lock()
	defer l.Unlock()
	if !l.assets[asset].governance {
		return ErrNotGovernance
	}
	l.delegates[balanceKey{asset, holder}] = to
	return nil
}

func (l *Ledger) Delegates(asset Address, holder Address) (Address, error) {
	l.RLock()
	defer l.RUnlock()
	if !l.assets[asset].governance {
		return ZeroAddress, ErrNotGovernance
	}
	return l.delegates[balanceKey{asset, holder}], nil
}

// Balances returns a copy of every non-zero balance, keyed by asset then
// holder. Used by the node to flush state to the database store.
func (l *Ledger) Balances() map[Address]map[Address]*big.Int {
	l.RLock()
	defer l.RUnlock()
	ret := make(map[Address]map[Address]*big.Int)
	for key, bal := range l.balances {
		if bal.Sign() == 0 {
			continue
		}
		if _, ok := ret[key.asset]; !ok {
			ret[key.asset] = make(map[Address]*big.Int)
		}
		ret[key.asset][key.holder] = new(big.Int).Set(bal)
	}
	return ret
}

// LoadBalances seeds balances from a persisted snapshot, registering any
// asset it has not seen. Assets restored this way are assumed to support
// delegation; callers register non-governance assets beforehand.
func (l *Ledger) LoadBalances(balances map[Address]map[Address]*big.Int) {
	l.Lock()
	defer l.Unlock()
	for asset, byHolder := range balances {
		if _, ok := l.assets[asset]; !ok {
			l.assets[asset] = assetInfo{governance: true}
		}
		for holder, amount := range byHolder {
			l.balances[balanceKey{asset, holder}] = new(big.Int).Set(amount)
		}
	}
}

func (l *Ledger) transfer(asset Address, from, to Address, amount *big.Int) error {
	if _, ok := l.assets[asset]; !ok {
		return ErrUnknownAsset
	}
	fromBal, ok := l.balances[balanceKey{asset, from}]
	if !ok || fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	fromBal.Sub(fromBal, amount)
	l.credit(asset, to, amount)
	return nil
}

func (l *Ledger) credit(asset Address, holder Address, amount *big.Int) {
	key := balanceKey{asset, holder}
	if bal, ok := l.balances[key]; ok {
		bal.Add(bal, amount)
		return
	}
	l.balances[key] = new(big.Int).Set(amount)
}
