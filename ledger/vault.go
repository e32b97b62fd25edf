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

package ledger

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/blinklabs-io/kennel/asset"
)

const vaultAccountPrefix = "kennel:vault:"

// vaultAccount derives the custody account address for a vault sequence
// number. Vault accounts are owned by the ledger and never reused.
func vaultAccount(seq uint64) asset.Address {
	return asset.Address(
		vaultAccountPrefix + strconv.FormatUint(seq, 10),
	)
}

// vaultAccountSeq recovers the sequence number from a vault account
// address, returning 0 for anything that is not one of ours.
func vaultAccountSeq(account asset.Address) uint64 {
	tmp, ok := strings.CutPrefix(string(account), vaultAccountPrefix)
	if !ok {
		return 0
	}
	seq, err := strconv.ParseUint(tmp, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

// SetupVoting creates a voting vault for the plan, moving its full
// locked balance out of shared custody into a dedicated account whose
// voting weight is delegated. The initial delegate is the holder's
// recorded preference for the asset, or the holder itself.
func (l *Ledger) SetupVoting(
	holder asset.Address,
	planId PlanId,
) (Vault, error) {
	l.Lock()
	defer l.Unlock()
	plan, ok := l.plans[planId]
	if !ok {
		return Vault{}, ErrPlanNotFound
	}
	if plan.Holder != holder {
		return Vault{}, ErrNotOwner
	}
	if _, ok := l.vaults[planId]; ok {
		return Vault{}, ErrVaultExists
	}
	delegate := plan.Holder
	if pref, ok := l.prefs[prefKey{plan.Holder, plan.Asset}]; ok {
		delegate = pref
	}
	vault, err := l.createVault(plan, delegate, l.custody)
	if err != nil {
		return Vault{}, err
	}
	return *vault, nil
}

// Delegate points a plan's voting weight at delegate, creating the vault
// first if the plan does not have one yet.
func (l *Ledger) Delegate(
	holder asset.Address,
	planId PlanId,
	delegate asset.Address,
) error {
	l.Lock()
	defer l.Unlock()
	return l.delegate(holder, planId, delegate)
}

// DelegatePlans delegates each plan to the corresponding delegate. The
// two slices must be the same length. The whole batch is validated
// before any plan is touched, so a bad entry leaves every plan as it
// was.
func (l *Ledger) DelegatePlans(
	holder asset.Address,
	planIds []PlanId,
	delegates []asset.Address,
) error {
	if len(planIds) != len(delegates) {
		return ErrArrayLengthMismatch
	}
	l.Lock()
	defer l.Unlock()
	for _, planId := range planIds {
		if err := l.validateDelegation(holder, planId); err != nil {
			return fmt.Errorf("plan %d: %w", planId, err)
		}
	}
	for i, planId := range planIds {
		if err := l.delegate(holder, planId, delegates[i]); err != nil {
			return fmt.Errorf("plan %d: %w", planId, err)
		}
	}
	return nil
}

// DelegateAll records delegate as the holder's standing preference for
// the asset and applies it to every plan the holder currently has in
// that asset. Future vaults for the pair start out delegated the same
// way.
func (l *Ledger) DelegateAll(
	holder asset.Address,
	assetAddr asset.Address,
	delegate asset.Address,
) error {
	l.Lock()
	defer l.Unlock()
	if !l.token.SupportsDelegation(assetAddr) {
		return asset.ErrNotGovernance
	}
	l.prefs[prefKey{holder, assetAddr}] = delegate
	l.savePref(holder, assetAddr, delegate)
	for _, plan := range l.plans {
		if plan.Holder != holder || plan.Asset != assetAddr {
			continue
		}
		if err := l.delegate(holder, plan.Id, delegate); err != nil {
			return fmt.Errorf("plan %d: %w", plan.Id, err)
		}
	}
	return nil
}

// SegmentAndDelegate carves amounts out of a plan and delegates each new
// segment in a single step, so the new voting weight is never briefly
// undelegated. Segmentation and delegation either both happen or neither
// does.
func (l *Ledger) SegmentAndDelegate(
	holder asset.Address,
	planId PlanId,
	amounts []*big.Int,
	delegates []asset.Address,
) ([]PlanId, error) {
	if len(amounts) != len(delegates) {
		return nil, ErrArrayLengthMismatch
	}
	l.Lock()
	defer l.Unlock()
	// Segments inherit the parent's asset, so checking delegation
	// against the parent covers every plan this call will create
	if err := l.validateDelegation(holder, planId); err != nil {
		return nil, err
	}
	newIds, err := l.segment(holder, planId, amounts)
	if err != nil {
		return nil, err
	}
	for i, newId := range newIds {
		if err := l.delegate(holder, newId, delegates[i]); err != nil {
			return newIds, fmt.Errorf("plan %d: %w", newId, err)
		}
	}
	return newIds, nil
}

// validateDelegation checks every way a delegation can fail without
// mutating anything. Multi-plan entry points run it across the whole
// batch before applying, so no partial batch is ever committed.
func (l *Ledger) validateDelegation(
	holder asset.Address,
	planId PlanId,
) error {
	plan, ok := l.plans[planId]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Holder != holder {
		return ErrNotOwner
	}
	if !l.token.SupportsDelegation(plan.Asset) {
		return asset.ErrNotGovernance
	}
	return nil
}

// delegate applies a delegation with the ledger lock held, creating the
// plan's vault on first use.
func (l *Ledger) delegate(
	holder asset.Address,
	planId PlanId,
	delegate asset.Address,
) error {
	plan, ok := l.plans[planId]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.Holder != holder {
		return ErrNotOwner
	}
	vault, ok := l.vaults[planId]
	if !ok {
		_, err := l.createVault(plan, delegate, l.custody)
		return err
	}
	if vault.Delegate == delegate {
		return nil
	}
	if err := l.token.Delegate(
		plan.Asset, vault.Account, delegate,
	); err != nil {
		return err
	}
	vault.Delegate = delegate
	l.saveVault(vault)
	l.logger.Info(
		"delegated vault",
		"component", "ledger",
		"plan_id", planId,
		"delegate", delegate,
	)
	l.countOp("delegate")
	l.publish(VaultDelegatedEventType, VaultDelegatedEvent{
		PlanId:   planId,
		Account:  vault.Account,
		Delegate: delegate,
	})
	return nil
}

// createVault allocates a fresh vault account for the plan, funds it
// with the plan's full balance from the given source account, and
// delegates it. Called with the ledger lock held.
func (l *Ledger) createVault(
	plan *Plan,
	delegate asset.Address,
	from asset.Address,
) (*Vault, error) {
	if !l.token.SupportsDelegation(plan.Asset) {
		return nil, asset.ErrNotGovernance
	}
	l.vaultSeq++
	vault := &Vault{
		PlanId:   plan.Id,
		Account:  vaultAccount(l.vaultSeq),
		Delegate: delegate,
	}
	if err := l.token.Transfer(
		plan.Asset, from, vault.Account, plan.Amount,
	); err != nil {
		l.vaultSeq--
		return nil, err
	}
	if err := l.token.Delegate(
		plan.Asset, vault.Account, delegate,
	); err != nil {
		return nil, err
	}
	l.vaults[plan.Id] = vault
	l.saveVault(vault)
	if l.metrics != nil {
		l.metrics.vaultsLive.Inc()
	}
	l.logger.Info(
		"created voting vault",
		"component", "ledger",
		"plan_id", plan.Id,
		"vault_account", vault.Account,
		"delegate", delegate,
	)
	l.countOp("vault_create")
	l.publish(VaultCreatedEventType, VaultCreatedEvent{
		PlanId:  plan.Id,
		Account: vault.Account,
	})
	l.publish(VaultDelegatedEventType, VaultDelegatedEvent{
		PlanId:   plan.Id,
		Account:  vault.Account,
		Delegate: delegate,
	})
	return vault, nil
}
