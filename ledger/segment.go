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

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/ratemath"
)

// Segment splits a plan into the given carve-out amounts, applied
// sequentially against what remains of the original plan. Each sibling
// inherits the original's asset, start, cliff, period, admin and
// transferability, and carries the original end watermark forward.
// Neither side of any step may end before the plan being split ended;
// the rounding policy widens, never shrinks, and amounts that would
// force a shortened schedule through extreme rounding are rejected.
// The whole call is validated before any record or custody mutation.
func (l *Ledger) Segment(
	holder asset.Address,
	planId PlanId,
	amounts []*big.Int,
) ([]PlanId, error) {
	l.Lock()
	defer l.Unlock()
	return l.segment(holder, planId, amounts)
}

func (l *Ledger) segment(
	holder asset.Address,
	planId PlanId,
	amounts []*big.Int,
) ([]PlanId, error) {
	plan, ok := l.plans[planId]
	if !ok {
		return nil, ErrPlanNotFound
	}
	if plan.Holder != holder {
		return nil, ErrNotOwner
	}
	// Simulate every step on a working copy first so a failing step
	// leaves no trace
	working := plan.clone()
	siblings := make([]*Plan, 0, len(amounts))
	for _, amount := range amounts {
		sibling, err := splitStep(working, amount)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, sibling)
	}
	// Commit: shrink the original, create the siblings, move vault
	// custody, emit one event per carve-out
	plan.Amount.Set(working.Amount)
	plan.Rate.Set(working.Rate)
	l.savePlan(plan)
	vault := l.vaults[planId]
	newIds := make([]PlanId, 0, len(siblings))
	for _, sibling := range siblings {
		l.lastPlanId++
		sibling.Id = l.lastPlanId
		l.plans[sibling.Id] = sibling
		l.savePlan(sibling)
		if vault != nil {
			if _, err := l.createVault(
				sibling, vault.Delegate, vault.Account,
			); err != nil {
				return newIds, err
			}
		}
		l.logger.Info(
			"segmented plan",
			"component", "ledger",
			"plan_id", planId,
			"new_plan_id", sibling.Id,
			"segment_amount", sibling.Amount.String(),
		)
		l.countOp("segment")
		if l.metrics != nil {
			l.metrics.plansLive.Inc()
		}
		l.publish(PlanSegmentedEventType, PlanSegmentedEvent{
			Original: *plan.clone(),
			Segment:  *sibling.clone(),
		})
		newIds = append(newIds, sibling.Id)
	}
	return newIds, nil
}

// splitStep carves amount out of plan, mutating plan's amount and rate
// and returning the new sibling record (without an id). The plan's
// current end time may never shrink on either side.
func splitStep(plan *Plan, amount *big.Int) (*Plan, error) {
	if amount == nil || amount.Sign() == 0 ||
		amount.Cmp(plan.Amount) >= 0 {
		return nil, ErrInvalidAmount
	}
	preEnd, err := plan.End()
	if err != nil {
		return nil, err
	}
	newRemainder := new(big.Int).Sub(plan.Amount, amount)
	remainderRate := ratemath.ProratePlanRate(
		plan.Amount, newRemainder, plan.Rate,
	)
	if remainderRate.Sign() == 0 {
		return nil, ErrZeroRate
	}
	segmentRate := ratemath.CalcPlanRate(
		amount, plan.Period, preEnd, plan.Start, plan.Rate, remainderRate,
	)
	if segmentRate.Sign() == 0 {
		return nil, ErrZeroRate
	}
	remainderEnd, err := ratemath.PlanEnd(
		plan.Start, newRemainder, remainderRate, plan.Period,
	)
	if err != nil {
		return nil, err
	}
	segmentEnd, err := ratemath.PlanEnd(
		plan.Start, amount, segmentRate, plan.Period,
	)
	if err != nil {
		return nil, err
	}
	if remainderEnd < preEnd || segmentEnd < preEnd {
		return nil, ErrEndShortened
	}
	plan.Amount.Set(newRemainder)
	plan.Rate.Set(remainderRate)
	sibling := plan.clone()
	sibling.Amount = new(big.Int).Set(amount)
	sibling.Rate = segmentRate
	return sibling, nil
}

// Combine merges two compatible plans into the first, which survives;
// the second record is zeroed and its ownership burned. The surviving
// schedule may never finish before either constituent did.
func (l *Ledger) Combine(
	holder asset.Address,
	planIdA PlanId,
	planIdB PlanId,
) (PlanId, error) {
	l.Lock()
	defer l.Unlock()
	if planIdA == planIdB {
		return 0, ErrInvalidAmount
	}
	planA, ok := l.plans[planIdA]
	if !ok {
		return 0, fmt.Errorf("plan %d: %w", planIdA, ErrPlanNotFound)
	}
	planB, ok := l.plans[planIdB]
	if !ok {
		return 0, fmt.Errorf("plan %d: %w", planIdB, ErrPlanNotFound)
	}
	if planA.Holder != holder || planB.Holder != holder {
		return 0, ErrNotOwner
	}
	if planA.Asset != planB.Asset {
		return 0, ErrTokenMismatch
	}
	if planA.Start != planB.Start {
		return 0, ErrStartMismatch
	}
	if planA.Cliff != planB.Cliff {
		return 0, ErrCliffMismatch
	}
	if planA.Period != planB.Period {
		return 0, ErrPeriodMismatch
	}
	endA, err := planA.End()
	if err != nil {
		return 0, err
	}
	endB, err := planB.End()
	if err != nil {
		return 0, err
	}
	// Combining is only safe when the two schedules agree on when they
	// finish, either right now or by shared descent from one ur-plan
	if endA != endB && planA.OriginalEnd != planB.OriginalEnd {
		return 0, ErrEndMismatch
	}
	laterEnd := max(endA, endB)
	combinedAmount := new(big.Int).Add(planA.Amount, planB.Amount)
	combinedRate := ratemath.CalcCombinedRate(
		planA.Amount, planB.Amount,
		planA.Rate, planB.Rate,
		planA.Start, laterEnd, planA.Period,
	)
	combinedEnd, err := ratemath.PlanEnd(
		planA.Start, combinedAmount, combinedRate, planA.Period,
	)
	if err != nil {
		return 0, err
	}
	if combinedEnd < laterEnd {
		return 0, ErrEndShortened
	}
	// Reconcile custody before the records change
	if err := l.mergeVaults(planA, planB); err != nil {
		return 0, err
	}
	planA.Amount.Set(combinedAmount)
	planA.Rate.Set(combinedRate)
	planA.OriginalEnd = max(planA.OriginalEnd, planB.OriginalEnd)
	l.savePlan(planA)
	planB.Amount.SetInt64(0)
	l.removePlan(planB)
	l.logger.Info(
		"combined plans",
		"component", "ledger",
		"surviving_plan_id", planIdA,
		"absorbed_plan_id", planIdB,
		"amount", planA.Amount.String(),
	)
	l.countOp("combine")
	l.publish(PlansCombinedEventType, PlansCombinedEvent{
		Surviving:  *planA.clone(),
		AbsorbedId: planIdB,
	})
	return planIdA, nil
}

// mergeVaults moves custody so that after the merge the surviving plan's
// backing (vault if it has one, ledger custody otherwise) holds both
// amounts and any losing vault is drained to exactly zero.
func (l *Ledger) mergeVaults(planA, planB *Plan) error {
	vaultA := l.vaults[planA.Id]
	vaultB := l.vaults[planB.Id]
	switch {
	case vaultA == nil && vaultB == nil:
		// Both balances already sit in ledger custody
		return nil
	case vaultA != nil && vaultB != nil:
		return l.token.Transfer(
			planB.Asset, vaultB.Account, vaultA.Account, planB.Amount,
		)
	case vaultA != nil:
		// B's balance moves from ledger custody into A's vault
		return l.token.Transfer(
			planB.Asset, l.custody, vaultA.Account, planB.Amount,
		)
	default:
		// A has no vault: drain B's vault back to ledger custody
		return l.token.Transfer(
			planB.Asset, vaultB.Account, l.custody, planB.Amount,
		)
	}
}
