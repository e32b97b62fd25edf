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
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/event"
	"github.com/blinklabs-io/kennel/ratemath"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCustodyAccount is the address holding custody of plan balances
// that are not routed through a voting vault.
const DefaultCustodyAccount = asset.Address("kennel:custody")

type prefKey struct {
	holder asset.Address
	asset  asset.Address
}

type LedgerConfig struct {
	Logger         *slog.Logger
	EventBus       *event.EventBus
	PromRegistry   prometheus.Registerer
	Token          asset.GovernanceToken
	Store          Store
	Clock          func() time.Time
	CustodyAccount asset.Address
}

// Ledger owns the plan id space and all plan records. Every entry point
// runs to completion under the ledger lock: record mutation and the
// matching custody movement happen in the same atomic step, and a failed
// validation aborts before either occurs.
type Ledger struct {
	config     LedgerConfig
	logger     *slog.Logger
	eventBus   *event.EventBus
	token      asset.GovernanceToken
	store      Store
	clock      func() time.Time
	custody    asset.Address
	plans      map[PlanId]*Plan
	vaults     map[PlanId]*Vault
	prefs      map[prefKey]asset.Address
	lastPlanId PlanId
	vaultSeq   uint64
	metrics    *ledgerMetrics
	sync.RWMutex
}

func NewLedger(config LedgerConfig) *Ledger {
	l := &Ledger{
		config:   config,
		eventBus: config.EventBus,
		token:    config.Token,
		store:    config.Store,
		clock:    config.Clock,
		custody:  config.CustodyAccount,
		plans:    make(map[PlanId]*Plan),
		vaults:   make(map[PlanId]*Vault),
		prefs:    make(map[prefKey]asset.Address),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = config.Logger
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.custody == asset.ZeroAddress {
		l.custody = DefaultCustodyAccount
	}
	if config.PromRegistry != nil {
		l.initMetrics(config.PromRegistry)
	}
	return l
}

// Load seeds the ledger from persisted state. It must be called before
// any operation and is not safe to call concurrently with them.
func (l *Ledger) Load(
	plans []Plan,
	vaults []Vault,
	prefs map[asset.Address]map[asset.Address]asset.Address,
) {
	l.Lock()
	defer l.Unlock()
	for i := range plans {
		plan := plans[i].clone()
		l.plans[plan.Id] = plan
		if plan.Id > l.lastPlanId {
			l.lastPlanId = plan.Id
		}
	}
	for i := range vaults {
		tmp := vaults[i]
		l.vaults[tmp.PlanId] = &tmp
		if seq := vaultAccountSeq(tmp.Account); seq > l.vaultSeq {
			l.vaultSeq = seq
		}
	}
	for holder, byAsset := range prefs {
		for assetAddr, delegate := range byAsset {
			l.prefs[prefKey{holder, assetAddr}] = delegate
		}
	}
	if l.metrics != nil {
		l.metrics.plansLive.Set(float64(len(l.plans)))
		l.metrics.vaultsLive.Set(float64(len(l.vaults)))
	}
}

// CreateParams describes a plan creation. Funder must have approved the
// ledger custody account to pull Amount of Asset. An empty Admin creates
// a plain lockup; Transferable is only meaningful with an Admin set.
type CreateParams struct {
	Amount       *big.Int
	Rate         *big.Int
	Funder       asset.Address
	Holder       asset.Address
	Asset        asset.Address
	Admin        asset.Address
	Period       int64
	Start        int64
	Cliff        int64
	Transferable bool
}

// Create pulls custody of the plan amount and creates the plan record in
// one atomic step. Nothing is recorded if the custody pull fails.
func (l *Ledger) Create(params CreateParams) (PlanId, error) {
	l.Lock()
	defer l.Unlock()
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if params.Rate == nil || params.Rate.Sign() == 0 ||
		params.Rate.Cmp(params.Amount) > 0 {
		return 0, ErrInvalidRate
	}
	if params.Period <= 0 {
		return 0, ErrInvalidSchedule
	}
	if params.Cliff < params.Start {
		return 0, ErrInvalidSchedule
	}
	end, err := ratemath.PlanEnd(
		params.Start, params.Amount, params.Rate, params.Period,
	)
	if err != nil {
		return 0, ErrInvalidRate
	}
	if params.Cliff > end {
		return 0, ErrInvalidSchedule
	}
	// Pull custody before recording anything
	if err := l.token.TransferFrom(
		params.Asset,
		l.custody,
		params.Funder,
		l.custody,
		params.Amount,
	); err != nil {
		return 0, fmt.Errorf("custody pull failed: %w", err)
	}
	l.lastPlanId++
	plan := &Plan{
		Id:           l.lastPlanId,
		Holder:       params.Holder,
		Asset:        params.Asset,
		Amount:       new(big.Int).Set(params.Amount),
		Rate:         new(big.Int).Set(params.Rate),
		Period:       params.Period,
		Start:        params.Start,
		Cliff:        params.Cliff,
		Admin:        params.Admin,
		Transferable: params.Transferable,
		OriginalEnd:  end,
	}
	l.plans[plan.Id] = plan
	l.savePlan(plan)
	l.logger.Info(
		"created plan",
		"component", "ledger",
		"plan_id", plan.Id,
		"holder", plan.Holder,
		"asset", plan.Asset,
		"amount", plan.Amount.String(),
	)
	l.countOp("create")
	if l.metrics != nil {
		l.metrics.plansLive.Inc()
	}
	l.publish(PlanCreatedEventType, PlanCreatedEvent{Plan: *plan.clone()})
	return plan.Id, nil
}

// RedeemPartial redeems the vested balance of each owned plan as of
// redeemTime, which must be strictly in the past. Plans the caller does
// not own, or that have not started vesting, are skipped without error.
// Returns the amount redeemed per plan.
func (l *Ledger) RedeemPartial(
	holder asset.Address,
	planIds []PlanId,
	redeemTime int64,
) (map[PlanId]*big.Int, error) {
	l.Lock()
	defer l.Unlock()
	now := l.clock().Unix()
	if redeemTime >= now {
		return nil, ErrFutureRedemption
	}
	return l.redeemPlans(holder, planIds, now, redeemTime)
}

// RedeemAll redeems the vested balance of each owned plan as of the
// current clock.
func (l *Ledger) RedeemAll(
	holder asset.Address,
	planIds []PlanId,
) (map[PlanId]*big.Int, error) {
	l.Lock()
	defer l.Unlock()
	now := l.clock().Unix()
	return l.redeemPlans(holder, planIds, now, now)
}

func (l *Ledger) redeemPlans(
	holder asset.Address,
	planIds []PlanId,
	now int64,
	redeemTime int64,
) (map[PlanId]*big.Int, error) {
	redeemed := make(map[PlanId]*big.Int, len(planIds))
	for _, planId := range planIds {
		plan, ok := l.plans[planId]
		if !ok || plan.Holder != holder {
			continue
		}
		if redeemTime < plan.Start || redeemTime < plan.Cliff {
			continue
		}
		bal := ratemath.BalanceAtTime(
			plan.Start,
			plan.Cliff,
			plan.Amount,
			plan.Rate,
			plan.Period,
			now,
			redeemTime,
		)
		if bal.Balance.Sign() == 0 {
			// Not vesting yet, or no whole period has elapsed
			continue
		}
		if err := l.payOut(plan, plan.Holder, bal.Balance); err != nil {
			return nil, err
		}
		plan.Amount.Set(bal.Remainder)
		plan.Start = bal.LatestUnlock
		planCopy := *plan.clone()
		if plan.Amount.Sign() == 0 {
			l.removePlan(plan)
		} else {
			l.savePlan(plan)
		}
		l.logger.Info(
			"redeemed plan",
			"component", "ledger",
			"plan_id", planId,
			"balance", bal.Balance.String(),
			"remainder", bal.Remainder.String(),
		)
		l.countOp("redeem")
		l.publish(PlanRedeemedEventType, PlanRedeemedEvent{
			Plan:         planCopy,
			Balance:      bal.Balance,
			Remainder:    bal.Remainder,
			LatestUnlock: bal.LatestUnlock,
		})
		redeemed[planId] = bal.Balance
	}
	return redeemed, nil
}

// Revoke terminates each plan as of the current clock, paying the vested
// portion to the holder and returning the unvested remainder to the
// admin. Only the plan admin may revoke. The whole batch is validated
// before any plan is touched.
func (l *Ledger) Revoke(admin asset.Address, planIds []PlanId) error {
	l.Lock()
	defer l.Unlock()
	now := l.clock().Unix()
	return l.revokePlans(admin, planIds, now, now)
}

// FutureRevoke is Revoke with a revocation time in the future: vesting
// continues until revokeTime and the remainder as of that time is
// returned to the admin now.
func (l *Ledger) FutureRevoke(
	admin asset.Address,
	planIds []PlanId,
	revokeTime int64,
) error {
	l.Lock()
	defer l.Unlock()
	now := l.clock().Unix()
	if revokeTime <= now {
		return ErrPastRevoke
	}
	return l.revokePlans(admin, planIds, now, revokeTime)
}

func (l *Ledger) revokePlans(
	admin asset.Address,
	planIds []PlanId,
	now int64,
	revokeTime int64,
) error {
	// Validate the whole batch before mutating anything
	type revocation struct {
		plan *Plan
		bal  ratemath.Balance
	}
	revocations := make([]revocation, 0, len(planIds))
	seen := make(map[PlanId]struct{}, len(planIds))
	for _, planId := range planIds {
		// A repeated id would pass validation twice against the same
		// live record and be paid out twice in the commit loop
		if _, dup := seen[planId]; dup {
			return fmt.Errorf("plan %d: %w", planId, ErrDuplicatePlan)
		}
		seen[planId] = struct{}{}
		plan, ok := l.plans[planId]
		if !ok {
			return fmt.Errorf("plan %d: %w", planId, ErrPlanNotFound)
		}
		if !plan.HasAdmin() || plan.Admin != admin {
			return fmt.Errorf("plan %d: %w", planId, ErrNotAdmin)
		}
		if plan.Amount.Sign() == 0 {
			return fmt.Errorf("plan %d: %w", planId, ErrNoRemainder)
		}
		if revokeTime > now {
			end, err := plan.End()
			if err != nil {
				return err
			}
			if revokeTime >= end {
				return fmt.Errorf("plan %d: %w", planId, ErrNoRemainder)
			}
		}
		bal := ratemath.BalanceAtTime(
			plan.Start,
			plan.Cliff,
			plan.Amount,
			plan.Rate,
			plan.Period,
			revokeTime,
			revokeTime,
		)
		if bal.Remainder.Sign() == 0 {
			return fmt.Errorf("plan %d: %w", planId, ErrNoRemainder)
		}
		revocations = append(revocations, revocation{plan: plan, bal: bal})
	}
	for _, rev := range revocations {
		plan := rev.plan
		if err := l.payOut(plan, plan.Admin, rev.bal.Remainder); err != nil {
			return err
		}
		if rev.bal.Balance.Sign() > 0 {
			if err := l.payOut(plan, plan.Holder, rev.bal.Balance); err != nil {
				return err
			}
		}
		planCopy := *plan.clone()
		plan.Amount.SetInt64(0)
		l.removePlan(plan)
		l.logger.Info(
			"revoked plan",
			"component", "ledger",
			"plan_id", plan.Id,
			"balance", rev.bal.Balance.String(),
			"remainder", rev.bal.Remainder.String(),
		)
		l.countOp("revoke")
		l.publish(PlanRevokedEventType, PlanRevokedEvent{
			Plan:      planCopy,
			Balance:   rev.bal.Balance,
			Remainder: rev.bal.Remainder,
		})
	}
	return nil
}

// Transfer moves ownership of a plan. Plain lockups are transferable by
// their holder; admin-governed plans only by their admin and only when
// marked transferable. A plan can never be transferred to its admin.
func (l *Ledger) Transfer(
	caller asset.Address,
	planId PlanId,
	to asset.Address,
) error {
	l.Lock()
	defer l.Unlock()
	plan, ok := l.plans[planId]
	if !ok {
		return ErrPlanNotFound
	}
	if plan.HasAdmin() {
		if caller != plan.Admin {
			return ErrNotAdmin
		}
		if !plan.Transferable {
			return ErrNotTransferable
		}
		if to == plan.Admin {
			return ErrSelfTransferToAdmin
		}
	} else if caller != plan.Holder {
		return ErrNotOwner
	}
	from := plan.Holder
	plan.Holder = to
	l.savePlan(plan)
	l.logger.Info(
		"transferred plan",
		"component", "ledger",
		"plan_id", planId,
		"from", from,
		"to", to,
	)
	l.countOp("transfer")
	l.publish(PlanTransferredEventType, PlanTransferredEvent{
		Plan: *plan.clone(),
		From: from,
		To:   to,
	})
	return nil
}

// ChangeAdmin reassigns a vesting plan's admin. Only the current admin
// may do this.
func (l *Ledger) ChangeAdmin(
	caller asset.Address,
	planId PlanId,
	newAdmin asset.Address,
) error {
	l.Lock()
	defer l.Unlock()
	plan, ok := l.plans[planId]
	if !ok {
		return ErrPlanNotFound
	}
	if !plan.HasAdmin() || caller != plan.Admin {
		return ErrNotAdmin
	}
	oldAdmin := plan.Admin
	plan.Admin = newAdmin
	l.savePlan(plan)
	l.countOp("change_admin")
	l.publish(AdminChangedEventType, AdminChangedEvent{
		Plan:     *plan.clone(),
		OldAdmin: oldAdmin,
		NewAdmin: newAdmin,
	})
	return nil
}

// GetPlan returns a copy of a plan record.
func (l *Ledger) GetPlan(planId PlanId) (Plan, bool) {
	l.RLock()
	defer l.RUnlock()
	plan, ok := l.plans[planId]
	if !ok {
		return Plan{}, false
	}
	return *plan.clone(), true
}

// Plans returns a copy of every live plan record.
func (l *Ledger) Plans() []Plan {
	l.RLock()
	defer l.RUnlock()
	ret := make([]Plan, 0, len(l.plans))
	for _, plan := range l.plans {
		ret = append(ret, *plan.clone())
	}
	return ret
}

// VaultForPlan returns the voting vault backing a plan, if any.
func (l *Ledger) VaultForPlan(planId PlanId) (Vault, bool) {
	l.RLock()
	defer l.RUnlock()
	vault, ok := l.vaults[planId]
	if !ok {
		return Vault{}, false
	}
	return *vault, true
}

// payOut moves amount from whichever custody currently backs the plan
// (vault or ledger) to the recipient.
func (l *Ledger) payOut(
	plan *Plan,
	to asset.Address,
	amount *big.Int,
) error {
	source := l.custody
	if vault, ok := l.vaults[plan.Id]; ok {
		source = vault.Account
	}
	if err := l.token.Transfer(plan.Asset, source, to, amount); err != nil {
		return fmt.Errorf("custody transfer failed: %w", err)
	}
	return nil
}

// removePlan deletes a fully drained plan record and clears its vault
// mapping. The vault account is empty by the time this is called.
func (l *Ledger) removePlan(plan *Plan) {
	delete(l.plans, plan.Id)
	l.deletePlan(plan.Id)
	if _, ok := l.vaults[plan.Id]; ok {
		delete(l.vaults, plan.Id)
		l.deleteVault(plan.Id)
		if l.metrics != nil {
			l.metrics.vaultsLive.Dec()
		}
	}
	if l.metrics != nil {
		l.metrics.plansLive.Dec()
	}
}

func (l *Ledger) publish(eventType event.EventType, data any) {
	if l.eventBus == nil {
		return
	}
	l.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}

func (l *Ledger) countOp(op string) {
	if l.metrics != nil {
		l.metrics.operationsTotal.WithLabelValues(op).Inc()
	}
}

// Store write-through helpers. Store failures are logged rather than
// propagated: the in-memory ledger is authoritative within a process and
// the store is rebuilt from it on flush.
func (l *Ledger) savePlan(plan *Plan) {
	if l.store == nil {
		return
	}
	if err := l.store.SavePlan(plan); err != nil {
		l.logger.Error(
			"failed to persist plan",
			"component", "ledger",
			"plan_id", plan.Id,
			"error", err,
		)
	}
}

func (l *Ledger) deletePlan(planId PlanId) {
	if l.store == nil {
		return
	}
	if err := l.store.DeletePlan(planId); err != nil {
		l.logger.Error(
			"failed to delete persisted plan",
			"component", "ledger",
			"plan_id", planId,
			"error", err,
		)
	}
}

func (l *Ledger) saveVault(vault *Vault) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveVault(vault); err != nil {
		l.logger.Error(
			"failed to persist vault",
			"component", "ledger",
			"plan_id", vault.PlanId,
			"error", err,
		)
	}
}

func (l *Ledger) deleteVault(planId PlanId) {
	if l.store == nil {
		return
	}
	if err := l.store.DeleteVault(planId); err != nil {
		l.logger.Error(
			"failed to delete persisted vault",
			"component", "ledger",
			"plan_id", planId,
			"error", err,
		)
	}
}

func (l *Ledger) savePref(holder, assetAddr, delegate asset.Address) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveDelegatePreference(
		holder, assetAddr, delegate,
	); err != nil {
		l.logger.Error(
			"failed to persist delegate preference",
			"component", "ledger",
			"holder", holder,
			"error", err,
		)
	}
}
