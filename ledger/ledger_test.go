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

package ledger_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = int64(86400)

const (
	govToken   = asset.Address("token:gov")
	plainToken = asset.Address("token:plain")
	funder     = asset.Address("addr:funder")
	alice      = asset.Address("addr:alice")
	bob        = asset.Address("addr:bob")
	vestAdmin  = asset.Address("addr:vestadmin")
	delegatee  = asset.Address("addr:delegatee")
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(
		big.NewInt(n),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
	)
}

// testEnv wires an in-memory token ledger to a plan ledger with a
// controllable clock.
type testEnv struct {
	t      *testing.T
	tokens *asset.Ledger
	plans  *ledger.Ledger
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t}
	env.tokens = asset.NewLedger(asset.LedgerConfig{})
	env.tokens.Register(govToken, true)
	env.tokens.Register(plainToken, false)
	env.plans = ledger.NewLedger(ledger.LedgerConfig{
		Token: env.tokens,
		Clock: func() time.Time { return time.Unix(env.now, 0) },
	})
	return env
}

func (env *testEnv) createPlan(params ledger.CreateParams) ledger.PlanId {
	env.t.Helper()
	if params.Funder == asset.ZeroAddress {
		params.Funder = funder
	}
	env.tokens.Mint(params.Asset, params.Funder, params.Amount)
	env.tokens.Approve(
		params.Asset,
		params.Funder,
		ledger.DefaultCustodyAccount,
		params.Amount,
	)
	id, err := env.plans.Create(params)
	require.NoError(env.t, err)
	return id
}

func (env *testEnv) balance(token, holder asset.Address) *big.Int {
	env.t.Helper()
	bal, err := env.tokens.BalanceOf(token, holder)
	require.NoError(env.t, err)
	return bal
}

// standardLockup is 1000 tokens unlocking at 10/day from time zero with
// no cliff, held by alice.
func (env *testEnv) standardLockup() ledger.PlanId {
	return env.createPlan(ledger.CreateParams{
		Amount: e18(1000),
		Rate:   e18(10),
		Holder: alice,
		Asset:  govToken,
		Period: day,
	})
}

// standardVesting is the same schedule with an admin attached.
func (env *testEnv) standardVesting(transferable bool) ledger.PlanId {
	return env.createPlan(ledger.CreateParams{
		Amount:       e18(1000),
		Rate:         e18(10),
		Holder:       alice,
		Asset:        govToken,
		Admin:        vestAdmin,
		Period:       day,
		Transferable: transferable,
	})
}

func TestCreatePullsCustody(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	plan, ok := env.plans.GetPlan(id)
	require.True(t, ok)
	assert.Equal(t, alice, plan.Holder)
	assert.Zero(t, plan.Amount.Cmp(e18(1000)))
	assert.Equal(t, 100*day, plan.OriginalEnd)
	assert.False(t, plan.HasAdmin())
	assert.Zero(
		t,
		env.balance(govToken, ledger.DefaultCustodyAccount).Cmp(e18(1000)),
	)
	assert.Zero(t, env.balance(govToken, funder).Sign())
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	base := ledger.CreateParams{
		Amount: e18(1000),
		Rate:   e18(10),
		Funder: funder,
		Holder: alice,
		Asset:  govToken,
		Period: day,
	}
	env.tokens.Mint(govToken, funder, e18(1000))
	env.tokens.Approve(govToken, funder, ledger.DefaultCustodyAccount, e18(1000))

	params := base
	params.Amount = new(big.Int)
	_, err := env.plans.Create(params)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	params = base
	params.Rate = new(big.Int)
	_, err = env.plans.Create(params)
	assert.ErrorIs(t, err, ledger.ErrInvalidRate)

	params = base
	params.Rate = e18(2000)
	_, err = env.plans.Create(params)
	assert.ErrorIs(t, err, ledger.ErrInvalidRate)

	params = base
	params.Period = 0
	_, err = env.plans.Create(params)
	assert.ErrorIs(t, err, ledger.ErrInvalidSchedule)

	params = base
	params.Start = 10 * day
	params.Cliff = 5 * day
	_, err = env.plans.Create(params)
	assert.ErrorIs(t, err, ledger.ErrInvalidSchedule)

	// Cliff past the end of the schedule
	params = base
	params.Cliff = 200 * day
	_, err = env.plans.Create(params)
	assert.ErrorIs(t, err, ledger.ErrInvalidSchedule)

	// Nothing was recorded or pulled
	assert.Empty(t, env.plans.Plans())
	assert.Zero(t, env.balance(govToken, funder).Cmp(e18(1000)))
}

func TestCreateWithoutApproval(t *testing.T) {
	env := newTestEnv(t)
	env.tokens.Mint(govToken, funder, e18(1000))
	_, err := env.plans.Create(ledger.CreateParams{
		Amount: e18(1000),
		Rate:   e18(10),
		Funder: funder,
		Holder: alice,
		Asset:  govToken,
		Period: day,
	})
	assert.ErrorIs(t, err, asset.ErrInsufficientApproval)
	assert.Empty(t, env.plans.Plans())
}

func TestRedeemAllHalfway(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	env.now = 50 * day
	redeemed, err := env.plans.RedeemAll(alice, []ledger.PlanId{id})
	require.NoError(t, err)
	assert.Zero(t, redeemed[id].Cmp(e18(500)))
	assert.Zero(t, env.balance(govToken, alice).Cmp(e18(500)))
	plan, ok := env.plans.GetPlan(id)
	require.True(t, ok)
	assert.Zero(t, plan.Amount.Cmp(e18(500)))
	assert.Equal(t, 50*day, plan.Start)
	// The end never moves
	end, err := plan.End()
	require.NoError(t, err)
	assert.Equal(t, 100*day, end)
}

func TestRedeemAllBurnsDrainedPlan(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	env.now = 150 * day
	redeemed, err := env.plans.RedeemAll(alice, []ledger.PlanId{id})
	require.NoError(t, err)
	assert.Zero(t, redeemed[id].Cmp(e18(1000)))
	_, ok := env.plans.GetPlan(id)
	assert.False(t, ok)
	assert.Zero(t, env.balance(govToken, alice).Cmp(e18(1000)))
}

func TestRedeemPartialRequiresPastTime(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	env.now = 50 * day
	_, err := env.plans.RedeemPartial(alice, []ledger.PlanId{id}, 50*day)
	assert.ErrorIs(t, err, ledger.ErrFutureRedemption)
	_, err = env.plans.RedeemPartial(alice, []ledger.PlanId{id}, 60*day)
	assert.ErrorIs(t, err, ledger.ErrFutureRedemption)
}

func TestRedeemSkipsNonOwnedAndUnvested(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	cliffed := env.createPlan(ledger.CreateParams{
		Amount: e18(1000),
		Rate:   e18(10),
		Holder: alice,
		Asset:  govToken,
		Period: day,
		Cliff:  80 * day,
	})
	env.now = 50 * day
	// Bob owns neither plan; nothing moves, no error
	redeemed, err := env.plans.RedeemAll(bob, []ledger.PlanId{id, cliffed, 999})
	require.NoError(t, err)
	assert.Empty(t, redeemed)
	// Alice redeems past the first plan but the cliffed one is skipped
	redeemed, err = env.plans.RedeemAll(alice, []ledger.PlanId{id, cliffed})
	require.NoError(t, err)
	assert.Len(t, redeemed, 1)
	assert.Zero(t, redeemed[id].Cmp(e18(500)))
}

func TestPartialRedemptionsSumToFull(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	env.now = 101 * day
	first, err := env.plans.RedeemPartial(alice, []ledger.PlanId{id}, 30*day)
	require.NoError(t, err)
	assert.Zero(t, first[id].Cmp(e18(300)))
	second, err := env.plans.RedeemPartial(alice, []ledger.PlanId{id}, 100*day)
	require.NoError(t, err)
	assert.Zero(t, second[id].Cmp(e18(700)))
	_, ok := env.plans.GetPlan(id)
	assert.False(t, ok)
	assert.Zero(t, env.balance(govToken, alice).Cmp(e18(1000)))
}

func TestRevokeSplitsBalance(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardVesting(false)
	env.now = 50 * day
	err := env.plans.Revoke(vestAdmin, []ledger.PlanId{id})
	require.NoError(t, err)
	assert.Zero(t, env.balance(govToken, alice).Cmp(e18(500)))
	assert.Zero(t, env.balance(govToken, vestAdmin).Cmp(e18(500)))
	_, ok := env.plans.GetPlan(id)
	assert.False(t, ok)
}

func TestRevokeRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	lockup := env.standardLockup()
	vesting := env.standardVesting(false)
	env.now = 50 * day
	err := env.plans.Revoke(alice, []ledger.PlanId{vesting})
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)
	// Lockups have no admin and can never be revoked
	err = env.plans.Revoke(vestAdmin, []ledger.PlanId{lockup})
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)
}

func TestRevokeFullyVestedFails(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardVesting(false)
	env.now = 200 * day
	err := env.plans.Revoke(vestAdmin, []ledger.PlanId{id})
	assert.ErrorIs(t, err, ledger.ErrNoRemainder)
	_, ok := env.plans.GetPlan(id)
	assert.True(t, ok)
}

func TestRevokeBatchIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	good := env.standardVesting(false)
	lockup := env.standardLockup()
	env.now = 50 * day
	err := env.plans.Revoke(vestAdmin, []ledger.PlanId{good, lockup})
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)
	// The valid plan was not touched
	plan, ok := env.plans.GetPlan(good)
	require.True(t, ok)
	assert.Zero(t, plan.Amount.Cmp(e18(1000)))
	assert.Zero(t, env.balance(govToken, vestAdmin).Sign())
}

func TestRevokeRejectsDuplicateIds(t *testing.T) {
	env := newTestEnv(t)
	a := env.standardVesting(false)
	b := env.createPlan(ledger.CreateParams{
		Amount: e18(1000),
		Rate:   e18(10),
		Holder: bob,
		Asset:  govToken,
		Admin:  vestAdmin,
		Period: day,
	})
	env.now = 50 * day
	err := env.plans.Revoke(vestAdmin, []ledger.PlanId{a, a})
	assert.ErrorIs(t, err, ledger.ErrDuplicatePlan)
	// Nothing was paid out and custody still covers both plans
	assert.Zero(t, env.balance(govToken, alice).Sign())
	assert.Zero(t, env.balance(govToken, vestAdmin).Sign())
	custody := env.balance(govToken, ledger.DefaultCustodyAccount)
	assert.Zero(t, custody.Cmp(e18(2000)))
	for _, id := range []ledger.PlanId{a, b} {
		plan, ok := env.plans.GetPlan(id)
		require.True(t, ok)
		assert.Zero(t, plan.Amount.Cmp(e18(1000)))
	}
}

func TestFutureRevoke(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardVesting(false)
	env.now = 10 * day
	err := env.plans.FutureRevoke(vestAdmin, []ledger.PlanId{id}, 50*day)
	require.NoError(t, err)
	assert.Zero(t, env.balance(govToken, alice).Cmp(e18(500)))
	assert.Zero(t, env.balance(govToken, vestAdmin).Cmp(e18(500)))
}

func TestFutureRevokeBounds(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardVesting(false)
	env.now = 10 * day
	err := env.plans.FutureRevoke(vestAdmin, []ledger.PlanId{id}, 10*day)
	assert.ErrorIs(t, err, ledger.ErrPastRevoke)
	// At or past the end there is nothing left to claw back
	err = env.plans.FutureRevoke(vestAdmin, []ledger.PlanId{id}, 150*day)
	assert.ErrorIs(t, err, ledger.ErrNoRemainder)
}

func TestTransferLockup(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	err := env.plans.Transfer(bob, id, bob)
	assert.ErrorIs(t, err, ledger.ErrNotOwner)
	err = env.plans.Transfer(alice, id, bob)
	require.NoError(t, err)
	plan, ok := env.plans.GetPlan(id)
	require.True(t, ok)
	assert.Equal(t, bob, plan.Holder)
}

func TestTransferVesting(t *testing.T) {
	env := newTestEnv(t)
	locked := env.standardVesting(false)
	open := env.standardVesting(true)
	// Holders cannot move admin-governed plans
	err := env.plans.Transfer(alice, open, bob)
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)
	err = env.plans.Transfer(vestAdmin, locked, bob)
	assert.ErrorIs(t, err, ledger.ErrNotTransferable)
	err = env.plans.Transfer(vestAdmin, open, vestAdmin)
	assert.ErrorIs(t, err, ledger.ErrSelfTransferToAdmin)
	err = env.plans.Transfer(vestAdmin, open, bob)
	require.NoError(t, err)
	plan, ok := env.plans.GetPlan(open)
	require.True(t, ok)
	assert.Equal(t, bob, plan.Holder)
}

func TestChangeAdmin(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardVesting(false)
	err := env.plans.ChangeAdmin(alice, id, bob)
	assert.ErrorIs(t, err, ledger.ErrNotAdmin)
	err = env.plans.ChangeAdmin(vestAdmin, id, bob)
	require.NoError(t, err)
	plan, ok := env.plans.GetPlan(id)
	require.True(t, ok)
	assert.Equal(t, bob, plan.Admin)
	env.now = 50 * day
	require.NoError(t, env.plans.Revoke(bob, []ledger.PlanId{id}))
}

func TestLoadRestoresState(t *testing.T) {
	env := newTestEnv(t)
	id := env.standardLockup()
	require.NoError(t, env.plans.Delegate(alice, id, delegatee))
	plans := env.plans.Plans()
	vault, ok := env.plans.VaultForPlan(id)
	require.True(t, ok)

	reloaded := ledger.NewLedger(ledger.LedgerConfig{
		Token: env.tokens,
		Clock: func() time.Time { return time.Unix(env.now, 0) },
	})
	reloaded.Load(plans, []ledger.Vault{vault}, nil)
	plan, ok := reloaded.GetPlan(id)
	require.True(t, ok)
	assert.Zero(t, plan.Amount.Cmp(e18(1000)))
	got, ok := reloaded.VaultForPlan(id)
	require.True(t, ok)
	assert.Equal(t, vault.Account, got.Account)
	// New ids keep counting from the reloaded high-water marks
	next := env.createPlanOn(reloaded)
	assert.Greater(t, next, id)
}

// createPlanOn funds and creates a standard lockup against a specific
// plan ledger sharing this env's token ledger.
func (env *testEnv) createPlanOn(l *ledger.Ledger) ledger.PlanId {
	env.t.Helper()
	env.tokens.Mint(govToken, funder, e18(1000))
	env.tokens.Approve(govToken, funder, ledger.DefaultCustodyAccount, e18(1000))
	id, err := l.Create(ledger.CreateParams{
		Amount: e18(1000),
		Rate:   e18(10),
		Funder: funder,
		Holder: alice,
		Asset:  govToken,
		Period: day,
	})
	require.NoError(env.t, err)
	return id
}
