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

// Package ledger implements the plan ledger: creation, redemption,
// revocation and transfer of time-locked token plans, the segmentation
// and combination algebra over them, and the per-plan voting vault
// custody layer.
package ledger

import (
	"math/big"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/ratemath"
)

// PlanId identifies a plan. Ids are assigned monotonically and never
// reused.
type PlanId uint64

// Plan is one unlock schedule and its remaining undistributed amount,
// owned by exactly one holder. Plain lockups have no Admin; vesting plans
// carry an Admin empowered to revoke and to gate transfers.
type Plan struct {
	Amount       *big.Int
	Rate         *big.Int
	Id           PlanId
	Holder       asset.Address
	Asset        asset.Address
	Admin        asset.Address
	Period       int64
	Start        int64
	Cliff        int64
	OriginalEnd  int64
	Transferable bool
}

// HasAdmin reports whether this is an admin-governed vesting plan.
func (p *Plan) HasAdmin() bool {
	return p.Admin != asset.ZeroAddress
}

// End returns the plan's current end timestamp.
func (p *Plan) End() (int64, error) {
	return ratemath.PlanEnd(p.Start, p.Amount, p.Rate, p.Period)
}

func (p *Plan) clone() *Plan {
	tmp := *p
	tmp.Amount = new(big.Int).Set(p.Amount)
	tmp.Rate = new(big.Int).Set(p.Rate)
	return &tmp
}

// Vault is the per-plan custody account that holds a plan's locked
// balance so it can delegate voting weight while locked.
type Vault struct {
	PlanId   PlanId
	Account  asset.Address
	Delegate asset.Address
}

// Store is the optional persistence hook the ledger writes through to.
// All methods are called with the ledger lock held, inside the same
// logical step as the record mutation.
type Store interface {
	SavePlan(plan *Plan) error
	DeletePlan(id PlanId) error
	SaveVault(vault *Vault) error
	DeleteVault(id PlanId) error
	SaveDelegatePreference(
		holder, assetAddr, delegate asset.Address,
	) error
}
