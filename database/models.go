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

package database

import (
	"math/big"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/ledger"
)

// MigrateModels is the list of models to auto-migrate on open
var MigrateModels = []any{
	&Plan{},
	&Vault{},
	&DelegatePreference{},
	&Balance{},
}

type Plan struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement:false"`
	Holder       string `gorm:"index;size:128"`
	Asset        string `gorm:"index;size:128"`
	Admin        string `gorm:"index;size:128"`
	Amount       BigInt `gorm:"type:text"`
	Rate         BigInt `gorm:"type:text"`
	Period       int64
	Start        int64
	Cliff        int64
	OriginalEnd  int64
	Transferable bool
}

func (Plan) TableName() string {
	return "plan"
}

func planModel(p *ledger.Plan) *Plan {
	return &Plan{
		ID:           uint64(p.Id),
		Holder:       string(p.Holder),
		Asset:        string(p.Asset),
		Admin:        string(p.Admin),
		Amount:       BigInt{new(big.Int).Set(p.Amount)},
		Rate:         BigInt{new(big.Int).Set(p.Rate)},
		Period:       p.Period,
		Start:        p.Start,
		Cliff:        p.Cliff,
		OriginalEnd:  p.OriginalEnd,
		Transferable: p.Transferable,
	}
}

func (p *Plan) toLedger() ledger.Plan {
	return ledger.Plan{
		Id:           ledger.PlanId(p.ID),
		Holder:       asset.Address(p.Holder),
		Asset:        asset.Address(p.Asset),
		Admin:        asset.Address(p.Admin),
		Amount:       new(big.Int).Set(p.Amount.Int),
		Rate:         new(big.Int).Set(p.Rate.Int),
		Period:       p.Period,
		Start:        p.Start,
		Cliff:        p.Cliff,
		OriginalEnd:  p.OriginalEnd,
		Transferable: p.Transferable,
	}
}

type Vault struct {
	PlanID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Account  string `gorm:"index;size:128"`
	Delegate string `gorm:"index;size:128"`
}

func (Vault) TableName() string {
	return "vault"
}

func (v *Vault) toLedger() ledger.Vault {
	return ledger.Vault{
		PlanId:   ledger.PlanId(v.PlanID),
		Account:  asset.Address(v.Account),
		Delegate: asset.Address(v.Delegate),
	}
}

type DelegatePreference struct {
	ID       uint   `gorm:"primaryKey"`
	Holder   string `gorm:"uniqueIndex:idx_pref_holder_asset;size:128"`
	Asset    string `gorm:"uniqueIndex:idx_pref_holder_asset;size:128"`
	Delegate string `gorm:"size:128"`
}

func (DelegatePreference) TableName() string {
	return "delegate_preference"
}

type Balance struct {
	ID     uint   `gorm:"primaryKey"`
	Asset  string `gorm:"uniqueIndex:idx_balance_asset_holder;size:128"`
	Holder string `gorm:"uniqueIndex:idx_balance_asset_holder;size:128"`
	Amount BigInt `gorm:"type:text"`
}

func (Balance) TableName() string {
	return "balance"
}
