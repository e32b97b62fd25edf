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

// Package asset defines the fungible-asset and governance-token
// collaborator interfaces consumed by the plan ledger, along with an
// in-memory implementation used by the node, the CLI and tests.
package asset

import (
	"errors"
	"math/big"
)

// Address identifies a holder, an asset or a custody account.
type Address string

// ZeroAddress is the empty address. Plans without an admin store it.
const ZeroAddress Address = ""

var (
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientApproval = errors.New("insufficient approval")
	ErrNotGovernance        = errors.New("asset does not support delegation")
)

// Token is the fungible-asset interface the ledger moves custody through.
// Amounts moved must equal amounts recorded: implementations must not
// apply fees or rebasing.
type Token interface {
	Transfer(asset Address, from, to Address, amount *big.Int) error
	TransferFrom(
		asset Address,
		spender, from, to Address,
		amount *big.Int,
	) error
	BalanceOf(asset Address, holder Address) (*big.Int, error)
}

// GovernanceToken extends Token with delegation. Supported assets let a
// custody account assign its voting weight to another address.
type GovernanceToken interface {
	Token
	SupportsDelegation(asset Address) bool
	Delegate(asset Address, holder, to Address) error
	Delegates(asset Address, holder Address) (Address, error)
}
