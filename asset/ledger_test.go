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

package asset_test

import (
	"math/big"
	"testing"

	"github.com/blinklabs-io/kennel/asset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAsset  = asset.Address("token")
	testHolder = asset.Address("alice")
	testOther  = asset.Address("bob")
)

func TestMintAndBalance(t *testing.T) {
	l := asset.NewLedger(asset.LedgerConfig{})
	l.Mint(testAsset, testHolder, big.NewInt(1000))
	bal, err := l.BalanceOf(testAsset, testHolder)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Int64())
	// Returned balance is a copy
	bal.SetInt64(0)
	bal, err = l.BalanceOf(testAsset, testHolder)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Int64())
}

func TestTransferExactAmounts(t *testing.T) {
	l := asset.NewLedger(asset.LedgerConfig{})
	l.Mint(testAsset, testHolder, big.NewInt(1000))
	require.NoError(
		t,
		l.Transfer(testAsset, testHolder, testOther, big.NewInt(400)),
	)
	fromBal, err := l.BalanceOf(testAsset, testHolder)
	require.NoError(t, err)
	toBal, err := l.BalanceOf(testAsset, testOther)
	require.NoError(t, err)
	assert.Equal(t, int64(600), fromBal.Int64())
	assert.Equal(t, int64(400), toBal.Int64())
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := asset.NewLedger(asset.LedgerConfig{})
	l.Mint(testAsset, testHolder, big.NewInt(100))
	err := l.Transfer(testAsset, testHolder, testOther, big.NewInt(101))
	assert.ErrorIs(t, err, asset.ErrInsufficientBalance)
}

func TestTransferFromRequiresApproval(t *testing.T) {
	l := asset.NewLedger(asset.LedgerConfig{})
	l.Mint(testAsset, testHolder, big.NewInt(1000))
	err := l.TransferFrom(
		testAsset, testOther, testHolder, testOther, big.NewInt(100),
	)
	assert.ErrorIs(t, err, asset.ErrInsufficientApproval)
	l.Approve(testAsset, testHolder, testOther, big.NewInt(150))
	require.NoError(t, l.TransferFrom(
		testAsset, testOther, testHolder, testOther, big.NewInt(100),
	))
	// Remaining approval is 50
	err = l.TransferFrom(
		testAsset, testOther, testHolder, testOther, big.NewInt(100),
	)
	assert.ErrorIs(t, err, asset.ErrInsufficientApproval)
}

func TestDelegationRequiresGovernance(t *testing.T) {
	l := asset.NewLedger(asset.LedgerConfig{})
	l.Register(testAsset, false)
	assert.False(t, l.SupportsDelegation(testAsset))
	err := l.Delegate(testAsset, testHolder, testOther)
	assert.ErrorIs(t, err, asset.ErrNotGovernance)

	gov := asset.Address("gov-token")
	l.Register(gov, true)
	assert.True(t, l.SupportsDelegation(gov))
	require.NoError(t, l.Delegate(gov, testHolder, testOther))
	delegate, err := l.Delegates(gov, testHolder)
	require.NoError(t, err)
	assert.Equal(t, testOther, delegate)
}

func TestUnknownAsset(t *testing.T) {
	l := asset.NewLedger(asset.LedgerConfig{})
	_, err := l.BalanceOf(testAsset, testHolder)
	assert.ErrorIs(t, err, asset.ErrUnknownAsset)
	err = l.Transfer(testAsset, testHolder, testOther, big.NewInt(1))
	assert.ErrorIs(t, err, asset.ErrUnknownAsset)
}
