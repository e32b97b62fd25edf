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

import "errors"

// Stable failure reasons. Authorization and validity errors abort the
// whole call before any state mutation; the only silent per-item skip is
// redemption of a plan that has not started vesting yet.
var (
	// Authorization
	ErrNotOwner = errors.New("caller is not the plan owner")
	ErrNotAdmin = errors.New("caller is not the plan admin")

	// Schedule validity
	ErrInvalidRate     = errors.New("invalid rate")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrZeroRate        = errors.New("resulting rate is zero")
	ErrEndShortened    = errors.New("operation would shorten plan end")

	// Temporal
	ErrFutureRedemption = errors.New("redemption time is not in the past")
	ErrPastRevoke       = errors.New("revocation time is not in the future")
	ErrNoRemainder      = errors.New("no unvested remainder")

	// Lookup and transfer
	ErrPlanNotFound        = errors.New("plan not found")
	ErrNotTransferable     = errors.New("plan is not transferable")
	ErrSelfTransferToAdmin = errors.New("cannot transfer plan to its admin")

	// Combination field mismatches
	ErrTokenMismatch  = errors.New("plans hold different assets")
	ErrStartMismatch  = errors.New("plans have different start times")
	ErrCliffMismatch  = errors.New("plans have different cliffs")
	ErrPeriodMismatch = errors.New("plans have different periods")
	ErrEndMismatch    = errors.New("plans disagree on end time")

	// Voting vaults
	ErrVaultExists         = errors.New("plan already has a voting vault")
	ErrArrayLengthMismatch = errors.New("array lengths do not match")

	// Batches
	ErrDuplicatePlan = errors.New("duplicate plan id")
)
