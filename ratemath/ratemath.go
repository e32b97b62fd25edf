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

// Package ratemath provides the pure schedule arithmetic shared by all
// plan variants: end-time calculation, vested balances at a point in
// time, and the rate algebra used when segmenting and combining plans.
// All functions are stateless and never mutate their arguments.
package ratemath

import (
	"errors"
	"math/big"
)

var (
	ErrDivideByZero  = errors.New("rate is zero")
	ErrInvalidPeriod = errors.New("period is not positive")
)

// Balance is the result of a BalanceAtTime evaluation. Balance and
// Remainder always sum to the amount passed in.
type Balance struct {
	Balance      *big.Int
	Remainder    *big.Int
	LatestUnlock int64
}

// PlanEnd returns the timestamp at which a plan unlocking amount at rate
// per period, starting at start, fully unlocks. The number of periods is
// rounded up so a final partial period is never truncated.
func PlanEnd(start int64, amount, rate *big.Int, period int64) (int64, error) {
	if rate == nil || rate.Sign() == 0 {
		return 0, ErrDivideByZero
	}
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	periods, rem := new(big.Int).QuoRem(amount, rate, new(big.Int))
	if rem.Sign() != 0 {
		periods.Add(periods, big.NewInt(1))
	}
	end := new(big.Int).Mul(periods, big.NewInt(period))
	end.Add(end, big.NewInt(start))
	if !end.IsInt64() {
		return 0, errors.New("plan end overflows timestamp")
	}
	return end.Int64(), nil
}

// BalanceAtTime computes the vested balance of a plan. The now parameter
// gates only the pre-start/pre-cliff branch; redeemTime drives all period
// flooring. The two are deliberately separate so a caller can preview the
// balance of a future redemption once the cliff has passed.
func BalanceAtTime(
	start int64,
	cliff int64,
	amount *big.Int,
	rate *big.Int,
	period int64,
	now int64,
	redeemTime int64,
) Balance {
	if start > now || cliff > now {
		return Balance{
			Balance:      new(big.Int),
			Remainder:    new(big.Int).Set(amount),
			LatestUnlock: start,
		}
	}
	periodsElapsed := (redeemTime - start) / period
	if periodsElapsed < 0 {
		periodsElapsed = 0
	}
	vested := BigMin(
		new(big.Int).Mul(big.NewInt(periodsElapsed), rate),
		amount,
	)
	return Balance{
		Balance:      vested,
		Remainder:    new(big.Int).Sub(amount, vested),
		LatestUnlock: start + periodsElapsed*period,
	}
}

// ProratePlanRate shrinks oldRate in proportion to the shrink from
// oldAmount to newAmount, rounding down. The floor bias means the reduced
// plan never vests faster than its proportional share, which can only
// lengthen the remaining duration.
func ProratePlanRate(oldAmount, newAmount, oldRate *big.Int) *big.Int {
	rate := new(big.Int).Mul(oldRate, newAmount)
	return rate.Quo(rate, oldAmount)
}

// CalcPlanRate derives the rate for a newly carved-out segment of amount,
// given the end time of the plan being split and the prorated rate
// (planRate) assigned to the remainder side. When amount divides the
// original rate exactly the two sides' rates sum to the original; in all
// other cases the rate is recomputed against one period short of the full
// span so the segment cannot finish after a final-period truncation would
// have let it finish early.
func CalcPlanRate(
	amount *big.Int,
	period int64,
	end int64,
	start int64,
	originalRate *big.Int,
	planRate *big.Int,
) *big.Int {
	if new(big.Int).Mod(amount, originalRate).Sign() == 0 ||
		end-start-period <= 0 {
		return new(big.Int).Sub(originalRate, planRate)
	}
	rate := new(big.Int).Mul(amount, big.NewInt(period))
	return rate.Quo(rate, big.NewInt(end-start-period))
}

// CalcCombinedRate computes the rate for a plan merging amounts A and B
// that must fully unlock by end, the later of the two inputs' end times.
// When the combined amount divides evenly by the summed rates the sum is
// exact; otherwise naive summation can land the final partial period past
// end, so the rate is recomputed against end-start-period to absorb the
// ceiling-rounding asymmetry.
func CalcCombinedRate(
	amountA, amountB *big.Int,
	rateA, rateB *big.Int,
	start int64,
	end int64,
	period int64,
) *big.Int {
	amount := new(big.Int).Add(amountA, amountB)
	combined := new(big.Int).Add(rateA, rateB)
	if new(big.Int).Mod(amount, combined).Sign() == 0 ||
		end-start-period <= 0 {
		return combined
	}
	rate := new(big.Int).Mul(amount, big.NewInt(period))
	return rate.Quo(rate, big.NewInt(end-start-period))
}

// BigMin returns the smaller of a and b without mutating either.
func BigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
