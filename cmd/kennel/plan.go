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

package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sort"
	"strconv"

	"github.com/blinklabs-io/kennel"
	"github.com/blinklabs-io/kennel/asset"
	"github.com/blinklabs-io/kennel/internal/config"
	"github.com/blinklabs-io/kennel/ledger"
	"github.com/spf13/cobra"
)

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}

func parsePlanIds(args []string) ([]ledger.PlanId, error) {
	ret := make([]ledger.PlanId, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid plan id: %s", arg)
		}
		ret = append(ret, ledger.PlanId(id))
	}
	return ret, nil
}

// runLedgerOp opens the node, runs the operation and shuts down,
// exiting on any error.
func runLedgerOp(cmd *cobra.Command, fn func(*kennel.Node) error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		slog.Error("no config found in context")
		os.Exit(1)
	}
	logger := commonRun()
	k, err := openNode(cfg, logger)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	opErr := fn(k)
	if err := k.Stop(); err != nil {
		slog.Error(err.Error())
	}
	if opErr != nil {
		slog.Error(opErr.Error())
		os.Exit(1)
	}
}

func createCommand() *cobra.Command {
	var flags struct {
		amount       string
		rate         string
		funder       string
		holder       string
		asset        string
		admin        string
		period       int64
		start        int64
		cliff        int64
		transferable bool
		csvPath      string
	}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an unlock plan, debiting the funder",
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				base := ledger.CreateParams{
					Funder:       asset.Address(flags.funder),
					Holder:       asset.Address(flags.holder),
					Asset:        asset.Address(flags.asset),
					Admin:        asset.Address(flags.admin),
					Period:       flags.period,
					Start:        flags.start,
					Cliff:        flags.cliff,
					Transferable: flags.transferable,
				}
				var batch []ledger.CreateParams
				if flags.csvPath != "" {
					var err error
					batch, err = loadCreateBatch(flags.csvPath, base)
					if err != nil {
						return err
					}
				} else {
					amount, err := parseAmount(flags.amount)
					if err != nil {
						return err
					}
					rate, err := parseAmount(flags.rate)
					if err != nil {
						return err
					}
					params := base
					params.Amount = amount
					params.Rate = rate
					batch = []ledger.CreateParams{params}
				}
				for _, params := range batch {
					// The funder approves the custody pull for each plan
					k.Tokens().Approve(
						params.Asset,
						params.Funder,
						ledger.DefaultCustodyAccount,
						params.Amount,
					)
					id, err := k.Ledger().Create(params)
					if err != nil {
						return err
					}
					fmt.Printf("created plan %d\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flags.amount, "amount", "", "total plan amount")
	cmd.Flags().StringVar(&flags.rate, "rate", "", "amount unlocked per period")
	cmd.Flags().StringVar(&flags.funder, "funder", "", "account funding the plan")
	cmd.Flags().StringVar(&flags.holder, "holder", "", "plan recipient")
	cmd.Flags().StringVar(&flags.asset, "asset", "", "asset address")
	cmd.Flags().StringVar(&flags.admin, "admin", "", "plan admin (empty for a plain lockup)")
	cmd.Flags().Int64Var(&flags.period, "period", 86400, "unlock period in seconds")
	cmd.Flags().Int64Var(&flags.start, "start", 0, "unlock start (unix seconds)")
	cmd.Flags().Int64Var(&flags.cliff, "cliff", 0, "cliff (unix seconds)")
	cmd.Flags().BoolVar(&flags.transferable, "transferable", false, "allow the admin to transfer the plan")
	cmd.Flags().StringVar(&flags.csvPath, "csv", "", "CSV batch file (holder,amount,rate[,start[,cliff]])")
	return cmd
}

// loadCreateBatch reads per-holder plan rows from a CSV file, using the
// base params for everything the row doesn't carry.
func loadCreateBatch(
	path string,
	base ledger.CreateParams,
) ([]ledger.CreateParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	ret := make([]ledger.CreateParams, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf(
				"row %d: expected at least holder,amount,rate",
				i+1,
			)
		}
		params := base
		params.Holder = asset.Address(row[0])
		if params.Amount, err = parseAmount(row[1]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if params.Rate, err = parseAmount(row[2]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if len(row) > 3 {
			if params.Start, err = strconv.ParseInt(row[3], 10, 64); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		if len(row) > 4 {
			if params.Cliff, err = strconv.ParseInt(row[4], 10, 64); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		ret = append(ret, params)
	}
	return ret, nil
}

func redeemCommand() *cobra.Command {
	var redeemTime int64
	cmd := &cobra.Command{
		Use:   "redeem <holder> <plan-id> [plan-id ...]",
		Short: "Redeem the unlocked balance of one or more plans",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				holder := asset.Address(args[0])
				planIds, err := parsePlanIds(args[1:])
				if err != nil {
					return err
				}
				var redeemed map[ledger.PlanId]*big.Int
				if redeemTime > 0 {
					redeemed, err = k.Ledger().RedeemPartial(
						holder, planIds, redeemTime,
					)
				} else {
					redeemed, err = k.Ledger().RedeemAll(holder, planIds)
				}
				if err != nil {
					return err
				}
				for id, amount := range redeemed {
					fmt.Printf("plan %d: redeemed %s\n", id, amount)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&redeemTime, "at", 0, "redeem as of this past time (unix seconds)")
	return cmd
}

func revokeCommand() *cobra.Command {
	var revokeTime int64
	cmd := &cobra.Command{
		Use:   "revoke <admin> <plan-id> [plan-id ...]",
		Short: "Revoke one or more vesting plans",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				admin := asset.Address(args[0])
				planIds, err := parsePlanIds(args[1:])
				if err != nil {
					return err
				}
				if revokeTime > 0 {
					return k.Ledger().FutureRevoke(admin, planIds, revokeTime)
				}
				return k.Ledger().Revoke(admin, planIds)
			})
		},
	}
	cmd.Flags().Int64Var(&revokeTime, "at", 0, "revoke as of this future time (unix seconds)")
	return cmd
}

func segmentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment <holder> <plan-id> <amount> [amount ...]",
		Short: "Split amounts out of a plan into new sibling plans",
		Args:  cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				holder := asset.Address(args[0])
				planIds, err := parsePlanIds(args[1:2])
				if err != nil {
					return err
				}
				amounts := make([]*big.Int, 0, len(args)-2)
				for _, arg := range args[2:] {
					amount, err := parseAmount(arg)
					if err != nil {
						return err
					}
					amounts = append(amounts, amount)
				}
				newIds, err := k.Ledger().Segment(holder, planIds[0], amounts)
				if err != nil {
					return err
				}
				for _, id := range newIds {
					fmt.Printf("created plan %d\n", id)
				}
				return nil
			})
		},
	}
	return cmd
}

func combineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combine <holder> <plan-id> <plan-id>",
		Short: "Merge two matching plans into the first",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				holder := asset.Address(args[0])
				planIds, err := parsePlanIds(args[1:])
				if err != nil {
					return err
				}
				survivor, err := k.Ledger().Combine(
					holder, planIds[0], planIds[1],
				)
				if err != nil {
					return err
				}
				fmt.Printf("combined into plan %d\n", survivor)
				return nil
			})
		},
	}
	return cmd
}

func transferCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <caller> <plan-id> <to>",
		Short: "Transfer ownership of a plan",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				planIds, err := parsePlanIds(args[1:2])
				if err != nil {
					return err
				}
				return k.Ledger().Transfer(
					asset.Address(args[0]),
					planIds[0],
					asset.Address(args[2]),
				)
			})
		},
	}
	return cmd
}

func listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all plans",
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				plans := k.Ledger().Plans()
				sort.Slice(plans, func(i, j int) bool {
					return plans[i].Id < plans[j].Id
				})
				for _, plan := range plans {
					end, err := plan.End()
					if err != nil {
						return err
					}
					fmt.Printf(
						"plan %d: holder=%s asset=%s amount=%s rate=%s period=%d start=%d cliff=%d end=%d",
						plan.Id,
						plan.Holder,
						plan.Asset,
						plan.Amount,
						plan.Rate,
						plan.Period,
						plan.Start,
						plan.Cliff,
						end,
					)
					if plan.HasAdmin() {
						fmt.Printf(" admin=%s", plan.Admin)
					}
					if vault, ok := k.Ledger().VaultForPlan(plan.Id); ok {
						fmt.Printf(" delegate=%s", vault.Delegate)
					}
					fmt.Println()
				}
				return nil
			})
		},
	}
	return cmd
}
