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
	"github.com/blinklabs-io/kennel"
	"github.com/blinklabs-io/kennel/asset"
	"github.com/spf13/cobra"
)

func delegateCommand() *cobra.Command {
	var allAsset string
	cmd := &cobra.Command{
		Use:   "delegate <holder> <plan-id> <delegate>",
		Short: "Delegate a plan's locked voting weight",
		Long: "Delegate a plan's locked voting weight, moving its balance " +
			"into a voting vault on first use. With --all, the delegate " +
			"is recorded as the holder's standing preference and applied " +
			"to every plan the holder has in that asset.",
		Args: cobra.RangeArgs(2, 3),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				holder := asset.Address(args[0])
				if allAsset != "" {
					return k.Ledger().DelegateAll(
						holder,
						asset.Address(allAsset),
						asset.Address(args[1]),
					)
				}
				planIds, err := parsePlanIds(args[1:2])
				if err != nil {
					return err
				}
				return k.Ledger().Delegate(
					holder,
					planIds[0],
					asset.Address(args[2]),
				)
			})
		},
	}
	cmd.Flags().StringVar(&allAsset, "all", "", "delegate every plan of this asset (usage: delegate <holder> <delegate> --all <asset>)")
	return cmd
}
