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
	"fmt"

	"github.com/blinklabs-io/kennel"
	"github.com/blinklabs-io/kennel/asset"
	"github.com/spf13/cobra"
)

func mintCommand() *cobra.Command {
	var governance bool
	cmd := &cobra.Command{
		Use:   "mint <asset> <recipient> <amount>",
		Short: "Mint tokens to an account",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			runLedgerOp(cmd, func(k *kennel.Node) error {
				assetAddr := asset.Address(args[0])
				recipient := asset.Address(args[1])
				amount, err := parseAmount(args[2])
				if err != nil {
					return err
				}
				k.Tokens().Register(assetAddr, governance)
				k.Tokens().Mint(assetAddr, recipient, amount)
				balance, err := k.Tokens().BalanceOf(assetAddr, recipient)
				if err != nil {
					return err
				}
				fmt.Printf("%s balance of %s: %s\n", assetAddr, recipient, balance)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&governance, "governance", true, "asset supports vote delegation")
	return cmd
}
