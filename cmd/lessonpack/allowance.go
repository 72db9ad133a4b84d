// Copyright 2024 Lesson Pack Project
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
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/lessonpack/internal/config"
)

func newAllowanceCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Inspect and top up generation allowances",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <user> <amount>",
		Short: "Add units to a user's allowance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ledger, err := openLedger(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			balance, err := ledger.Grant(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], balance)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <user>",
		Short: "Print a user's remaining allowance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ledger, err := openLedger(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			balance, err := ledger.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], balance)
			return err
		},
	})

	return cmd
}
