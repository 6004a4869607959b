// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hamza-Labs-Core/zajel-sub007/paircode"
)

var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Generate and validate pairing codes",
}

var codeGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new random pairing code",
	RunE:  runCodeGenerate,
}

var codeValidateCmd = &cobra.Command{
	Use:   "validate [code]",
	Short: "Check whether a code is a well-formed pairing code",
	Args:  cobra.ExactArgs(1),
	RunE:  runCodeValidate,
}

func init() {
	rootCmd.AddCommand(codeCmd)
	codeCmd.AddCommand(codeGenerateCmd)
	codeCmd.AddCommand(codeValidateCmd)
}

func runCodeGenerate(cmd *cobra.Command, args []string) error {
	code, err := paircode.Generate()
	if err != nil {
		return fmt.Errorf("generate pairing code: %w", err)
	}
	fmt.Println(string(code))
	return nil
}

func runCodeValidate(cmd *cobra.Command, args []string) error {
	candidate := args[0]
	normalized, err := paircode.Normalize(candidate)
	if err != nil {
		fmt.Printf("invalid: %v\n", err)
		return err
	}
	fmt.Printf("valid: %s\n", string(normalized))
	return nil
}
