// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the FieldGuard CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fieldguard",
		Short: "FieldGuard device session manager",
		Long: `FieldGuard manages the authenticated session of a guard dispatch device:
sign-in, sign-up, profile loading, and offline read-only mode with
automatic reconnection.`,
		SilenceUsage: true,
	}

	addGlobalFlags(cmd)

	cmd.AddCommand(NewRunCmd(deps))
	cmd.AddCommand(NewSignUpCmd(deps))
	cmd.AddCommand(NewSignInCmd(deps))
	cmd.AddCommand(NewSignOutCmd(deps))
	cmd.AddCommand(NewWhoAmICmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
