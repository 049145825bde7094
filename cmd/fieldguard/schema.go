// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/fieldguard/fieldguard/internal/cache"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the cached profile snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := cache.GenerateProfileSchema()
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return oops.Code("OUTPUT_FAILED").Wrap(err)
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return oops.Code("OUTPUT_FAILED").With("path", output).Wrap(err)
			}
			cmd.Printf("Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
