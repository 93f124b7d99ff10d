package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newResolveCmd creates the 'resolve' subcommand. It prints the identity a
// URL would resolve to without registering anything.
func newResolveCmd() *cobra.Command {
	var declaredType string

	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolves a job-board URL into its source identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			id := appInstance.Sources.Resolve(args[0], declaredType)
			out, err := json.MarshalIndent(id, "", "  ")
			if err != nil {
				return fmt.Errorf("encode identity: %w", err)
			}
			cmd.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&declaredType, "type", "", "declared source type, overrides detection")
	return cmd
}
