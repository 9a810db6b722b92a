package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/casework/rules"
)

func newValidateCmd() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a rule file against the write-time validation rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleSet, err := rules.LoadRuleFile(rulesPath)
			if err != nil {
				return err
			}
			if err := rules.ValidateRules(ruleSet); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d rules are valid\n", len(ruleSet))
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "Rule file (YAML, or JSON with a .json extension)")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}
