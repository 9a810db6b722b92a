package main

import (
	"github.com/spf13/cobra"

	"github.com/liamcoop/casework/rules"
)

func newEvaluateCmd() *cobra.Command {
	var rulesPath, contextPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a rule file against a context file",
		Long:  `Runs every rule in the rule file against the context and prints the derived facts and the evaluation trace as JSON.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleSet, err := rules.LoadRuleFile(rulesPath)
			if err != nil {
				return err
			}
			evalCtx, err := loadContext(contextPath)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), rules.EvaluateRules(evalCtx, ruleSet))
		},
	}

	cmd.Flags().StringVar(&rulesPath, "rules", "", "Rule file (YAML, or JSON with a .json extension)")
	cmd.Flags().StringVar(&contextPath, "context", "", "Context file (YAML, or JSON with a .json extension)")
	_ = cmd.MarkFlagRequired("rules")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}
