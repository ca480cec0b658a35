package main

import (
	"os"

	"github.com/spf13/cobra"

	"gwi.com/legal-rag/internal/risk"
)

var rulesFlags struct {
	rules  string
	policy string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the active risk rule set as YAML",
	Args:  cobra.NoArgs,
	RunE:  runRules,
}

func init() {
	f := rulesCmd.Flags()
	f.StringVar(&rulesFlags.rules, "rules", os.Getenv("RISK_RULES_FILE"), "Rule set YAML (default: embedded)")
	f.StringVar(&rulesFlags.policy, "policy", os.Getenv("RISK_MATCH_POLICY"), "Match policy: all or first")
}

func runRules(cmd *cobra.Command, _ []string) error {
	rules, err := risk.LoadRuleSet(rulesFlags.rules, rulesFlags.policy)
	if err != nil {
		return err
	}
	// Validate before printing so a broken override file is reported, not echoed.
	if _, err := risk.NewEvaluator(rules); err != nil {
		return err
	}
	out, err := rules.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
