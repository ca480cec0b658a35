package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gwi.com/legal-rag/internal/core"
	"gwi.com/legal-rag/internal/extract"
	"gwi.com/legal-rag/internal/risk"
)

var scanFlags struct {
	rules   string
	policy  string
	license string
}

var scanCmd = &cobra.Command{
	Use:   "scan <file.pdf>",
	Short: "Extract a PDF and print its risk report without calling any cloud service",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanFlags.rules, "rules", os.Getenv("RISK_RULES_FILE"), "Rule set YAML (default: embedded)")
	f.StringVar(&scanFlags.policy, "policy", os.Getenv("RISK_MATCH_POLICY"), "Match policy: all or first")
	f.StringVar(&scanFlags.license, "license-key", os.Getenv("UNIDOC_LICENSE_KEY"), "unipdf metered license key (empty: built-in reader)")
}

func runScan(cmd *cobra.Command, args []string) error {
	evaluator, err := loadEvaluator(scanFlags.rules, scanFlags.policy)
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	extractor, err := extract.New(scanFlags.license)
	if err != nil {
		return err
	}
	ext, err := extractor.Extract(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}

	findings, err := evaluator.Evaluate(ext.Text, ext.Pages)
	if err != nil {
		if errors.Is(err, risk.ErrUnprocessable) {
			return fmt.Errorf("%s has no extractable text", path)
		}
		return err
	}

	report := core.NewRiskReport(evaluator, filepath.Base(path), findings, nil)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func loadEvaluator(path, policy string) (*risk.Evaluator, error) {
	rules, err := risk.LoadRuleSet(path, policy)
	if err != nil {
		return nil, err
	}
	evaluator, err := risk.NewEvaluator(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid risk rule set: %w", err)
	}
	return evaluator, nil
}
