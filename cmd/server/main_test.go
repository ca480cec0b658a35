package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/legal-rag/internal/extract"
	"gwi.com/legal-rag/internal/risk"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRulesPrintsEmbeddedSet(t *testing.T) {
	rulesFlags.rules, rulesFlags.policy = "", ""

	out, err := execute(t, "rules")
	require.NoError(t, err)

	rs, err := risk.ParseRuleSet([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "2024.1", rs.Version)
	assert.Equal(t, risk.PolicyAll, rs.Policy)
	assert.Len(t, rs.Rules, 10)
}

func TestRulesPolicyOverride(t *testing.T) {
	rulesFlags.rules, rulesFlags.policy = "", ""

	out, err := execute(t, "rules", "--policy", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "policy: first")
}

func TestRulesRejectsInvalidFile(t *testing.T) {
	rulesFlags.rules, rulesFlags.policy = "", ""
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: x\nrules:\n  - id: bad\n    pattern: '('\n    severity: high\n"), 0o600))

	_, err := execute(t, "rules", "--rules", path)
	require.Error(t, err)
}

func TestScanRejectsNonPDF(t *testing.T) {
	scanFlags.rules, scanFlags.policy, scanFlags.license = "", "", ""
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o600))

	_, err := execute(t, "scan", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrNotPDF)
}

func TestScanRequiresOneFile(t *testing.T) {
	_, err := execute(t, "scan")
	require.Error(t, err)
}
