package risk

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Policy controls how many findings a rule may produce.
type Policy string

const (
	PolicyAll   Policy = "all"
	PolicyFirst Policy = "first"
)

type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Pattern     string   `yaml:"pattern" json:"pattern"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Weight      int      `yaml:"weight" json:"weight"`
	Description string   `yaml:"description" json:"description"`
	Remediation []string `yaml:"remediation,omitempty" json:"remediation,omitempty"`
}

type RuleSet struct {
	Version string `yaml:"version" json:"version"`
	Policy  Policy `yaml:"policy" json:"policy"`
	Rules   []Rule `yaml:"rules" json:"rules"`
}

//go:embed rules/default.yaml
var defaultRules []byte

// DefaultRuleSet returns the rule set shipped with the binary.
func DefaultRuleSet() (RuleSet, error) {
	return ParseRuleSet(defaultRules)
}

// LoadRuleSet reads a rule set from path, or the embedded default when path is empty.
// A non-empty policy overrides the one in the file.
func LoadRuleSet(path string, policy string) (RuleSet, error) {
	var (
		rs  RuleSet
		err error
	)
	if path == "" {
		rs, err = DefaultRuleSet()
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return RuleSet{}, fmt.Errorf("read rule set %s: %w", path, err)
		}
		rs, err = ParseRuleSet(data)
	}
	if err != nil {
		return RuleSet{}, err
	}
	if policy != "" {
		rs.Policy = Policy(policy)
	}
	return rs, nil
}

func ParseRuleSet(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rule set: %w", err)
	}
	if rs.Policy == "" {
		rs.Policy = PolicyAll
	}
	return rs, nil
}

// YAML renders the rule set in the same format ParseRuleSet reads.
func (rs RuleSet) YAML() ([]byte, error) {
	return yaml.Marshal(rs)
}
