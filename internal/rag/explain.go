package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gwi.com/legal-rag/internal/risk"
)

// Explanation is the advisory text attached to one finding. It deliberately has
// no severity: the evaluator's severity is the only one that exists.
type Explanation struct {
	ID          string   `json:"id"`
	Explanation string   `json:"explanation"`
	Remediation []string `json:"remediation"`
}

var errUnparsable = errors.New("explanations are not a JSON array")

type explainInput struct {
	ID          string `json:"id"`
	RuleID      string `json:"rule_id"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	MatchedText string `json:"matched_text"`
	Snippet     string `json:"snippet"`
}

func explainPayload(findings []risk.Finding) (string, error) {
	in := make([]explainInput, len(findings))
	for i, f := range findings {
		in[i] = explainInput{
			ID:          f.ID,
			RuleID:      f.RuleID,
			Severity:    string(f.Severity),
			Description: f.Description,
			MatchedText: f.Match,
			Snippet:     f.Snippet,
		}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return "Detected risks:\n" + string(b), nil
}

// parseExplanations reads the model's JSON array, tolerating code fences and prose
// around it. Entries for unknown ids are dropped.
func parseExplanations(raw string, findings []risk.Finding) (map[string]Explanation, error) {
	body := stripFences(raw)
	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start < 0 || end <= start {
		return nil, errUnparsable
	}

	var items []struct {
		ID              string   `json:"id"`
		Explanation     string   `json:"explanation"`
		Remediation     []string `json:"remediation"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", errUnparsable, err)
	}

	known := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		known[f.ID] = struct{}{}
	}

	out := make(map[string]Explanation, len(items))
	for _, it := range items {
		if _, ok := known[it.ID]; !ok {
			continue
		}
		text := strings.TrimSpace(it.Explanation)
		if text == "" {
			continue
		}
		rem := it.Remediation
		if len(rem) == 0 {
			rem = it.Recommendations
		}
		out[it.ID] = Explanation{ID: it.ID, Explanation: text, Remediation: cleanList(rem)}
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FallbackExplanation is the deterministic advice used when the model is unavailable
// or its answer for a finding is missing.
func FallbackExplanation(f risk.Finding, remediation []string) Explanation {
	rem := cleanList(remediation)
	if len(rem) == 0 {
		rem = []string{"Narrow the clause", "Add caps or time limits", "Seek legal review of the clause"}
	}
	return Explanation{
		ID:          f.ID,
		Explanation: fmt.Sprintf("Detected wording associated with %s; review the clause near the matched text.", strings.ToLower(f.Description)),
		Remediation: rem,
	}
}
