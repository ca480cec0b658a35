// Package risk finds risk clauses in document text with a fixed, versioned rule set.
//
// Evaluation is a pure function of the text and the rule set. Findings are
// value types and nothing downstream is allowed to change their severity.
package risk

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gwi.com/legal-rag/internal/model"
)

// ErrUnprocessable is returned when there is no text to evaluate.
var ErrUnprocessable = errors.New("no extractable text to evaluate")

const snippetContext = 80

type Finding struct {
	ID          string   `json:"id"`
	RuleID      string   `json:"rule_id"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Page        int      `json:"page,omitempty"`
	Match       string   `json:"matched_text"`
	Snippet     string   `json:"snippet"`
	Weight      int      `json:"weight"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

type Evaluator struct {
	version string
	policy  Policy
	rules   []compiledRule
	byID    map[string]Rule
}

func NewEvaluator(rs RuleSet) (*Evaluator, error) {
	if len(rs.Rules) == 0 {
		return nil, errors.New("rule set has no rules")
	}
	policy := rs.Policy
	if policy == "" {
		policy = PolicyAll
	}
	if policy != PolicyAll && policy != PolicyFirst {
		return nil, fmt.Errorf("unknown match policy %q", policy)
	}

	var errs []error
	e := &Evaluator{
		version: rs.Version,
		policy:  policy,
		byID:    make(map[string]Rule, len(rs.Rules)),
	}
	for i, r := range rs.Rules {
		if strings.TrimSpace(r.ID) == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty id", i))
			continue
		}
		if _, dup := e.byID[r.ID]; dup {
			errs = append(errs, fmt.Errorf("rule %q: duplicate id", r.ID))
			continue
		}
		if !r.Severity.Valid() {
			errs = append(errs, fmt.Errorf("rule %q: invalid severity %q", r.ID, r.Severity))
		}
		if r.Weight < 0 || r.Weight > 100 {
			errs = append(errs, fmt.Errorf("rule %q: weight %d out of range 0..100", r.ID, r.Weight))
		}
		if r.Pattern == "" {
			errs = append(errs, fmt.Errorf("rule %q: empty pattern", r.ID))
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.ID, err))
			continue
		}
		e.byID[r.ID] = r
		e.rules = append(e.rules, compiledRule{Rule: r, re: re})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid rule set %q: %w", rs.Version, err)
	}
	return e, nil
}

func (e *Evaluator) Version() string { return e.version }

func (e *Evaluator) Policy() Policy { return e.policy }

// Rule looks up a rule by id.
func (e *Evaluator) Rule(id string) (Rule, bool) {
	r, ok := e.byID[id]
	return r, ok
}

// Evaluate returns the findings for text ordered by start offset, rule id, end offset.
// pages may be nil; when set, each finding carries the page its start falls on.
func (e *Evaluator) Evaluate(text string, pages []model.Page) ([]Finding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrUnprocessable
	}

	findings := make([]Finding, 0)
	for _, r := range e.rules {
		limit := -1
		if e.policy == PolicyFirst {
			limit = 1
		}
		for _, loc := range r.re.FindAllStringIndex(text, limit) {
			start, end := loc[0], loc[1]
			if start == end {
				continue
			}
			findings = append(findings, Finding{
				ID:          fmt.Sprintf("%s-%d", r.ID, start),
				RuleID:      r.ID,
				Severity:    r.Severity,
				Description: r.Description,
				Start:       start,
				End:         end,
				Page:        pageOf(pages, start),
				Match:       text[start:end],
				Snippet:     snippet(text, start, end),
				Weight:      r.Weight,
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.End < b.End
	})
	return findings, nil
}

func snippet(text string, start, end int) string {
	from := start - snippetContext
	if from < 0 {
		from = 0
	}
	to := end + snippetContext
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	return text[from:to]
}

func pageOf(pages []model.Page, offset int) int {
	i := sort.Search(len(pages), func(i int) bool { return pages[i].End > offset })
	if i < len(pages) && pages[i].Start <= offset {
		return pages[i].Number
	}
	return 0
}
