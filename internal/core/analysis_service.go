package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/cache"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/metrics"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/risk"
)

const (
	ExplanationFromLLM      = "llm"
	ExplanationFromFallback = "fallback"
)

type SummaryResult struct {
	DocumentID string
	Summary    string
	Sources    []model.SourceRef
	Cached     bool
}

// RiskItem merges one finding with its explanation. Severity always comes from the finding.
type RiskItem struct {
	ID                string        `json:"id"`
	RuleID            string        `json:"rule_id"`
	Severity          risk.Severity `json:"severity"`
	MatchedText       string        `json:"matched_text"`
	Start             int           `json:"start"`
	End               int           `json:"end"`
	Page              int           `json:"page,omitempty"`
	Snippet           string        `json:"snippet"`
	Description       string        `json:"description"`
	Explanation       string        `json:"explanation"`
	Remediation       []string      `json:"remediation"`
	ExplanationSource string        `json:"explanation_source"`
}

type RiskReport struct {
	DocumentID     string     `json:"doc_id"`
	RuleSetVersion string     `json:"rule_set_version"`
	Score          int        `json:"score"`
	Level          risk.Level `json:"level"`
	Risks          []RiskItem `json:"risks"`
}

type AnalysisService struct {
	store     Store
	ingestor  *Ingestor
	rag       *rag.Service
	evaluator *risk.Evaluator
	summaries *cache.SummaryCache
	log       *slog.Logger
}

func NewAnalysisService(s Store, ing *Ingestor, r *rag.Service, ev *risk.Evaluator, summaries *cache.SummaryCache) *AnalysisService {
	return &AnalysisService{
		store:     s,
		ingestor:  ing,
		rag:       r,
		evaluator: ev,
		summaries: summaries,
		log:       logging.New("analysis"),
	}
}

// RetryAfter is the delay suggested to clients when a document is still being ingested.
func (s *AnalysisService) RetryAfter() time.Duration {
	p := s.ingestor.Poll()
	d := time.Duration(p.Attempts) * p.Interval
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Summarize returns a grounded summary. While ingestion is still running it returns
// an apperr of kind upstream_pending instead of blocking.
func (s *AnalysisService) Summarize(ctx context.Context, docID string) (*SummaryResult, error) {
	doc, err := loadDocument(ctx, s.store, docID)
	if err != nil {
		return nil, err
	}

	if doc.IngestionStatus == model.IngestionReady {
		if hit := s.cached(ctx, doc); hit != nil {
			return hit, nil
		}
	}

	doc, err = s.ingestor.Ensure(ctx, doc)
	if err != nil {
		return nil, err
	}
	status, err := s.ingestor.Await(ctx, doc)
	if err != nil {
		return nil, err
	}
	switch status {
	case model.IngestionReady:
	case model.IngestionFailed:
		return nil, apperr.Upstream(errIngestionFailed, "document ingestion failed")
	default:
		return nil, apperr.Pending("document %s is still being ingested", doc.ID)
	}

	if hit := s.cached(ctx, doc); hit != nil {
		return hit, nil
	}

	ans, err := s.rag.Summarize(ctx, rag.Handle{Corpus: doc.CorpusName, Operation: doc.ImportOperation})
	if err != nil {
		return nil, apperr.Upstream(err, "summary generation failed")
	}

	if err := s.summaries.Set(ctx, &cache.Summary{
		DocumentID: doc.ID,
		Corpus:     doc.CorpusName,
		Text:       ans.Text,
		Sources:    ans.Sources,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to cache summary", "doc_id", doc.ID, "error", err)
	}
	return &SummaryResult{DocumentID: doc.ID, Summary: ans.Text, Sources: ans.Sources}, nil
}

func (s *AnalysisService) cached(ctx context.Context, doc *model.Document) *SummaryResult {
	hit, err := s.summaries.Get(ctx, doc.ID, doc.CorpusName)
	if err != nil || hit == nil {
		return nil
	}
	return &SummaryResult{DocumentID: doc.ID, Summary: hit.Text, Sources: hit.Sources, Cached: true}
}

// Risks evaluates the rule set, then asks the model to explain the fixed findings.
// Explanations that fail or are missing fall back to deterministic advice.
func (s *AnalysisService) Risks(ctx context.Context, docID string) (*RiskReport, error) {
	doc, err := loadDocument(ctx, s.store, docID)
	if err != nil {
		return nil, err
	}
	if !doc.HasText() {
		return nil, apperr.Extraction(risk.ErrUnprocessable, "document %s has no extractable text", doc.ID)
	}

	findings, err := s.evaluator.Evaluate(doc.TextOrEmpty(), doc.Pages)
	if err != nil {
		if errors.Is(err, risk.ErrUnprocessable) {
			return nil, apperr.Extraction(err, "document %s has no extractable text", doc.ID)
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "risk evaluation failed")
	}

	m := metrics.Get()
	for _, f := range findings {
		m.RiskFindings.WithLabelValues(string(f.Severity)).Inc()
	}

	explanations, err := s.rag.Explain(ctx, findings)
	if err != nil {
		s.log.Warn("explanations unavailable, using fallback", "doc_id", doc.ID, "error", err)
		explanations = nil
	}

	return NewRiskReport(s.evaluator, doc.ID, findings, explanations), nil
}

// NewRiskReport merges findings with their explanations. Findings without one get
// the deterministic fallback built from the rule's remediation hints.
func NewRiskReport(ev *risk.Evaluator, docID string, findings []risk.Finding, explanations map[string]rag.Explanation) *RiskReport {
	score, level := risk.Score(findings)
	report := &RiskReport{
		DocumentID:     docID,
		RuleSetVersion: ev.Version(),
		Score:          score,
		Level:          level,
		Risks:          make([]RiskItem, 0, len(findings)),
	}
	for _, f := range findings {
		item := RiskItem{
			ID:          f.ID,
			RuleID:      f.RuleID,
			Severity:    f.Severity,
			MatchedText: f.Match,
			Start:       f.Start,
			End:         f.End,
			Page:        f.Page,
			Snippet:     f.Snippet,
			Description: f.Description,
		}
		if e, ok := explanations[f.ID]; ok {
			item.Explanation = e.Explanation
			item.Remediation = e.Remediation
			item.ExplanationSource = ExplanationFromLLM
		} else {
			var hints []string
			if rule, ok := ev.Rule(f.RuleID); ok {
				hints = rule.Remediation
			}
			fb := rag.FallbackExplanation(f, hints)
			item.Explanation = fb.Explanation
			item.Remediation = fb.Remediation
			item.ExplanationSource = ExplanationFromFallback
		}
		if item.Remediation == nil {
			item.Remediation = []string{}
		}
		report.Risks = append(report.Risks, item)
	}
	return report
}
