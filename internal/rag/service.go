package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/metrics"
	"gwi.com/legal-rag/internal/risk"
)

// Service runs the prompts this backend needs on top of a grounded generator and,
// optionally, a separate generator for direct prompts.
type Service struct {
	grounded Generator
	direct   Generator
	timeout  time.Duration
	log      *slog.Logger
}

// NewService builds a Service. direct may be nil, in which case grounded also
// serves direct prompts. A zero timeout leaves calls bounded by the caller's context.
func NewService(grounded, direct Generator, timeout time.Duration) *Service {
	if direct == nil {
		direct = grounded
	}
	return &Service{
		grounded: grounded,
		direct:   direct,
		timeout:  timeout,
		log:      logging.New("rag"),
	}
}

func (s *Service) Summarize(ctx context.Context, h Handle) (Answer, error) {
	return s.call(ctx, "summarize", s.grounded, Prompt{
		System: summarizeSystemInstruction,
		Text:   summarizeRequest,
		Corpus: h.Corpus,
	})
}

// Chat answers a question grounded on the document's corpus.
func (s *Service) Chat(ctx context.Context, h Handle, question string, history []Message) (Answer, error) {
	return s.call(ctx, "chat", s.grounded, Prompt{
		System:  chatSystemInstruction,
		Text:    question,
		History: history,
		Corpus:  h.Corpus,
	})
}

// Answer replies from a text excerpt of the document without retrieval.
func (s *Service) Answer(ctx context.Context, documentText, question string, history []Message) (Answer, error) {
	text := fmt.Sprintf("Document excerpt:\n%s\n\nQuestion: %s", Excerpt(documentText, ExcerptLimit), question)
	return s.call(ctx, "answer", s.direct, Prompt{
		System:  chatSystemInstruction,
		Text:    text,
		History: history,
	})
}

// Explain asks the model for advice on each finding and returns it keyed by finding id.
// Findings without a usable explanation are simply absent from the result.
func (s *Service) Explain(ctx context.Context, findings []risk.Finding) (map[string]Explanation, error) {
	if len(findings) == 0 {
		return map[string]Explanation{}, nil
	}
	payload, err := explainPayload(findings)
	if err != nil {
		return nil, fmt.Errorf("encode findings: %w", err)
	}
	ans, err := s.call(ctx, "explain", s.direct, Prompt{
		System: explainSystemInstruction,
		Text:   payload,
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}
	out, err := parseExplanations(ans.Text, findings)
	if err != nil {
		s.log.Warn("unparsable explanations", "error", err)
		return nil, err
	}
	return out, nil
}

func (s *Service) call(ctx context.Context, op string, g Generator, p Prompt) (Answer, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	ans, err := g.Generate(ctx, p)
	if err != nil {
		metrics.Get().UpstreamErrors.WithLabelValues("generate_" + op).Inc()
		s.log.Error("generation failed", "op", op, "grounded", p.Corpus != "", "error", err)
		return Answer{}, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("generation done", "op", op, "grounded", p.Corpus != "",
		"sources", len(ans.Sources), "took", time.Since(start))
	return ans, nil
}

// Excerpt returns at most limit bytes of text, cut on a rune boundary.
func Excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
