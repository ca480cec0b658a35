package core

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/store"
)

const (
	historyTurns    = 5 // previous turns replayed to the model
	maxSessionTurns = 100
)

type ChatInput struct {
	DocumentID string
	SessionID  string
	Question   string
	// Messages is an alternative to Question: the last user message is the question
	// and the ones before it are the history.
	Messages []rag.Message
}

type ChatResult struct {
	DocumentID string
	SessionID  string
	Answer     string
	Sources    []model.SourceRef
	Fallback   bool
}

type ChatService struct {
	store    Store
	ingestor *Ingestor
	rag      *rag.Service
	log      *slog.Logger
}

func NewChatService(s Store, ing *Ingestor, r *rag.Service) *ChatService {
	return &ChatService{
		store:    s,
		ingestor: ing,
		rag:      r,
		log:      logging.New("chat"),
	}
}

// Ask answers a question about a document. It prefers a corpus-grounded answer and
// falls back to a direct answer over the extracted text when the corpus is not ready.
func (s *ChatService) Ask(ctx context.Context, in ChatInput) (*ChatResult, error) {
	question, history := splitMessages(in)
	if question == "" {
		return nil, apperr.Validation("question must not be empty")
	}
	doc, err := loadDocument(ctx, s.store, in.DocumentID)
	if err != nil {
		return nil, err
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if len(in.Messages) == 0 && in.SessionID != "" {
		history = s.sessionHistory(ctx, doc.ID, sessionID)
	}

	result := &ChatResult{DocumentID: doc.ID, SessionID: sessionID}
	status := doc.IngestionStatus

	if ingested, err := s.ingestor.Ensure(ctx, doc); err != nil {
		s.log.Warn("grounded chat unavailable", "doc_id", doc.ID, "error", err)
	} else {
		doc = ingested
		if status, err = s.ingestor.Await(ctx, doc); err != nil {
			s.log.Warn("readiness check failed", "doc_id", doc.ID, "error", err)
		}
		if status == model.IngestionReady {
			ans, err := s.rag.Chat(ctx, rag.Handle{Corpus: doc.CorpusName, Operation: doc.ImportOperation}, question, history)
			if err == nil {
				result.Answer, result.Sources = ans.Text, ans.Sources
			} else {
				s.log.Warn("grounded chat failed, falling back", "doc_id", doc.ID, "error", err)
			}
		}
	}

	if result.Answer == "" {
		if !doc.HasText() {
			if status == model.IngestionPending {
				return nil, apperr.Pending("document %s is still being ingested", doc.ID)
			}
			return nil, apperr.Upstream(errIngestionFailed, "document is not available for questions")
		}
		ans, err := s.rag.Answer(ctx, doc.TextOrEmpty(), question, history)
		if err != nil {
			return nil, apperr.Upstream(err, "answer generation failed")
		}
		result.Answer, result.Sources, result.Fallback = ans.Text, nil, true
	}

	turn := &model.ChatTurn{
		DocumentID: doc.ID,
		SessionID:  sessionID,
		Question:   question,
		Answer:     result.Answer,
		Sources:    result.Sources,
		Fallback:   result.Fallback,
	}
	if err := s.store.CreateChatTurn(ctx, turn); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to save chat turn")
	}
	return result, nil
}

// History returns the stored turns of a session.
func (s *ChatService) History(ctx context.Context, docID, sessionID string) (*store.Session, error) {
	doc, err := loadDocument(ctx, s.store, docID)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.GetChatTurns(ctx, doc.ID, sessionID, maxSessionTurns)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load chat session")
	}
	if len(turns) == 0 {
		return nil, apperr.NotFound("session %s not found", sessionID)
	}
	return &store.Session{DocumentID: doc.ID, SessionID: sessionID, Turns: turns}, nil
}

func (s *ChatService) sessionHistory(ctx context.Context, docID, sessionID string) []rag.Message {
	turns, err := s.store.GetLastNChatTurns(ctx, docID, sessionID, historyTurns)
	if err != nil {
		// Continue without history rather than failing the question.
		s.log.Warn("failed to load chat history", "doc_id", docID, "session_id", sessionID, "error", err)
		return nil
	}
	history := make([]rag.Message, 0, 2*len(turns))
	for _, t := range turns {
		history = append(history,
			rag.Message{Role: rag.RoleUser, Content: t.Question},
			rag.Message{Role: rag.RoleModel, Content: t.Answer},
		)
	}
	return history
}

// splitMessages picks the question and any client-supplied history from the input.
func splitMessages(in ChatInput) (string, []rag.Message) {
	if q := strings.TrimSpace(in.Question); q != "" || len(in.Messages) == 0 {
		return q, nil
	}
	last := -1
	for i := len(in.Messages) - 1; i >= 0; i-- {
		if normalizeRole(in.Messages[i].Role) == rag.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return "", nil
	}
	history := make([]rag.Message, 0, last)
	for _, m := range in.Messages[:last] {
		if c := strings.TrimSpace(m.Content); c != "" {
			history = append(history, rag.Message{Role: normalizeRole(m.Role), Content: c})
		}
	}
	return strings.TrimSpace(in.Messages[last].Content), history
}

func normalizeRole(r rag.Role) rag.Role {
	switch strings.ToLower(string(r)) {
	case "model", "assistant":
		return rag.RoleModel
	default:
		return rag.RoleUser
	}
}
