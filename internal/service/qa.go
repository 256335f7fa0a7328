package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/inferchain/inferchain/internal/metrics"
	"github.com/inferchain/inferchain/internal/model"
)

const defaultQAModelName = "Q&A Model"

type qaRule struct {
	keyword string
	answer  string
}

// Rules are checked in order and the first keyword contained in the question wins.
var qaRules = []qaRule{
	{"hello", "Hello! How can I help you today?"},
	{"hi", "Hi there! What would you like to know?"},
	{"what is ai", "AI (Artificial Intelligence) is the simulation of human intelligence by machines, enabling them to learn, reason, and make decisions."},
	{"what is blockchain", "Blockchain is a distributed ledger technology that maintains a continuously growing list of records (blocks) that are linked and secured using cryptography."},
	{"how does this work", "This platform allows you to use AI models on the blockchain. You pay per inference and get verifiable results."},
}

const qaDefaultAnswer = "I'm a simple Q&A model. I can answer basic questions. Try asking about AI, blockchain, or how this platform works!"

// Answer returns the canned answer for a question.
func Answer(question string) string {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, rule := range qaRules {
		if strings.Contains(q, rule.keyword) {
			return rule.answer
		}
	}
	return qaDefaultAnswer
}

// QAResult is one answered question.
type QAResult struct {
	Question         string
	Answer           string
	ModelID          string
	ModelName        string
	Timestamp        time.Time
	PaymentProcessed bool
	RequestID        string
}

// QAService answers questions for a validated rental and meters one minute per message.
type QAService struct {
	catalog  *CatalogService
	payments *PaymentService
	metering bool
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      Clock
}

// NewQAService creates a QAService.
func NewQAService(catalog *CatalogService, payments *PaymentService, metering bool, recorder metrics.Recorder, logger *slog.Logger) *QAService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &QAService{
		catalog:  catalog,
		payments: payments,
		metering: metering,
		metrics:  recorder,
		logger:   logger.With("component", "qa"),
		now:      systemClock,
	}
}

// SetClock overrides the time source.
func (s *QAService) SetClock(now Clock) { s.now = now }

// Ask answers a question. Metering failures never block the answer.
func (s *QAService) Ask(ctx context.Context, rental *model.RentalContext, question string) (*QAResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrQuestionRequired
	}

	out := &QAResult{
		Question:  question,
		Answer:    Answer(question),
		ModelID:   rental.ModelID,
		ModelName: defaultQAModelName,
		Timestamp: s.now(),
	}

	m, err := s.catalog.Resolve(ctx, rental.ModelID)
	if err != nil {
		s.logger.Debug("model for rental not in catalog", "model_id", rental.ModelID, "error", err)
	} else {
		if m.Name != "" {
			out.ModelName = m.Name
		}
		if s.metering {
			charge, err := s.payments.Charge(ctx, ChargeInput{
				Model:   m,
				Minutes: 1,
				Source:  model.SourceQuery,
				Degrade: true,
			})
			if err == nil {
				out.PaymentProcessed = charge.Processed
				out.RequestID = charge.RequestID
				s.payments.LinkRental(ctx, charge.RequestID, rental.RentalID)
			}
		}
	}

	s.metrics.IncQuestionAnswered()
	return out, nil
}

// Models lists active models usable for Q&A.
func (s *QAService) Models(ctx context.Context) ([]*model.Model, error) {
	return s.catalog.List(ctx, model.ModelFilter{})
}
