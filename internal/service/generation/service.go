// Package generation wires prompt construction, the generation client and
// persistence into the email and report drafting flows.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/drafting/backend/internal/apperr"
	"github.com/zhouzirui/drafting/backend/internal/model/audit"
	"github.com/zhouzirui/drafting/backend/internal/model/document"
	"github.com/zhouzirui/drafting/backend/internal/model/user"
	"github.com/zhouzirui/drafting/backend/internal/service/ai"
	"github.com/zhouzirui/drafting/backend/internal/service/prompt"
	"github.com/zhouzirui/drafting/backend/pkg/logging"
)

// MaxFieldLength caps email recipient and subject.
const MaxFieldLength = 500

// CategoryStorage labels a generation whose document could not be saved.
const CategoryStorage = "storage_error"

// Outcome labels reported to Metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// ErrGenerationFailed matches every *FailureError.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrServiceUnavailable is returned when no generation client is configured.
	ErrServiceUnavailable = errors.New("AI service unavailable")
)

// FailureError is the user-facing result of a backend failure. Its message
// never includes provider text; Err keeps the classified cause for logs.
type FailureError struct {
	DocType  document.DocType
	Category string
	Err      error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("Failed to generate %s. Please try again.", e.DocType)
}

func (e *FailureError) Unwrap() error { return e.Err }

func (e *FailureError) Is(target error) bool { return target == ErrGenerationFailed }

// Generator produces normalized content for a prompt. *ai.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, params ai.GenerateParams) (ai.GeneratedContent, error)
}

// Repository persists documents and audit events.
type Repository interface {
	// CreateDocument stores doc and event atomically, document first. The
	// event's entity id is set to the new document id.
	CreateDocument(ctx context.Context, doc document.Document, event audit.Event) (document.Document, error)
	RecordAudit(ctx context.Context, event audit.Event) error
}

// Metrics receives generation outcomes.
type Metrics interface {
	ObserveGeneration(docType document.DocType, outcome string, elapsed time.Duration)
	IncGenerationError(category string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveGeneration(document.DocType, string, time.Duration) {}
func (nopMetrics) IncGenerationError(string)                                {}

// EmailRequest is the decoded email generation payload.
type EmailRequest struct {
	Context   string `json:"context"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Tone      string `json:"tone"`
}

// ReportRequest is the decoded report generation payload.
type ReportRequest struct {
	Topic     string `json:"topic"`
	KeyPoints string `json:"key_points"`
	Tone      string `json:"tone"`
	Structure string `json:"structure"`
}

// Result is a persisted document plus the correlation id used for it.
type Result struct {
	Document      document.Document
	CorrelationID string
}

// Service runs generation requests. It keeps no per-request state.
type Service struct {
	gen     Generator
	repo    Repository
	logger  logging.Logger
	metrics Metrics
	now     func() time.Time
}

// NewService creates a Service. gen may be nil when no backend is configured;
// every generation call then fails with ErrServiceUnavailable.
func NewService(gen Generator, repo Repository, logger logging.Logger, metrics Metrics) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		gen:     gen,
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Available reports whether a generation backend is configured.
func (s *Service) Available() bool {
	return s.gen != nil
}

// GenerateEmail drafts and stores an email for principal.
func (s *Service) GenerateEmail(ctx context.Context, principal user.Principal, req EmailRequest, correlationID string) (Result, error) {
	tone, ok := document.ParseTone(req.Tone)
	if !ok {
		return Result{}, invalidTone(req.Tone)
	}
	recipient, err := limitField("recipient", req.Recipient)
	if err != nil {
		return Result{}, err
	}
	subject, err := limitField("subject", req.Subject)
	if err != nil {
		return Result{}, err
	}

	text, err := prompt.BuildEmailPrompt(prompt.EmailInput{
		Context:   req.Context,
		Recipient: recipient,
		Subject:   subject,
		Tone:      string(tone),
	})
	if err != nil {
		return Result{}, err
	}

	doc := document.Document{
		UserID:      principal.UserID,
		DocType:     document.TypeEmail,
		Title:       document.OptionalString(subject),
		PromptInput: document.OptionalString(strings.TrimSpace(req.Context)),
		Tone:        tone,
	}
	details := fmt.Sprintf("Generated email with tone: %s", tone)
	return s.run(ctx, principal, doc, audit.ActionGenerateEmail, details, text, correlationID)
}

// GenerateReport drafts and stores a report for principal.
func (s *Service) GenerateReport(ctx context.Context, principal user.Principal, req ReportRequest, correlationID string) (Result, error) {
	tone, ok := document.ParseTone(req.Tone)
	if !ok {
		return Result{}, invalidTone(req.Tone)
	}
	structure, ok := document.ResolveStructure(req.Structure)
	if !ok {
		return Result{}, apperr.Invalid("structure", "must be one of: "+strings.Join(document.Structures(), ", "))
	}

	text, err := prompt.BuildReportPrompt(prompt.ReportInput{
		Topic:     req.Topic,
		KeyPoints: req.KeyPoints,
		Tone:      string(tone),
		Structure: string(structure),
	})
	if err != nil {
		return Result{}, err
	}

	doc := document.Document{
		UserID:      principal.UserID,
		DocType:     document.TypeReport,
		Title:       document.OptionalString(document.TruncateTitle(strings.TrimSpace(req.Topic))),
		PromptInput: document.OptionalString(strings.TrimSpace(req.KeyPoints)),
		Tone:        tone,
		Structure:   &structure,
	}
	details := fmt.Sprintf("Generated report with tone: %s, structure: %s", tone, structure)
	return s.run(ctx, principal, doc, audit.ActionGenerateReport, details, text, correlationID)
}

func (s *Service) run(ctx context.Context, principal user.Principal, doc document.Document, action, details, promptText, correlationID string) (Result, error) {
	if s.gen == nil {
		return Result{}, ErrServiceUnavailable
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	log := s.logger.WithFields(logging.Fields{
		"correlation_id": correlationID,
		"user_id":        principal.UserID,
		"doc_type":       doc.DocType,
	})

	start := s.now()
	content, err := s.gen.Generate(ctx, ai.GenerateParams{
		Prompt:        promptText,
		CorrelationID: correlationID,
	})
	elapsed := s.now().Sub(start)

	// 持久化不随请求取消
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		if apperr.IsInvalidInput(err) {
			return Result{}, err
		}
		genErr := ai.Classify(err)
		s.metrics.ObserveGeneration(doc.DocType, OutcomeFailure, elapsed)
		s.metrics.IncGenerationError(genErr.Category)

		event := audit.New(principal.UserID, audit.FailedAction(action)).
			WithEntity(audit.EntityDocument, nil).
			WithDetails(fmt.Sprintf("Failed to generate %s: %s", doc.DocType, genErr.Category)).
			WithCorrelation(correlationID)
		if auditErr := s.repo.RecordAudit(persistCtx, event); auditErr != nil {
			log.WithError(auditErr).Error("failed to record generation failure audit")
		}
		log.WithField("error_type", genErr.Category).Warn("document generation failed")
		return Result{}, &FailureError{DocType: doc.DocType, Category: genErr.Category, Err: genErr}
	}

	doc.Content = content.Text
	event := audit.New(principal.UserID, action).
		WithEntity(audit.EntityDocument, nil).
		WithDetails(details).
		WithCorrelation(content.CorrelationID)

	saved, err := s.repo.CreateDocument(persistCtx, doc, event)
	if err != nil {
		s.metrics.ObserveGeneration(doc.DocType, OutcomeFailure, elapsed)
		s.metrics.IncGenerationError(CategoryStorage)
		log.WithError(err).Error("failed to persist generated document")

		failed := audit.New(principal.UserID, audit.FailedAction(action)).
			WithEntity(audit.EntityDocument, nil).
			WithDetails(fmt.Sprintf("Failed to generate %s: %s", doc.DocType, CategoryStorage)).
			WithCorrelation(content.CorrelationID)
		if auditErr := s.repo.RecordAudit(persistCtx, failed); auditErr != nil {
			log.WithError(auditErr).Error("failed to record persistence failure audit")
		}
		return Result{}, fmt.Errorf("persist %s document: %w", doc.DocType, err)
	}

	s.metrics.ObserveGeneration(doc.DocType, OutcomeSuccess, elapsed)
	log.WithFields(logging.Fields{
		"document_id": saved.ID,
		"latency_ms":  content.LatencyMs,
	}).Info("document generated")

	return Result{Document: saved, CorrelationID: content.CorrelationID}, nil
}

func limitField(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if utf8.RuneCountInString(trimmed) > MaxFieldLength {
		return "", apperr.Invalid(name, fmt.Sprintf("exceeds maximum length of %d characters", MaxFieldLength))
	}
	return trimmed, nil
}

func invalidTone(raw string) error {
	return apperr.Invalid("tone", fmt.Sprintf("%q is not valid. Must be one of: %s", raw, strings.Join(document.Tones(), ", ")))
}
