package exception

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// Service is the ops-facing API surface plus the OpenCase hook the pipeline
// uses to raise a case from within a handler (spec §4.12: "create/get/list/
// assign/resolve/cancel... not part of the critical path").
type Service struct {
	Cases  CaseStore
	Notes  NotesStore
	Logger mlog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now()
}

func (s *Service) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader).String()
}

// OpenCase raises a new case for an outbox/classifier caller that could not
// make progress on its own. It satisfies outbox.ExceptionOpener and
// classifier.ExceptionOpener structurally.
func (s *Service) OpenCase(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, reason string) error {
	c := domain.ExceptionCase{
		ID:          s.newID(),
		PaymentID:   msg.AggregateID,
		Category:    domain.ExceptionCategory(category),
		Subcategory: subcategory,
		Severity:    severityFor(domain.ExceptionCategory(category), subcategory, msg.AttemptCount),
		State:       domain.ExceptionOpen,
	}

	if err := s.Cases.Create(ctx, c); err != nil {
		return fmt.Errorf("create exception case: %w", err)
	}

	if s.Notes == nil || reason == "" {
		return nil
	}

	return s.Notes.AppendNote(ctx, Note{CaseID: c.ID, Author: "system", Text: reason, CreatedAt: s.now()})
}

// OpenCaseWithSeverity raises a case at an explicit, caller-derived
// severity rather than the category/subcategory default severityFor
// computes. It satisfies reversal.ExceptionOpener, whose saga derives
// severity from the failed step instead (spec §4.10).
func (s *Service) OpenCaseWithSeverity(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, severity domain.ExceptionSeverity, reason string) error {
	c := domain.ExceptionCase{
		ID:          s.newID(),
		PaymentID:   msg.AggregateID,
		Category:    domain.ExceptionCategory(category),
		Subcategory: subcategory,
		Severity:    severity,
		State:       domain.ExceptionOpen,
	}

	if err := s.Cases.Create(ctx, c); err != nil {
		return fmt.Errorf("create exception case: %w", err)
	}

	if s.Notes == nil || reason == "" {
		return nil
	}

	return s.Notes.AppendNote(ctx, Note{CaseID: c.ID, Author: "system", Text: reason, CreatedAt: s.now()})
}

// severityFor applies the fixed derivation rules of spec §4.12.
func severityFor(category domain.ExceptionCategory, subcategory string, retryCount int) domain.ExceptionSeverity {
	switch category {
	case domain.CategoryACHReturn:
		return DeriveACHSeverity(subcategory)
	case domain.CategoryNSF:
		return DeriveNSFSeverity(retryCount)
	default:
		return DefaultSeverity
	}
}

// Create opens a case directly (used by C10/C11 callers that already know
// the full case shape, bypassing the msg-based OpenCase convenience path).
func (s *Service) Create(ctx context.Context, c domain.ExceptionCase) error {
	if c.ID == "" {
		c.ID = s.newID()
	}

	if c.Severity == "" {
		c.Severity = severityFor(c.Category, c.Subcategory, 0)
	}

	if c.State == "" {
		c.State = domain.ExceptionOpen
	}

	if err := s.Cases.Create(ctx, c); err != nil {
		return fmt.Errorf("create exception case: %w", err)
	}

	return nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.ExceptionCase, error) {
	return s.Cases.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, state domain.ExceptionState) ([]domain.ExceptionCase, error) {
	return s.Cases.List(ctx, state)
}

func (s *Service) Assign(ctx context.Context, id, assignee string) error {
	return s.Cases.Assign(ctx, id, assignee)
}

func (s *Service) Resolve(ctx context.Context, id string) error {
	return s.Cases.Resolve(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.Cases.Cancel(ctx, id)
}
