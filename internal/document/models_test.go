package document

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
)

type DocumentModelSuite struct {
	suite.Suite
	now time.Time
}

func (s *DocumentModelSuite) SetupTest() {
	s.now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
}

func TestDocumentModelSuite(t *testing.T) {
	suite.Run(t, new(DocumentModelSuite))
}

func (s *DocumentModelSuite) newEntry(label string, position int, required bool) SignatureEntry {
	return SignatureEntry{
		SignatoryID: id.SignatoryID(uuid.New()),
		UserID:      id.NewUserID(),
		Label:       label,
		Position:    position,
		Required:    required,
		State:       SignaturePending,
	}
}

func (s *DocumentModelSuite) newDocument(sequential bool, entries ...SignatureEntry) *GeneratedDocument {
	return &GeneratedDocument{
		ID:         id.NewDocumentID(),
		OrgID:      id.OrgID(uuid.New()),
		Name:       "employment contract",
		Status:     StatusPendingSignatures,
		Sequential: sequential,
		Signatures: entries,
		Version:    1,
		CreatedAt:  s.now,
	}
}

func (s *DocumentModelSuite) TestStatusTransitions() {
	s.Run("draft moves forward or cancels", func() {
		s.True(StatusDraft.CanTransitionTo(StatusPendingSignatures))
		s.True(StatusDraft.CanTransitionTo(StatusCancelled))
		s.False(StatusDraft.CanTransitionTo(StatusCompleted))
	})

	s.Run("pending completes or cancels", func() {
		s.True(StatusPendingSignatures.CanTransitionTo(StatusCompleted))
		s.True(StatusPendingSignatures.CanTransitionTo(StatusCancelled))
		s.False(StatusPendingSignatures.CanTransitionTo(StatusDraft))
	})

	s.Run("terminal states go nowhere", func() {
		s.False(StatusCompleted.CanTransitionTo(StatusCancelled))
		s.False(StatusCancelled.CanTransitionTo(StatusPendingSignatures))
	})
}

// TestSequentialBlocking verifies that a later slot cannot sign while a
// required earlier slot is still pending, and that the rejection names who is
// being waited on.
func (s *DocumentModelSuite) TestSequentialBlocking() {
	employee := s.newEntry("Employee", 0, true)
	manager := s.newEntry("Manager", 1, true)
	doc := s.newDocument(true, employee, manager)

	s.Run("second slot is blocked", func() {
		err := doc.CanSignAtPosition(1)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		s.Contains(err.Error(), "waiting on Employee")
	})

	s.Run("first slot may sign", func() {
		s.Require().NoError(doc.CanSignAtPosition(0))
	})

	s.Run("signing out of order is rejected", func() {
		err := doc.ApplySignature(manager.SignatoryID, "Max Manager", "ref", nil, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unblocks once the predecessor signs", func() {
		s.Require().NoError(doc.ApplySignature(employee.SignatoryID, "Ana Pérez", "ref-1", nil, s.now))
		s.Require().NoError(doc.CanSignAtPosition(1))
	})
}

func (s *DocumentModelSuite) TestOptionalPredecessorNeverBlocks() {
	witness := s.newEntry("Witness", 0, false)
	manager := s.newEntry("Manager", 1, true)
	doc := s.newDocument(true, witness, manager)

	s.Require().NoError(doc.CanSignAtPosition(1))
	s.Empty(doc.BlockingEntries(1))
}

func (s *DocumentModelSuite) TestParallelSigningNeverBlocks() {
	a := s.newEntry("Employee", 0, true)
	b := s.newEntry("Manager", 1, true)
	doc := s.newDocument(false, a, b)

	s.Require().NoError(doc.CanSignAtPosition(1))
	s.Require().NoError(doc.ApplySignature(b.SignatoryID, "Max Manager", "ref", nil, s.now))
}

func (s *DocumentModelSuite) TestApplySignature() {
	entry := s.newEntry("Employee", 0, true)
	doc := s.newDocument(true, entry)

	s.Run("records the signature", func() {
		s.Require().NoError(doc.ApplySignature(entry.SignatoryID, "Ana Pérez", "sig-ref", nil, s.now))
		signed, err := doc.Entry(entry.SignatoryID)
		s.Require().NoError(err)
		s.Equal(SignatureSigned, signed.State)
		s.Equal("Ana Pérez", signed.SignedByName)
		s.Equal("sig-ref", signed.SignatureRef)
		s.Require().NotNil(signed.SignedAt)
		s.Equal(s.now, *signed.SignedAt)
	})

	s.Run("double signing conflicts", func() {
		err := doc.ApplySignature(entry.SignatoryID, "Ana Pérez", "sig-ref", nil, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown signatory is not found", func() {
		err := doc.ApplySignature(id.SignatoryID(uuid.New()), "Nobody", "ref", nil, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestCompletion verifies that the document completes exactly when every
// required slot has signed, and never while an optional slot alone is open.
func (s *DocumentModelSuite) TestCompletion() {
	employee := s.newEntry("Employee", 0, true)
	manager := s.newEntry("Manager", 1, true)
	witness := s.newEntry("Witness", 2, false)
	doc := s.newDocument(true, employee, manager, witness)

	s.Run("incomplete while required slots are open", func() {
		s.Require().NoError(doc.ApplySignature(employee.SignatoryID, "Ana", "r1", nil, s.now))
		s.False(doc.CheckCompletion(s.now))
		s.Equal(StatusPendingSignatures, doc.Status)
	})

	s.Run("completes when the last required slot signs", func() {
		s.Require().NoError(doc.ApplySignature(manager.SignatoryID, "Max", "r2", nil, s.now))
		s.True(doc.CheckCompletion(s.now))
		s.Equal(StatusCompleted, doc.Status)
		s.Require().NotNil(doc.CompletedAt)
		s.Equal(2, doc.SignedCount())
	})

	s.Run("completion does not fire twice", func() {
		s.False(doc.CheckCompletion(s.now))
	})
}

func (s *DocumentModelSuite) TestCancellation() {
	entry := s.newEntry("Employee", 0, true)
	doc := s.newDocument(true, entry)

	s.Run("cancel records reason and timestamp", func() {
		s.Require().NoError(doc.ApplyCancel("superseded by amendment", s.now))
		s.Equal(StatusCancelled, doc.Status)
		s.Equal("superseded by amendment", doc.CancelReason)
		s.Require().NotNil(doc.CancelledAt)
	})

	s.Run("second cancel is rejected", func() {
		err := doc.ApplyCancel("again", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("cancelled document cannot be signed", func() {
		err := doc.ApplySignature(entry.SignatoryID, "Ana", "ref", nil, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("completed document cannot be cancelled", func() {
		done := s.newDocument(false)
		done.Status = StatusCompleted
		err := done.ApplyCancel("too late", s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *DocumentModelSuite) TestPendingEntryFor() {
	entry := s.newEntry("Employee", 0, true)
	doc := s.newDocument(true, entry)

	found, err := doc.PendingEntryFor(entry.UserID)
	s.Require().NoError(err)
	s.Equal(entry.SignatoryID, found.SignatoryID)

	s.Require().NoError(doc.ApplySignature(entry.SignatoryID, "Ana", "ref", nil, s.now))
	_, err = doc.PendingEntryFor(entry.UserID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
