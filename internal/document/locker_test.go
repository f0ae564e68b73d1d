package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
)

type MemoryLockerSuite struct {
	suite.Suite
	locker *MemoryLocker
	ctx    context.Context
}

func (s *MemoryLockerSuite) SetupTest() {
	s.locker = NewMemoryLocker()
	s.ctx = context.Background()
}

func TestMemoryLockerSuite(t *testing.T) {
	suite.Run(t, new(MemoryLockerSuite))
}

func (s *MemoryLockerSuite) TestAcquireAndRelease() {
	documentID := id.NewDocumentID()

	release, err := s.locker.Acquire(s.ctx, documentID)
	s.Require().NoError(err)

	s.Run("second acquire conflicts while held", func() {
		_, err := s.locker.Acquire(s.ctx, documentID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("other documents are independent", func() {
		otherRelease, err := s.locker.Acquire(s.ctx, id.NewDocumentID())
		s.Require().NoError(err)
		otherRelease()
	})

	s.Run("release frees the document", func() {
		release()
		again, err := s.locker.Acquire(s.ctx, documentID)
		s.Require().NoError(err)
		again()
	})
}
