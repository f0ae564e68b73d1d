package template_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vellum/internal/audit"
	auditMemory "vellum/internal/audit/store/memory"
	"vellum/internal/pdf"
	"vellum/internal/signature"
	"vellum/internal/storage"
	"vellum/internal/template"
	templateMemory "vellum/internal/template/store/memory"
	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
)

// fixedGeometry returns a canned page table regardless of content.
type fixedGeometry struct {
	geom pdf.Geometry
}

func (f fixedGeometry) Geometry(_ []byte) (pdf.Geometry, error) { return f.geom, nil }

type TemplateServiceSuite struct {
	suite.Suite
	ctx     context.Context
	orgID   id.OrgID
	service *template.Service
}

func (s *TemplateServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.orgID = id.OrgID(uuid.New())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditSvc := audit.NewService(auditMemory.NewStore(), log)
	geom := fixedGeometry{geom: pdf.Geometry{Pages: []pdf.Size{{Width: 595, Height: 842}, {Width: 595, Height: 842}}}}
	s.service = template.NewService(templateMemory.NewStore(), storage.NewMemory(), template.TextExtractor{}, geom, auditSvc, log, nil)
}

func TestTemplateServiceSuite(t *testing.T) {
	suite.Run(t, new(TemplateServiceSuite))
}

func (s *TemplateServiceSuite) actor() audit.Actor {
	return audit.Actor{ID: id.NewUserID(), Type: "user", OrgID: s.orgID}
}

func (s *TemplateServiceSuite) register(name string) *template.Template {
	tpl, err := s.service.Register(s.ctx, template.RegisterInput{
		OrgID:       s.orgID,
		Name:        name,
		Content:     []byte("Dear {{Full Name}}, welcome to {{Company}} on {{Día de Inicio}}."),
		ContentType: "text/plain",
	}, s.actor())
	s.Require().NoError(err)
	return tpl
}

// TestRegister verifies extraction, auto-mapping, and the cached geometry.
func (s *TemplateServiceSuite) TestRegister() {
	tpl := s.register("welcome letter")

	s.Run("starts in draft", func() {
		s.Equal(template.StatusDraft, tpl.Status)
	})

	s.Run("extracts placeholders in order", func() {
		s.Equal([]string{"Full Name", "Company", "Día de Inicio"}, tpl.Variables)
	})

	s.Run("auto-maps against the catalog", func() {
		s.Equal("employee.full_name", tpl.VariableMappings["Full Name"])
		// "Company" matches no catalog field and stays unmapped.
		_, mapped := tpl.VariableMappings["Company"]
		s.False(mapped)
	})

	s.Run("caches the page geometry", func() {
		s.Equal(595.0, tpl.PDFWidth)
		s.Equal(842.0, tpl.PDFHeight)
		s.Equal(2, tpl.PageCount)
	})

	s.Run("stores the content", func() {
		data, _, err := s.service.Content(s.ctx, s.orgID, tpl.ID)
		s.Require().NoError(err)
		s.Contains(string(data), "{{Full Name}}")
	})
}

func (s *TemplateServiceSuite) TestRegisterValidation() {
	s.Run("rejects empty name", func() {
		_, err := s.service.Register(s.ctx, template.RegisterInput{OrgID: s.orgID, Content: []byte("x")}, s.actor())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects empty content", func() {
		_, err := s.service.Register(s.ctx, template.RegisterInput{OrgID: s.orgID, Name: "empty"}, s.actor())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects signatory with role and type code", func() {
		_, err := s.service.Register(s.ctx, template.RegisterInput{
			OrgID: s.orgID, Name: "bad", Content: []byte("x"),
			Signatories: []template.Signatory{{Role: "manager", TypeCode: "MGR", DatePosition: signature.DateNone}},
		}, s.actor())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestLifecycle walks draft -> active -> archived -> active.
func (s *TemplateServiceSuite) TestLifecycle() {
	tpl := s.register("contract")

	s.Run("draft cannot archive", func() {
		_, err := s.service.Archive(s.ctx, s.orgID, tpl.ID, s.actor())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("activate", func() {
		active, err := s.service.Activate(s.ctx, s.orgID, tpl.ID, s.actor())
		s.Require().NoError(err)
		s.Equal(template.StatusActive, active.Status)
	})

	s.Run("double activate is rejected", func() {
		_, err := s.service.Activate(s.ctx, s.orgID, tpl.ID, s.actor())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("archive", func() {
		archived, err := s.service.Archive(s.ctx, s.orgID, tpl.ID, s.actor())
		s.Require().NoError(err)
		s.Equal(template.StatusArchived, archived.Status)
	})

	s.Run("reactivate from archive", func() {
		active, err := s.service.Activate(s.ctx, s.orgID, tpl.ID, s.actor())
		s.Require().NoError(err)
		s.Equal(template.StatusActive, active.Status)
	})
}

func (s *TemplateServiceSuite) TestUpdateMappings() {
	tpl := s.register("contract")

	updated, err := s.service.UpdateMappings(s.ctx, s.orgID, tpl.ID,
		map[string]string{"Company": "organization.name"}, s.actor())
	s.Require().NoError(err)
	s.Equal("organization.name", updated.VariableMappings["Company"])
}

func (s *TemplateServiceSuite) TestUpdateSignatories() {
	tpl := s.register("contract")
	signatories := []template.Signatory{
		{Role: "employee", Label: "Employee", Position: 0, Required: true,
			Box: signature.Position{X: 10, Y: 10, Width: 100, Height: 50}, DatePosition: signature.DateBelow},
	}

	s.Run("draft accepts new signatories and assigns ids", func() {
		updated, err := s.service.UpdateSignatories(s.ctx, s.orgID, tpl.ID, signatories, s.actor())
		s.Require().NoError(err)
		s.Require().Len(updated.Signatories, 1)
		s.False(updated.Signatories[0].ID == (id.SignatoryID{}))
	})

	s.Run("active template rejects signatory changes", func() {
		_, err := s.service.Activate(s.ctx, s.orgID, tpl.ID, s.actor())
		s.Require().NoError(err)
		_, err = s.service.UpdateSignatories(s.ctx, s.orgID, tpl.ID, signatories, s.actor())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *TemplateServiceSuite) TestOrganizationScoping() {
	tpl := s.register("contract")

	_, err := s.service.Get(s.ctx, id.OrgID(uuid.New()), tpl.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TemplateServiceSuite) TestSignatoriesInOrder() {
	tpl := &template.Template{Signatories: []template.Signatory{
		{Label: "third", Position: 2},
		{Label: "first", Position: 0},
		{Label: "second", Position: 1},
	}}
	ordered := tpl.SignatoriesInOrder()
	s.Equal([]string{"first", "second", "third"}, []string{ordered[0].Label, ordered[1].Label, ordered[2].Label})
}
