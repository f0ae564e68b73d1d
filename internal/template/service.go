package template

import (
	"context"
	"fmt"
	"log/slog"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
	"vellum/internal/pdf"
	"vellum/internal/storage"
	"vellum/internal/variables"
)

// VariableExtractor discovers placeholder names in template content.
type VariableExtractor interface {
	ExtractVariables(data []byte) ([]string, error)
}

// TextExtractor treats the template binary as text with {{name}} markers.
type TextExtractor struct{}

func (TextExtractor) ExtractVariables(data []byte) ([]string, error) {
	return pdf.ExtractPlaceholders(string(data)), nil
}

// Service manages the template lifecycle: registration, variable mapping, and
// the draft/active/archived transitions.
type Service struct {
	store     Store
	blobs     storage.BlobStore
	extractor VariableExtractor
	geometry  pdf.GeometryReader
	audit     *audit.Service
	log       *slog.Logger

	// knownKeys is the catalog of resolvable dotted keys used by auto-mapping.
	knownKeys []string
}

func NewService(store Store, blobs storage.BlobStore, extractor VariableExtractor, geometry pdf.GeometryReader, auditSvc *audit.Service, log *slog.Logger, knownKeys []string) *Service {
	if len(knownKeys) == 0 {
		knownKeys = DefaultVariableCatalog()
	}
	return &Service{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		geometry:  geometry,
		audit:     auditSvc,
		log:       log,
		knownKeys: knownKeys,
	}
}

// DefaultVariableCatalog lists the dotted keys the resolver serves out of the
// box. Deployments extend it with organization-specific request fields.
func DefaultVariableCatalog() []string {
	return []string{
		"employee.first_name",
		"employee.last_name",
		"employee.full_name",
		"employee.email",
		"employee.national_id",
		"employee.position",
		"employee.department",
		"employee.hire_date",
		"employee.salary",
		"organization.name",
		"organization.legal_name",
		"organization.tax_id",
		"organization.address",
		"organization.city",
		"organization.country",
		"request.start_date",
		"request.end_date",
		"request.reason",
		"request.amount",
		"system.current_date",
		"system.current_datetime",
		"system.current_year",
	}
}

// RegisterInput carries everything needed to create a draft template.
type RegisterInput struct {
	OrgID        id.OrgID
	Name         string
	ModuleType   string
	MainCategory string
	Category     string
	Content      []byte
	ContentType  string

	SequentialSigning bool
	Signatories       []Signatory

	// Mappings pins placeholder -> key pairs; auto-mapping fills the rest.
	Mappings map[string]string
}

// Register stores the template binary, extracts its placeholders, auto-maps
// them against the variable catalog, caches the page geometry, and creates the
// template in draft.
func (s *Service) Register(ctx context.Context, in RegisterInput, actor audit.Actor) (*Template, error) {
	if in.OrgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "organization id is required")
	}
	if in.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "template name must not be empty")
	}
	if len(in.Content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "template content must not be empty")
	}
	for i := range in.Signatories {
		if err := in.Signatories[i].Validate(); err != nil {
			return nil, err
		}
	}

	placeholders, err := s.extractor.ExtractVariables(in.Content)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeValidation, "extract template variables", err)
	}

	mappings := variables.AutoMap(placeholders, s.knownKeys)
	for placeholder, key := range in.Mappings {
		mappings[placeholder] = key
	}

	ref, err := s.blobs.Store(ctx, in.Content, in.Name, in.ContentType)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store template content", err)
	}

	now := requestcontext.Now(ctx).UTC()
	tpl := &Template{
		ID:                id.NewTemplateID(),
		OrgID:             in.OrgID,
		Name:              in.Name,
		ModuleType:        in.ModuleType,
		MainCategory:      in.MainCategory,
		Category:          in.Category,
		Status:            StatusDraft,
		FileRef:           ref,
		Variables:         placeholders,
		VariableMappings:  mappings,
		SequentialSigning: in.SequentialSigning,
		Signatories:       withSignatoryIDs(in.Signatories),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.cacheGeometry(tpl, in.Content)

	if err := s.store.Create(ctx, tpl); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create template", err)
	}

	s.audit.LogAsync(ctx, audit.Entry{
		Type:   audit.TypeContent,
		Action: "template.registered",
		Actor:  actor,
		Target: audit.Target{ID: tpl.ID.String(), Type: "template", OrgID: tpl.OrgID},
		NewValues: map[string]any{
			"name":               tpl.Name,
			"status":             tpl.Status,
			"variables":          len(tpl.Variables),
			"signatories":        len(tpl.Signatories),
			"sequential_signing": tpl.SequentialSigning,
		},
	})
	s.log.Info("template registered",
		"template_id", tpl.ID, "org_id", tpl.OrgID, "variables", len(tpl.Variables))
	return tpl, nil
}

// cacheGeometry records the page dimensions of the stored content. Content
// that isn't yet a PDF (text templates rendered at generation time) falls back
// to US Letter with a single page.
func (s *Service) cacheGeometry(tpl *Template, content []byte) {
	geom, err := s.geometry.Geometry(content)
	if err != nil || geom.PageCount() == 0 {
		tpl.PDFWidth = pdf.LetterSize.Width
		tpl.PDFHeight = pdf.LetterSize.Height
		tpl.PageCount = 1
		return
	}
	tpl.PDFWidth = geom.Page(0).Width
	tpl.PDFHeight = geom.Page(0).Height
	tpl.PageCount = geom.PageCount()
}

func withSignatoryIDs(in []Signatory) []Signatory {
	out := append([]Signatory(nil), in...)
	for i := range out {
		if out[i].ID == (id.SignatoryID{}) {
			out[i].ID = id.NewSignatoryID()
		}
	}
	return out
}

// Get fetches a template scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID id.OrgID, templateID id.TemplateID) (*Template, error) {
	tpl, err := s.store.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.OrgID != orgID {
		return nil, dErrors.New(dErrors.CodeNotFound, "template not found")
	}
	return tpl, nil
}

// List returns the organization's templates.
func (s *Service) List(ctx context.Context, orgID id.OrgID) ([]*Template, error) {
	return s.store.ListByOrg(ctx, orgID)
}

// UpdateMappings replaces placeholder mappings. Allowed in any status; mappings
// affect future generations only.
func (s *Service) UpdateMappings(ctx context.Context, orgID id.OrgID, templateID id.TemplateID, mappings map[string]string, actor audit.Actor) (*Template, error) {
	tpl, err := s.Get(ctx, orgID, templateID)
	if err != nil {
		return nil, err
	}
	previous := tpl.VariableMappings
	tpl.VariableMappings = mappings
	tpl.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.store.Update(ctx, tpl); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update template", err)
	}
	s.audit.LogAsync(ctx, audit.Entry{
		Type:           audit.TypeContent,
		Action:         "template.mappings_updated",
		Actor:          actor,
		Target:         audit.Target{ID: tpl.ID.String(), Type: "template", OrgID: tpl.OrgID},
		PreviousValues: map[string]any{"mappings": previous},
		NewValues:      map[string]any{"mappings": mappings},
	})
	return tpl, nil
}

// UpdateSignatories replaces the signing slots. Only drafts may change their
// signatory layout; active templates have documents in flight against it.
func (s *Service) UpdateSignatories(ctx context.Context, orgID id.OrgID, templateID id.TemplateID, signatories []Signatory, actor audit.Actor) (*Template, error) {
	tpl, err := s.Get(ctx, orgID, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.Status != StatusDraft {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "template is %s; signatories can only change in draft", tpl.Status)
	}
	for i := range signatories {
		if err := signatories[i].Validate(); err != nil {
			return nil, err
		}
	}
	tpl.Signatories = withSignatoryIDs(signatories)
	tpl.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.store.Update(ctx, tpl); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update template", err)
	}
	s.audit.LogAsync(ctx, audit.Entry{
		Type:      audit.TypeContent,
		Action:    "template.signatories_updated",
		Actor:     actor,
		Target:    audit.Target{ID: tpl.ID.String(), Type: "template", OrgID: tpl.OrgID},
		NewValues: map[string]any{"signatories": len(tpl.Signatories)},
	})
	return tpl, nil
}

// Activate transitions draft -> active (or archived -> active, reactivation).
func (s *Service) Activate(ctx context.Context, orgID id.OrgID, templateID id.TemplateID, actor audit.Actor) (*Template, error) {
	return s.transition(ctx, orgID, templateID, StatusActive, "template.activated", actor)
}

// Archive transitions active -> archived. Archived templates generate nothing.
func (s *Service) Archive(ctx context.Context, orgID id.OrgID, templateID id.TemplateID, actor audit.Actor) (*Template, error) {
	return s.transition(ctx, orgID, templateID, StatusArchived, "template.archived", actor)
}

func (s *Service) transition(ctx context.Context, orgID id.OrgID, templateID id.TemplateID, next Status, action string, actor audit.Actor) (*Template, error) {
	tpl, err := s.Get(ctx, orgID, templateID)
	if err != nil {
		return nil, err
	}
	if !tpl.Status.CanTransitionTo(next) {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "template cannot move from %s to %s", tpl.Status, next)
	}
	previous := tpl.Status
	tpl.Status = next
	tpl.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.store.Update(ctx, tpl); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, fmt.Sprintf("transition template to %s", next), err)
	}

	if _, err := s.audit.LogModelChange(ctx, audit.Entry{
		Type:   audit.TypeContent,
		Action: action,
		Actor:  actor,
		Target: audit.Target{ID: tpl.ID.String(), Type: "template", OrgID: tpl.OrgID},
	}, map[string][2]any{"status": {previous, next}}); err != nil {
		s.log.Error("audit write failed", "action", action, "error", err)
	}
	return tpl, nil
}

// Content fetches the stored template binary.
func (s *Service) Content(ctx context.Context, orgID id.OrgID, templateID id.TemplateID) ([]byte, *Template, error) {
	tpl, err := s.Get(ctx, orgID, templateID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, tpl.FileRef)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "load template content", err)
	}
	return data, tpl, nil
}
