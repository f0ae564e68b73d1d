package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/sentinel"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
	"vellum/internal/identity"
	"vellum/internal/pdf"
	"vellum/internal/platform/metrics"
	"vellum/internal/storage"
	"vellum/internal/template"
	"vellum/internal/variables"
)

// MissingVariablesError reports which placeholders could not be resolved.
// Generation is all-or-nothing: when this error is returned, no document was
// persisted.
type MissingVariablesError struct {
	Missing []variables.MissingVariable
}

func (e *MissingVariablesError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = m.Placeholder
	}
	return fmt.Sprintf("missing variables: %s", strings.Join(names, ", "))
}

// Generator turns an active template plus a variable context into a
// GeneratedDocument with its signing slots initialized.
type Generator struct {
	templates *template.Service
	store     Store
	blobs     storage.BlobStore
	renderer  pdf.Renderer
	directory identity.Directory
	audit     *audit.Service
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewGenerator(
	templates *template.Service,
	store Store,
	blobs storage.BlobStore,
	renderer pdf.Renderer,
	directory identity.Directory,
	auditSvc *audit.Service,
	m *metrics.Metrics,
	log *slog.Logger,
) *Generator {
	return &Generator{
		templates: templates,
		store:     store,
		blobs:     blobs,
		renderer:  renderer,
		directory: directory,
		audit:     auditSvc,
		metrics:   m,
		log:       log,
	}
}

// GenerateInput names the template and supplies the resolution context.
type GenerateInput struct {
	OrgID      id.OrgID
	TemplateID id.TemplateID
	Name       string // defaults to the template name
	EmployeeID id.UserID
	Context    variables.Context
}

// Generate renders a document from an active template. Every mapped
// placeholder must resolve; a single miss aborts the whole generation with
// MissingVariablesError and nothing is persisted.
func (g *Generator) Generate(ctx context.Context, in GenerateInput, actor audit.Actor) (*GeneratedDocument, error) {
	tpl, err := g.templates.Get(ctx, in.OrgID, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl.Status != template.StatusActive {
		g.metrics.GenerationFailures.Inc()
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "template is %s; only active templates generate documents", tpl.Status)
	}

	report := variables.Validate(tpl.Variables, tpl.VariableMappings, in.Context)
	if !report.Valid {
		g.metrics.GenerationFailures.Inc()
		return nil, dErrors.Wrap(dErrors.CodeMissingVariables, "generate document",
			&MissingVariablesError{Missing: report.Missing})
	}
	values := variables.ResolveAll(tpl.Variables, tpl.VariableMappings, in.Context)

	content, _, err := g.templates.Content(ctx, in.OrgID, in.TemplateID)
	if err != nil {
		g.metrics.GenerationFailures.Inc()
		return nil, err
	}
	rendered, err := g.renderer.Render(string(content), values)
	if err != nil {
		g.metrics.GenerationFailures.Inc()
		return nil, dErrors.Wrap(dErrors.CodeGeneration, "render document", err)
	}

	name := in.Name
	if name == "" {
		name = tpl.Name
	}
	ref, err := g.blobs.Store(ctx, rendered, name+".pdf", "application/pdf")
	if err != nil {
		g.metrics.GenerationFailures.Inc()
		return nil, dErrors.Wrap(dErrors.CodeInternal, "store generated document", err)
	}

	now := requestcontext.Now(ctx).UTC()
	doc := &GeneratedDocument{
		ID:             id.NewDocumentID(),
		OrgID:          in.OrgID,
		TemplateID:     tpl.ID,
		Name:           name,
		Status:         StatusDraft,
		FileRef:        ref,
		ResolvedValues: values,
		Sequential:     tpl.SequentialSigning,
		EmployeeID:     in.EmployeeID,
		CreatedBy:      actor.ID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	g.initializeSignatures(ctx, doc, tpl)

	if err := g.store.Create(ctx, doc); err != nil {
		g.metrics.GenerationFailures.Inc()
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create document", err)
	}

	g.metrics.DocumentsGenerated.Inc()
	g.audit.LogAsync(ctx, audit.Entry{
		Type:   audit.TypeContent,
		Action: "document.generated",
		Actor:  actor,
		Target: audit.Target{ID: doc.ID.String(), Type: "document", OrgID: doc.OrgID},
		NewValues: map[string]any{
			"template_id": tpl.ID,
			"status":      doc.Status,
			"signatories": len(doc.Signatures),
		},
	})
	g.log.Info("document generated",
		"document_id", doc.ID, "template_id", tpl.ID, "org_id", doc.OrgID,
		"status", doc.Status, "signatories", len(doc.Signatures))
	return doc, nil
}

// initializeSignatures creates one pending entry per template signatory in
// position order, resolving each to a concrete user. A slot whose signer
// cannot be resolved stays pending with no user; an administrator assigns it
// later. The document moves to pending signatures iff at least one slot was
// created.
func (g *Generator) initializeSignatures(ctx context.Context, doc *GeneratedDocument, tpl *template.Template) {
	for _, signatory := range tpl.SignatoriesInOrder() {
		entry := SignatureEntry{
			SignatoryID:    signatory.ID,
			Label:          signatory.Label,
			Position:       signatory.Position,
			Required:       signatory.Required,
			State:          SignaturePending,
			Box:            signatory.Box,
			DatePosition:   signatory.DatePosition,
			ShowLabel:      signatory.ShowLabel,
			ShowSignerName: signatory.ShowSignerName,
		}
		if user := g.resolveSigner(ctx, doc, signatory); user != nil {
			entry.UserID = user.ID
		}
		doc.Signatures = append(doc.Signatures, entry)
	}
	if len(doc.Signatures) > 0 {
		doc.Status = StatusPendingSignatures
	}
}

// resolveSigner picks the user for a slot: pinned user first, then email
// lookup, then the first role holder in the organization.
func (g *Generator) resolveSigner(ctx context.Context, doc *GeneratedDocument, signatory template.Signatory) *identity.User {
	switch {
	case !signatory.UserOverride.IsNil():
		user, err := g.directory.FindByID(ctx, signatory.UserOverride)
		if err == nil && user.OrgID == doc.OrgID {
			return user
		}
	case signatory.EmailOverride != "":
		if user, err := g.directory.FindByEmail(ctx, doc.OrgID, signatory.EmailOverride); err == nil {
			return user
		}
	default:
		role := signatory.Role
		if role == "" {
			role = signatory.TypeCode
		}
		user, err := g.directory.FindUserWithRole(ctx, role, doc.OrgID)
		if err == nil {
			return user
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			g.log.Warn("signer role lookup failed", "role", role, "error", err)
		}
	}
	return nil
}
